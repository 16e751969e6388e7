// Package config loads voxcheck settings from YAML with defaults and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/voxcheck/internal/features"
	"github.com/chaz8081/voxcheck/internal/models"
	"github.com/chaz8081/voxcheck/internal/storage"
)

// Config holds all application configuration.
type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	Features FeaturesConfig `yaml:"features"`
	Models   ModelsConfig   `yaml:"models"`
	Backend  BackendConfig  `yaml:"backend"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AudioConfig holds capture and length normalization settings.
type AudioConfig struct {
	SampleRate      uint32  `yaml:"sample_rate"`
	Channels        uint32  `yaml:"channels"`
	DurationSeconds float64 `yaml:"duration_seconds"`
}

// FeaturesConfig holds the feature tensor geometry.
type FeaturesConfig struct {
	FrameSize    int     `yaml:"frame_size"`
	HopSize      int     `yaml:"hop_size"`
	BandCount    int     `yaml:"band_count"`
	TargetFrames int     `yaml:"target_frames"`
	Epsilon      float64 `yaml:"epsilon"`
	DeltaMode    string  `yaml:"delta_mode"` // "band" or "temporal"
}

// ModelsConfig locates the model bundle.
type ModelsConfig struct {
	Store       string     `yaml:"store"` // "local" or "s3"
	Dir         string     `yaml:"dir"`
	S3          S3Config   `yaml:"s3"`
	Paths       ModelPaths `yaml:"paths"`
	InputName   string     `yaml:"input_name"`
	OutputName  string     `yaml:"output_name"`
	ONNXLibrary string     `yaml:"onnx_library"`
	BaseURL     string     `yaml:"base_url"`
}

// S3Config points at a bucket holding the bundle.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// ModelPaths are artifact paths relative to the store root.
type ModelPaths struct {
	Language    string `yaml:"language"`
	Accent      string `yaml:"accent"`
	Spoof       string `yaml:"spoof"`
	Labels      string `yaml:"labels"`
	SpoofConfig string `yaml:"spoof_config"`
}

// BackendConfig configures remote submission.
type BackendConfig struct {
	URL       string        `yaml:"url"`
	FieldName string        `yaml:"field_name"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	File   string `yaml:"file"`   // rotated log file; empty logs to stderr only
	Stdout bool   `yaml:"stdout"` // also log to stderr when File is set
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voxcheck")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the default local model bundle directory.
func DefaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "voxcheck", "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	fc := features.DefaultConfig()
	specs := models.DefaultSpecs()
	return &Config{
		Audio: AudioConfig{
			SampleRate:      uint32(fc.SampleRate),
			Channels:        1,
			DurationSeconds: fc.DurationSeconds,
		},
		Features: FeaturesConfig{
			FrameSize:    fc.FrameSize,
			HopSize:      fc.HopSize,
			BandCount:    fc.BandCount,
			TargetFrames: fc.TargetFrames,
			Epsilon:      fc.Epsilon,
			DeltaMode:    string(fc.Delta),
		},
		Models: ModelsConfig{
			Store: "local",
			Dir:   DefaultModelsDir(),
			Paths: ModelPaths{
				Language:    specs[0].Path,
				Accent:      specs[1].Path,
				Spoof:       specs[2].Path,
				Labels:      models.LabelsPath,
				SpoofConfig: models.SpoofConfigPath,
			},
			InputName:  "input",
			OutputName: "output",
		},
		Backend: BackendConfig{
			FieldName: "audio",
			Timeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults and environment overrides are applied last.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)
	cfg.expandPaths()
	return cfg, nil
}

// LoadOrDefault loads path, or the default config path when path is
// empty. A missing default file yields Default() with env overrides; a
// missing explicit path is an error.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg, err := Load(DefaultConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		applyEnvOverrides(cfg)
		cfg.expandPaths()
		return cfg, nil
	}
	return cfg, err
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOXCHECK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VOXCHECK_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("VOXCHECK_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("VOXCHECK_MODELS_DIR"); v != "" {
		cfg.Models.Dir = v
	}
}

func (c *Config) expandPaths() {
	c.Models.Dir = expandTilde(c.Models.Dir)
	c.Models.ONNXLibrary = expandTilde(c.Models.ONNXLibrary)
	c.Logging.File = expandTilde(c.Logging.File)
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}
	if _, err := c.Pipeline(); err != nil {
		return err
	}

	switch c.Models.Store {
	case "local":
		if c.Models.Dir == "" {
			return fmt.Errorf("models.dir must not be empty")
		}
	case "s3":
		if c.Models.S3.Bucket == "" {
			return fmt.Errorf("models.s3.bucket must not be empty when models.store is \"s3\"")
		}
	default:
		return fmt.Errorf("models.store must be \"local\" or \"s3\", got %q", c.Models.Store)
	}
	if c.Models.Paths.Language == "" {
		return fmt.Errorf("models.paths.language must not be empty")
	}

	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	return nil
}

// Pipeline returns the feature pipeline settings.
func (c *Config) Pipeline() (features.Config, error) {
	mode, err := features.ParseDeltaMode(c.Features.DeltaMode)
	if err != nil {
		return features.Config{}, fmt.Errorf("features.delta_mode: %w", err)
	}
	fc := features.Config{
		SampleRate:      int(c.Audio.SampleRate),
		DurationSeconds: c.Audio.DurationSeconds,
		FrameSize:       c.Features.FrameSize,
		HopSize:         c.Features.HopSize,
		BandCount:       c.Features.BandCount,
		TargetFrames:    c.Features.TargetFrames,
		Epsilon:         c.Features.Epsilon,
		Delta:           mode,
	}
	if err := fc.Validate(); err != nil {
		return features.Config{}, err
	}
	return fc, nil
}

// RegistryOptions maps the model paths onto registry options. An empty
// optional path drops that model.
func (c *Config) RegistryOptions() models.Options {
	p := c.Models.Paths
	opts := models.Options{
		Models:          []models.Spec{{Name: models.Language, Path: p.Language, Required: true}},
		LabelsPath:      p.Labels,
		SpoofConfigPath: p.SpoofConfig,
	}
	if p.Accent != "" {
		opts.Models = append(opts.Models, models.Spec{Name: models.Accent, Path: p.Accent})
	}
	if p.Spoof != "" {
		opts.Models = append(opts.Models, models.Spec{Name: models.Spoof, Path: p.Spoof})
	}
	return opts
}

// OpenStore returns the configured artifact store.
func (c *Config) OpenStore() (storage.FileStore, error) {
	switch c.Models.Store {
	case "s3":
		return storage.NewS3FromOptions(storage.S3Options{
			Bucket:   c.Models.S3.Bucket,
			Prefix:   c.Models.S3.Prefix,
			Region:   c.Models.S3.Region,
			Endpoint: c.Models.S3.Endpoint,
		})
	case "local", "":
		return storage.NewLocal(c.Models.Dir)
	default:
		return nil, fmt.Errorf("config: unknown models.store %q", c.Models.Store)
	}
}

const defaultHeader = `# voxcheck configuration
# Generated with defaults. Edit as needed; unset fields keep their defaults.
# Environment overrides: VOXCHECK_LOG_LEVEL, VOXCHECK_LOG_FORMAT,
# VOXCHECK_BACKEND_URL, VOXCHECK_MODELS_DIR.

`

// WriteDefault writes the default config to DefaultConfigPath. It
// returns the path written, or "" if a config file already exists.
func WriteDefault() (string, error) {
	return WriteDefaultTo(DefaultConfigPath())
}

// WriteDefaultTo writes the default config to path unless a file is
// already there, in which case it returns "".
func WriteDefaultTo(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	out, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), out...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
