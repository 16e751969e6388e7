package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chaz8081/voxcheck/internal/analyze"
	"github.com/chaz8081/voxcheck/internal/audio"
	"github.com/chaz8081/voxcheck/internal/backend"
	"github.com/chaz8081/voxcheck/internal/classify"
	"github.com/chaz8081/voxcheck/internal/config"
	"github.com/chaz8081/voxcheck/internal/features"
	"github.com/chaz8081/voxcheck/internal/logging"
	"github.com/chaz8081/voxcheck/internal/models"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		var dae *audio.DeviceAccessError
		if errors.As(err, &dae) {
			fmt.Fprintf(os.Stderr, "error: %s\n", dae.UserMessage())
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	jsonOut    bool
}

func run() error {
	g := &globals{}
	root := &cobra.Command{
		Use:   "voxcheck",
		Short: "voxcheck: voice authenticity and accent classification",
		Long: `voxcheck records or reads one utterance, turns it into a fixed-shape
feature tensor, and scores it with local ONNX models (language, accent,
spoof) or uploads it to an analysis backend.

Env overrides: VOXCHECK_LOG_LEVEL, VOXCHECK_LOG_FORMAT,
               VOXCHECK_BACKEND_URL, VOXCHECK_MODELS_DIR`,
		Example: `  voxcheck config init
  voxcheck models fetch --base-url https://models.example.com/voxcheck/v1
  voxcheck record
  voxcheck analyze sample.wav --json
  voxcheck submit sample.mp3`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = version
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config file (default: ~/.config/voxcheck/config.yaml)")
	root.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newRecordCmd(g),
		newAnalyzeCmd(g),
		newSubmitCmd(g),
		newFeaturesCmd(g),
		newModelsCmd(g),
		newMicCmd(g),
		newConfigCmd(g),
	)
	return root.ExecuteContext(context.Background())
}

// env is the per-invocation state built from the config.
type env struct {
	cfg      *config.Config
	log      *logrus.Logger
	pipeline *features.Pipeline
}

func (g *globals) setup() (*env, error) {
	cfg, err := config.LoadOrDefault(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	log, err := logging.Configure(cfg.Logging)
	if err != nil {
		return nil, err
	}
	fc, err := cfg.Pipeline()
	if err != nil {
		return nil, err
	}
	p, err := features.NewPipeline(fc)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, pipeline: p}, nil
}

// registry loads the model registry. The returned func unloads it and
// shuts the runtime down.
func (e *env) registry(ctx context.Context) (*models.Registry, func(), error) {
	store, err := e.cfg.OpenStore()
	if err != nil {
		return nil, nil, err
	}
	rt := classify.NewRuntime(classify.RuntimeOptions{
		Library:    e.cfg.Models.ONNXLibrary,
		InputName:  e.cfg.Models.InputName,
		OutputName: e.cfg.Models.OutputName,
	})
	reg := models.NewRegistry(store, rt, e.cfg.RegistryOptions(), e.log)
	cleanup := func() {
		if err := reg.Unload(); err != nil {
			e.log.WithError(err).Warn("unloading models")
		}
		if err := rt.Close(); err != nil {
			e.log.WithError(err).Warn("closing onnx runtime")
		}
	}
	if err := reg.Load(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return reg, cleanup, nil
}

func (e *env) backend() (*backend.Client, error) {
	return backend.NewClient(backend.Options{
		URL:       e.cfg.Backend.URL,
		FieldName: e.cfg.Backend.FieldName,
		Timeout:   e.cfg.Backend.Timeout,
	}, e.log)
}

// analyzer wires the pipeline to either the registry or the backend.
func (e *env) analyzer(ctx context.Context, remote bool) (*analyze.Analyzer, func(), error) {
	if remote {
		client, err := e.backend()
		if err != nil {
			return nil, nil, err
		}
		return analyze.New(e.pipeline, nil, client, e.log), func() {}, nil
	}
	reg, cleanup, err := e.registry(ctx)
	if err != nil {
		return nil, nil, err
	}
	return analyze.New(e.pipeline, reg, nil, e.log), cleanup, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
