// Package models loads, holds and releases the classifier models and
// their label metadata, and fetches model bundles.
package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chaz8081/voxcheck/internal/classify"
	"github.com/chaz8081/voxcheck/internal/storage"
)

// Model names.
const (
	Language = "language"
	Accent   = "accent"
	Spoof    = "spoof"
)

// Default metadata paths within a bundle.
const (
	LabelsPath      = "labels.json"
	SpoofConfigPath = "spoof_config.json"
)

// Spec describes one model artifact.
type Spec struct {
	Name     string
	Path     string
	Required bool
}

// DefaultSpecs returns the standard bundle layout: a required language
// model plus optional accent and spoof models.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: Language, Path: "language/model.onnx", Required: true},
		{Name: Accent, Path: "accent/model.onnx"},
		{Name: Spoof, Path: "spoof/model.onnx"},
	}
}

// Opener turns serialized model bytes into a Classifier.
type Opener interface {
	Open(name string, model []byte) (classify.Classifier, error)
}

// Options selects which artifacts a Registry loads.
type Options struct {
	Models          []Spec
	LabelsPath      string
	SpoofConfigPath string
}

// ResourceLoadError reports a model artifact that could not be read or
// opened.
type ResourceLoadError struct {
	Name     string
	Path     string
	Required bool
	Err      error
}

func (e *ResourceLoadError) Error() string {
	kind := "optional"
	if e.Required {
		kind = "required"
	}
	return fmt.Sprintf("models: loading %s model %s from %s: %v", kind, e.Name, e.Path, e.Err)
}

func (e *ResourceLoadError) Unwrap() error { return e.Err }

// Missing reports whether the artifact was absent rather than broken.
func (e *ResourceLoadError) Missing() bool { return errors.Is(e.Err, os.ErrNotExist) }

// Status is the load state of one model.
type Status struct {
	Name     string
	Path     string
	Required bool
	Loaded   bool
}

// Registry owns the loaded classifiers. Build one per process and share
// it; models are loaded at most once and released only by Unload.
type Registry struct {
	store  storage.FileStore
	opener Opener
	opts   Options
	log    logrus.FieldLogger

	mu     sync.RWMutex
	loaded bool
	models map[string]classify.Classifier
	labels []string
	spoof  SpoofConfig
}

// NewRegistry returns an empty registry. Zero-valued Options fields take
// the defaults.
func NewRegistry(store storage.FileStore, opener Opener, opts Options, log logrus.FieldLogger) *Registry {
	if len(opts.Models) == 0 {
		opts.Models = DefaultSpecs()
	}
	if opts.LabelsPath == "" {
		opts.LabelsPath = LabelsPath
	}
	if opts.SpoofConfigPath == "" {
		opts.SpoofConfigPath = SpoofConfigPath
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Registry{
		store:  store,
		opener: opener,
		opts:   opts,
		log:    log,
		labels: DefaultLabels,
		spoof:  DefaultSpoofConfig(),
	}
}

// Load reads every configured model and the metadata files. Calling it
// again after success is a no-op. If a required model fails, everything
// opened so far is closed and the registry stays empty. Optional models
// that fail are logged and left absent.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}

	opened := make(map[string]classify.Classifier, len(r.opts.Models))
	for _, spec := range r.opts.Models {
		if err := ctx.Err(); err != nil {
			closeAll(opened)
			return err
		}
		c, err := r.open(ctx, spec)
		if err != nil {
			rerr := &ResourceLoadError{Name: spec.Name, Path: spec.Path, Required: spec.Required, Err: err}
			if spec.Required {
				closeAll(opened)
				return rerr
			}
			r.log.WithFields(logrus.Fields{
				"model":   spec.Name,
				"path":    spec.Path,
				"missing": rerr.Missing(),
			}).WithError(err).Warn("optional model unavailable")
			continue
		}
		opened[spec.Name] = c
		r.log.WithFields(logrus.Fields{"model": spec.Name, "path": spec.Path}).Debug("model loaded")
	}

	r.labels = r.loadLabels(ctx)
	r.spoof = r.loadSpoofConfig(ctx)
	r.models = opened
	r.loaded = true
	r.log.WithField("models", len(opened)).Info("model registry loaded")
	return nil
}

func (r *Registry) open(ctx context.Context, spec Spec) (classify.Classifier, error) {
	data, err := storage.ReadFile(ctx, r.store, spec.Path)
	if err != nil {
		return nil, err
	}
	return r.opener.Open(spec.Name, data)
}

func (r *Registry) loadLabels(ctx context.Context) []string {
	data, err := storage.ReadFile(ctx, r.store, r.opts.LabelsPath)
	if err != nil {
		r.logMetadataFallback(r.opts.LabelsPath, err)
		return DefaultLabels
	}
	labels, err := parseLabels(data)
	if err != nil {
		r.logMetadataFallback(r.opts.LabelsPath, err)
		return DefaultLabels
	}
	return labels
}

func (r *Registry) loadSpoofConfig(ctx context.Context) SpoofConfig {
	data, err := storage.ReadFile(ctx, r.store, r.opts.SpoofConfigPath)
	if err != nil {
		r.logMetadataFallback(r.opts.SpoofConfigPath, err)
		return DefaultSpoofConfig()
	}
	cfg, err := parseSpoofConfig(data)
	if err != nil {
		r.logMetadataFallback(r.opts.SpoofConfigPath, err)
		return DefaultSpoofConfig()
	}
	return cfg
}

func (r *Registry) logMetadataFallback(path string, err error) {
	entry := r.log.WithField("path", path)
	if errors.Is(err, os.ErrNotExist) {
		entry.Debug("metadata not found, using defaults")
		return
	}
	entry.WithError(err).Warn("metadata unreadable, using defaults")
}

// Get returns the named classifier if it is loaded.
func (r *Registry) Get(name string) (classify.Classifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.models[name]
	return c, ok
}

// Labels returns the category names for the language and accent models.
func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.labels))
	copy(out, r.labels)
	return out
}

// SpoofConfig returns the spoof decision settings.
func (r *Registry) SpoofConfig() SpoofConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.spoof
}

// Loaded reports whether Load has succeeded since the last Unload.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Status lists every configured model with its load state.
func (r *Registry) Status() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.opts.Models))
	for _, spec := range r.opts.Models {
		_, ok := r.models[spec.Name]
		out = append(out, Status{Name: spec.Name, Path: spec.Path, Required: spec.Required, Loaded: ok})
	}
	return out
}

// Paths returns every artifact path the registry reads, models first.
func (r *Registry) Paths() []string {
	paths := make([]string, 0, len(r.opts.Models)+2)
	for _, spec := range r.opts.Models {
		paths = append(paths, spec.Path)
	}
	return append(paths, r.opts.LabelsPath, r.opts.SpoofConfigPath)
}

// Unload closes every loaded classifier and resets the metadata to
// defaults. The registry may be loaded again afterwards.
func (r *Registry) Unload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := closeAll(r.models)
	r.models = nil
	r.labels = DefaultLabels
	r.spoof = DefaultSpoofConfig()
	r.loaded = false
	return err
}

func closeAll(m map[string]classify.Classifier) error {
	var errs []error
	for name, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
