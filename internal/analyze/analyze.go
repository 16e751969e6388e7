// Package analyze runs one utterance through the feature pipeline and
// then through the in-process classifiers or the remote backend.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/chaz8081/voxcheck/internal/audio"
	"github.com/chaz8081/voxcheck/internal/backend"
	"github.com/chaz8081/voxcheck/internal/classify"
	"github.com/chaz8081/voxcheck/internal/features"
	"github.com/chaz8081/voxcheck/internal/models"
)

// ErrNoBackend is returned by Submit when no backend is configured.
var ErrNoBackend = errors.New("analyze: no backend configured")

// Models is the read side of a model registry.
type Models interface {
	Get(name string) (classify.Classifier, bool)
	Labels() []string
	SpoofConfig() models.SpoofConfig
}

// Submitter uploads a WAV recording for remote analysis.
type Submitter interface {
	Submit(ctx context.Context, wav []byte) (*backend.Result, error)
}

// Report is the in-process analysis of one utterance.
type Report struct {
	RequestID string                `json:"request_id"`
	Duration  time.Duration         `json:"duration"`
	Language  []classify.Prediction `json:"language"`
	Accent    []classify.Prediction `json:"accent,omitempty"`
	Spoof     *models.Verdict       `json:"spoof,omitempty"`
}

// Analyzer owns nothing but the pipeline; the registry and backend are
// shared and outlive it.
type Analyzer struct {
	pipeline *features.Pipeline
	models   Models
	backend  Submitter
	log      logrus.FieldLogger
}

// New returns an Analyzer. reg and sub may be nil when only the other
// path is used.
func New(p *features.Pipeline, reg Models, sub Submitter, log logrus.FieldLogger) *Analyzer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Analyzer{pipeline: p, models: reg, backend: sub, log: log}
}

// Prepare converts sig to the pipeline's sample rate and fixed length.
func (a *Analyzer) Prepare(sig audio.Signal) (audio.Signal, error) {
	cfg := a.pipeline.Config()
	rs, err := audio.Resample(sig, cfg.SampleRate)
	if err != nil {
		return audio.Signal{}, err
	}
	return audio.FitLength(rs, cfg.DurationSeconds), nil
}

// Features returns the normalized feature tensor for sig.
func (a *Analyzer) Features(sig audio.Signal) (features.Sequence, error) {
	prepared, err := a.Prepare(sig)
	if err != nil {
		return nil, err
	}
	return a.pipeline.Process(prepared.Samples)
}

// Analyze scores sig with every loaded model. The language model is
// required; accent and spoof are reported only when loaded.
func (a *Analyzer) Analyze(ctx context.Context, sig audio.Signal) (*Report, error) {
	if a.models == nil {
		return nil, errors.New("analyze: no model registry")
	}
	lang, ok := a.models.Get(models.Language)
	if !ok {
		return nil, errors.New("analyze: language model not loaded")
	}

	report := &Report{RequestID: uuid.NewString(), Duration: sig.Duration()}
	log := a.log.WithField("request_id", report.RequestID)

	seq, err := a.Features(sig)
	if err != nil {
		return nil, fmt.Errorf("analyze: extracting features: %w", err)
	}
	input := features.Flatten(seq)
	shape := a.pipeline.Config().InputShape()
	labels := a.models.Labels()

	probs, err := predict(ctx, lang, input, shape)
	if err != nil {
		return nil, fmt.Errorf("analyze: language model: %w", err)
	}
	report.Language = classify.Rank(probs, labels)

	if accent, ok := a.models.Get(models.Accent); ok {
		probs, err := predict(ctx, accent, input, shape)
		if err != nil {
			return nil, fmt.Errorf("analyze: accent model: %w", err)
		}
		report.Accent = classify.Rank(probs, labels)
	}

	if spoof, ok := a.models.Get(models.Spoof); ok {
		probs, err := predict(ctx, spoof, input, shape)
		if err != nil {
			return nil, fmt.Errorf("analyze: spoof model: %w", err)
		}
		v, err := a.models.SpoofConfig().Decide(probs)
		if err != nil {
			return nil, fmt.Errorf("analyze: %w", err)
		}
		report.Spoof = &v
	}

	fields := logrus.Fields{"language": report.Language[0].Label}
	if len(report.Accent) > 0 {
		fields["accent"] = report.Accent[0].Label
	}
	if report.Spoof != nil {
		fields["spoof"] = report.Spoof.Spoof
	}
	log.WithFields(fields).Info("utterance analyzed")
	return report, nil
}

func predict(ctx context.Context, c classify.Classifier, input []float32, shape []int64) ([]float32, error) {
	out, err := c.Predict(ctx, input, shape)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("empty model output")
	}
	return classify.AsProbabilities(out), nil
}

// Submit resamples sig to the pipeline rate, encodes it as 16-bit WAV
// and uploads it. The recording keeps its own length.
func (a *Analyzer) Submit(ctx context.Context, sig audio.Signal) (*backend.Result, error) {
	if a.backend == nil {
		return nil, ErrNoBackend
	}
	rs, err := audio.Resample(sig, a.pipeline.Config().SampleRate)
	if err != nil {
		return nil, err
	}
	wav, err := audio.EncodeWAV(rs)
	if err != nil {
		return nil, err
	}
	return a.backend.Submit(ctx, wav)
}
