package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// DefaultLabels is used when no labels.json accompanies the models.
var DefaultLabels = []string{"Español", "Inglés", "Francés", "Alemán"}

// SpoofConfig holds the decision threshold for the spoof model and the
// names of its two classes, genuine first.
type SpoofConfig struct {
	Threshold float64  `json:"threshold"`
	Labels    []string `json:"labels"`
}

// DefaultSpoofConfig is used when no spoof_config.json is present.
func DefaultSpoofConfig() SpoofConfig {
	return SpoofConfig{Threshold: 0.5, Labels: []string{"human", "spoof"}}
}

// Verdict is the outcome of the spoof decision.
type Verdict struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
	Spoof bool    `json:"spoof"`
}

// Decide applies the threshold to a spoof model output. For a
// two-element output the second element is the spoof probability; a
// single-element output is taken as the spoof probability directly.
// The utterance is flagged when the score is strictly above the
// threshold. Labels other than a pair fall back to the defaults.
func (c SpoofConfig) Decide(probs []float32) (Verdict, error) {
	var score float32
	switch len(probs) {
	case 1:
		score = probs[0]
	case 2:
		score = probs[1]
	default:
		return Verdict{}, fmt.Errorf("models: spoof output has %d values, want 1 or 2", len(probs))
	}
	spoof := float64(score) > c.Threshold
	labels := c.Labels
	if len(labels) != 2 {
		labels = DefaultSpoofConfig().Labels
	}
	label := labels[0]
	if spoof {
		label = labels[1]
	}
	return Verdict{Label: label, Score: score, Spoof: spoof}, nil
}

func (c SpoofConfig) validate() error {
	if math.IsNaN(c.Threshold) || c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0, 1], got %v", c.Threshold)
	}
	if len(c.Labels) != 2 {
		return fmt.Errorf("labels must name exactly 2 classes, got %d", len(c.Labels))
	}
	return nil
}

func parseLabels(data []byte) ([]string, error) {
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.New("empty label list")
	}
	for i, l := range labels {
		if l == "" {
			return nil, fmt.Errorf("label %d is empty", i)
		}
	}
	return labels, nil
}

// parseSpoofConfig fills fields absent from data with defaults.
func parseSpoofConfig(data []byte) (SpoofConfig, error) {
	cfg := DefaultSpoofConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return SpoofConfig{}, err
	}
	if err := cfg.validate(); err != nil {
		return SpoofConfig{}, err
	}
	return cfg, nil
}
