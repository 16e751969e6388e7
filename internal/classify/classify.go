// Package classify scores feature tensors with pretrained models.
package classify

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Classifier maps a flattened input tensor to a score vector.
type Classifier interface {
	// Predict runs one inference. input is row-major with the given shape.
	Predict(ctx context.Context, input []float32, shape []int64) ([]float32, error)
	// Close releases the model. Predict must not be called afterwards.
	Close() error
}

// Prediction is one label with its probability.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
}

// Rank pairs probs with labels and sorts them from most to least likely.
// Outputs without a matching label are named "class_<i>". Ties keep
// output order.
func Rank(probs []float32, labels []string) []Prediction {
	out := make([]Prediction, len(probs))
	for i, p := range probs {
		label := fmt.Sprintf("class_%d", i)
		if i < len(labels) {
			label = labels[i]
		}
		out[i] = Prediction{Label: label, Probability: p}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	return out
}

// Softmax converts logits to a probability distribution.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	peak := math.Inf(-1)
	for _, v := range logits {
		peak = math.Max(peak, float64(v))
	}
	out := make([]float32, len(logits))
	var sum float64
	exps := make([]float64, len(logits))
	for i, v := range logits {
		exps[i] = math.Exp(float64(v) - peak)
		sum += exps[i]
	}
	for i := range exps {
		out[i] = float32(exps[i] / sum)
	}
	return out
}

// AsProbabilities returns scores unchanged if they already form a
// distribution (each in [0, 1], summing to 1 within 1e-3), otherwise
// their softmax. Models exported without a final softmax layer emit
// logits.
func AsProbabilities(scores []float32) []float32 {
	var sum float64
	for _, v := range scores {
		if v < 0 || v > 1 || math.IsNaN(float64(v)) {
			return Softmax(scores)
		}
		sum += float64(v)
	}
	if math.Abs(sum-1) > 1e-3 {
		return Softmax(scores)
	}
	out := make([]float32, len(scores))
	copy(out, scores)
	return out
}

// checkShape verifies that shape is positive and describes n elements.
func checkShape(n int, shape []int64) error {
	if len(shape) == 0 {
		return fmt.Errorf("classify: empty input shape")
	}
	want := int64(1)
	for _, d := range shape {
		if d <= 0 {
			return fmt.Errorf("classify: invalid dimension %d in shape %v", d, shape)
		}
		want *= d
	}
	if want != int64(n) {
		return fmt.Errorf("classify: input has %d values, shape %v needs %d", n, shape, want)
	}
	return nil
}
