package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts sig to the target sample rate. A signal already at
// the target rate is copied unchanged. Output samples are clamped to
// [-1, 1] since the band-limited filter can overshoot.
func Resample(sig Signal, rate int) (Signal, error) {
	if rate <= 0 {
		return Signal{}, fmt.Errorf("audio: resample: invalid target rate %d", rate)
	}
	if sig.SampleRate <= 0 {
		return Signal{}, fmt.Errorf("audio: resample: invalid source rate %d", sig.SampleRate)
	}
	if sig.SampleRate == rate || len(sig.Samples) == 0 {
		out := make([]float32, len(sig.Samples))
		copy(out, sig.Samples)
		return Signal{Samples: out, SampleRate: rate}, nil
	}

	in := make([]float64, len(sig.Samples))
	for i, s := range sig.Samples {
		in[i] = float64(s)
	}
	// ResampleMono flushes the filter tail along with the processed block.
	res, err := resampling.ResampleMono(in, float64(sig.SampleRate), float64(rate), resampling.QualityHigh)
	if err != nil {
		return Signal{}, fmt.Errorf("audio: resample: %w", err)
	}

	out := make([]float32, len(res))
	for i, s := range res {
		out[i] = clamp(float32(s))
	}
	return Signal{Samples: out, SampleRate: rate}, nil
}
