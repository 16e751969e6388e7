// Package audio acquires mono utterances from a microphone or an encoded
// file and converts them to and from 16-bit WAV.
package audio

import "time"

// Signal is a mono sequence of samples in [-1, 1] at SampleRate Hz.
type Signal struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the signal.
func (s Signal) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.Samples)) / float64(s.SampleRate) * float64(time.Second))
}

// TargetLength returns sampleRate*seconds as a sample count.
func TargetLength(sampleRate int, seconds float64) int {
	return int(float64(sampleRate) * seconds)
}

// FitLength returns a copy of sig with exactly sampleRate*seconds samples.
// Longer signals keep their leading samples; shorter ones are zero-padded
// at the end.
func FitLength(sig Signal, seconds float64) Signal {
	return Signal{
		Samples:    padAudio(sig.Samples, TargetLength(sig.SampleRate, seconds)),
		SampleRate: sig.SampleRate,
	}
}

// padAudio zero-pads or truncates samples to exactly n.
func padAudio(samples []float32, n int) []float32 {
	if n < 0 {
		n = 0
	}
	out := make([]float32, n)
	copy(out, samples)
	return out
}

// clamp limits x to [-1, 1].
func clamp(x float32) float32 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

// downmix averages interleaved channels into a mono signal.
func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := range mono {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
