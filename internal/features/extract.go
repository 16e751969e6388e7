package features

import (
	"fmt"
	"math"
)

// DeltaMode selects how the difference columns are derived.
type DeltaMode string

const (
	// DeltaBand differences adjacent bands inside one frame:
	// d[j] = e[j] - e[j-1], d[0] = 0.
	DeltaBand DeltaMode = "band"

	// DeltaTemporal differences each band against the same band of
	// the previous frame. The first frame's differences are zero.
	DeltaTemporal DeltaMode = "temporal"
)

// ParseDeltaMode maps a config string to a DeltaMode. Empty means DeltaBand.
func ParseDeltaMode(s string) (DeltaMode, error) {
	switch DeltaMode(s) {
	case "", DeltaBand:
		return DeltaBand, nil
	case DeltaTemporal:
		return DeltaTemporal, nil
	default:
		return "", fmt.Errorf("features: unknown delta mode %q (supported: band, temporal)", s)
	}
}

// Sequence is a [frames][3*bandCount] feature matrix.
type Sequence [][]float32

// Shape returns the (rows, cols) of the sequence.
func (s Sequence) Shape() (int, int) {
	if len(s) == 0 {
		return 0, 0
	}
	return len(s), len(s[0])
}

// Extractor computes band-energy feature vectors from frames.
type Extractor struct {
	bands int
	mode  DeltaMode
}

// NewExtractor returns an Extractor producing 3*bands values per frame.
func NewExtractor(bands int, mode DeltaMode) (*Extractor, error) {
	if bands <= 0 {
		return nil, fmt.Errorf("features: band count must be > 0, got %d", bands)
	}
	if _, err := ParseDeltaMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = DeltaBand
	}
	return &Extractor{bands: bands, mode: mode}, nil
}

// Width returns the length of one feature vector.
func (e *Extractor) Width() int { return 3 * e.bands }

// Extract computes one feature vector per frame.
// Row layout is [energy_0..B-1, d1_0..B-1, d2_0..B-1].
func (e *Extractor) Extract(frames [][]float32) Sequence {
	seq := make(Sequence, len(frames))
	for t, frame := range frames {
		row := make([]float32, e.Width())
		bandEnergies(frame, row[:e.bands])
		seq[t] = row
	}

	switch e.mode {
	case DeltaTemporal:
		e.temporalDeltas(seq)
	default:
		for _, row := range seq {
			energy := row[:e.bands]
			d1 := row[e.bands : 2*e.bands]
			d2 := row[2*e.bands:]
			bandDiff(energy, d1)
			bandDiff(d1, d2)
		}
	}
	return seq
}

// temporalDeltas fills d1/d2 from the previous row's energy/d1.
// Row 0 keeps zero differences.
func (e *Extractor) temporalDeltas(seq Sequence) {
	b := e.bands
	for t := 1; t < len(seq); t++ {
		prev, cur := seq[t-1], seq[t]
		for j := 0; j < b; j++ {
			cur[b+j] = cur[j] - prev[j]
		}
	}
	for t := 1; t < len(seq); t++ {
		prev, cur := seq[t-1], seq[t]
		for j := 0; j < b; j++ {
			cur[2*b+j] = cur[b+j] - prev[b+j]
		}
	}
}

// bandEnergies writes the mean absolute amplitude of each of len(out)
// equal-width bins of frame into out. The last bin absorbs the
// remainder. Empty bins have zero energy.
func bandEnergies(frame []float32, out []float32) {
	bands := len(out)
	width := len(frame) / bands
	for j := range out {
		start := j * width
		end := start + width
		if j == bands-1 {
			end = len(frame)
		}
		end = min(end, len(frame))
		if end <= start {
			out[j] = 0
			continue
		}

		var sum float64
		for _, s := range frame[start:end] {
			sum += math.Abs(float64(s))
		}
		out[j] = float32(sum / float64(end-start))
	}
}

// bandDiff writes dst[j] = src[j] - src[j-1], dst[0] = 0.
func bandDiff(src, dst []float32) {
	if len(src) == 0 {
		return
	}
	dst[0] = 0
	for j := 1; j < len(src); j++ {
		dst[j] = src[j] - src[j-1]
	}
}

// FitFrames forces seq to exactly target rows of the given width,
// dropping trailing rows or appending zero rows. The input's rows are
// reused, not copied.
func FitFrames(seq Sequence, target, width int) Sequence {
	if target <= 0 {
		return Sequence{}
	}
	if len(seq) >= target {
		return seq[:target:target]
	}

	out := make(Sequence, target)
	copy(out, seq)
	for t := len(seq); t < target; t++ {
		out[t] = make([]float32, width)
	}
	return out
}
