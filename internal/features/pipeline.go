package features

import "fmt"

// Config controls feature extraction.
type Config struct {
	SampleRate      int       // samples per second of the input signal
	DurationSeconds float64   // fixed utterance length
	FrameSize       int       // samples per frame
	HopSize         int       // samples between frame starts
	BandCount       int       // energy bands per frame
	TargetFrames    int       // rows in the output sequence
	Epsilon         float64   // normalization floor
	Delta           DeltaMode // how difference columns are computed
}

// DefaultConfig returns the parameters the shipped classifiers expect:
// 3 s at 16 kHz, 512-sample frames with 50% overlap, 13 bands.
func DefaultConfig() Config {
	return Config{
		SampleRate:      16000,
		DurationSeconds: 3,
		FrameSize:       512,
		HopSize:         256,
		BandCount:       13,
		TargetFrames:    186,
		Epsilon:         DefaultEpsilon,
		Delta:           DeltaBand,
	}
}

// SignalLength returns the fixed number of samples an utterance is
// padded or truncated to.
func (c Config) SignalLength() int {
	return int(float64(c.SampleRate) * c.DurationSeconds)
}

// InputShape returns the classifier input shape [1, TargetFrames, 3*BandCount].
func (c Config) InputShape() []int64 {
	return []int64{1, int64(c.TargetFrames), int64(3 * c.BandCount)}
}

// Validate rejects configurations that cannot produce a tensor.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("features: sample rate must be > 0")
	case c.DurationSeconds <= 0:
		return fmt.Errorf("features: duration must be > 0")
	case c.FrameSize <= 0:
		return fmt.Errorf("features: frame size must be > 0")
	case c.HopSize <= 0:
		return fmt.Errorf("features: hop size must be > 0")
	case c.BandCount <= 0:
		return fmt.Errorf("features: band count must be > 0")
	case c.BandCount > c.FrameSize:
		return fmt.Errorf("features: band count %d exceeds frame size %d", c.BandCount, c.FrameSize)
	case c.TargetFrames <= 0:
		return fmt.Errorf("features: target frames must be > 0")
	}
	_, err := ParseDeltaMode(string(c.Delta))
	return err
}

// Pipeline runs segmentation, extraction, frame fitting and
// normalization for one utterance at a time. It holds no per-call
// state and is safe for concurrent use.
type Pipeline struct {
	cfg       Config
	extractor *Extractor
}

// NewPipeline validates cfg and builds a Pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ext, err := NewExtractor(cfg.BandCount, cfg.Delta)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, extractor: ext}, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Sequence returns the fitted but unnormalized feature sequence for a
// length-normalized signal.
func (p *Pipeline) Sequence(signal []float32) Sequence {
	frames := Segment(signal, p.cfg.FrameSize, p.cfg.HopSize)
	seq := p.extractor.Extract(frames)
	return FitFrames(seq, p.cfg.TargetFrames, p.extractor.Width())
}

// Process returns the normalized [TargetFrames][3*BandCount] sequence.
// signal must already be SignalLength samples long.
func (p *Pipeline) Process(signal []float32) (Sequence, error) {
	if want := p.cfg.SignalLength(); len(signal) != want {
		return nil, fmt.Errorf("features: signal has %d samples, want %d", len(signal), want)
	}
	return Normalize(p.Sequence(signal), p.cfg.Epsilon), nil
}
