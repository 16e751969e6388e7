// Package features turns a fixed-length mono signal into the
// [targetFrames, 3*bandCount] tensor the classifiers consume.
//
// The stages run in order for one utterance:
//
//	Segment   → overlapping frames of frameSize samples, hopSize apart
//	Extract   → per-frame band energies plus first/second differences
//	FitFrames → truncate or zero-pad to exactly targetFrames rows
//	Normalize → per-column mean/variance standardization
//
// The band energies are mean absolute amplitudes of equal-width sample
// bins. They are a cheap stand-in for a spectral front end, not MFCCs.
package features

// FrameCount returns how many frames Segment produces for a signal of
// n samples: floor((n - frameSize) / hopSize) + 1, never negative.
func FrameCount(n, frameSize, hopSize int) int {
	if frameSize <= 0 || hopSize <= 0 || n < frameSize {
		return 0
	}
	return (n-frameSize)/hopSize + 1
}

// Segment splits signal into overlapping frames. Frame i starts at
// sample i*hopSize. Frames share memory with signal; callers must not
// modify them. A signal shorter than frameSize yields no frames.
func Segment(signal []float32, frameSize, hopSize int) [][]float32 {
	count := FrameCount(len(signal), frameSize, hopSize)
	if count == 0 {
		return nil
	}

	frames := make([][]float32, count)
	for i := range frames {
		start := i * hopSize
		end := min(start+frameSize, len(signal))
		frames[i] = signal[start:end:end]
	}
	return frames
}
