package features

import "math"

// DefaultEpsilon is added to each column's standard deviation before
// dividing, so constant columns normalize to zero.
const DefaultEpsilon = 1e-8

// Normalize standardizes each column of seq across time:
// out[t][c] = (seq[t][c] - mean[c]) / (std[c] + eps), where std is the
// population standard deviation. A non-positive eps uses DefaultEpsilon.
// seq is not modified.
func Normalize(seq Sequence, eps float64) Sequence {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	rows, cols := seq.Shape()
	out := make(Sequence, rows)
	for t := range out {
		out[t] = make([]float32, cols)
	}
	if rows == 0 {
		return out
	}

	n := float64(rows)
	for c := 0; c < cols; c++ {
		var sum float64
		for _, row := range seq {
			sum += float64(row[c])
		}
		mean := sum / n

		var varSum float64
		for _, row := range seq {
			d := float64(row[c]) - mean
			varSum += d * d
		}
		denom := math.Sqrt(varSum/n) + eps

		for t, row := range seq {
			out[t][c] = float32((float64(row[c]) - mean) / denom)
		}
	}
	return out
}

// Flatten converts seq to a row-major []float32 of rows*cols values,
// ready to back a [1, rows, cols] tensor.
func Flatten(seq Sequence) []float32 {
	rows, cols := seq.Shape()
	flat := make([]float32, rows*cols)
	for t, row := range seq {
		copy(flat[t*cols:], row)
	}
	return flat
}
