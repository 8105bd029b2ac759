package features

import (
	"math"
	"sort"
)

// WeightedAvg returns Σ v·w / Σ w, or the plain mean of values when the
// weights sum to zero. Empty input yields NaN.
func WeightedAvg(values, weights []float64) float64 {
	var num, den, sum float64
	for i, v := range values {
		num += v * weights[i]
		den += weights[i]
		sum += v
	}
	return ratioOrMean(num, den, sum, float64(len(values)))
}

// Mean is the arithmetic mean, NaN for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// quantile uses linear interpolation between closest ranks (numpy's default).
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func sortedCopy(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	sort.Float64s(out)
	return out
}

// CosineSimilarity of two vectors; NaN for zero-norm or mismatched vectors.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	na, nb := math.Sqrt(normA), math.Sqrt(normB)
	if na == 0 || nb == 0 {
		return math.NaN()
	}
	return dot / (na * nb)
}
