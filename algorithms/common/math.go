package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Score vector helpers shared by the feature pipeline. All of them return new
// slices and leave their input untouched.

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// StandardDeviation calculates the sample standard deviation
func StandardDeviation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return stat.StdDev(data, nil)
}

// ReplaceNaN returns a copy of data with every NaN replaced by 0
func ReplaceNaN(data []float64) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		if !math.IsNaN(v) {
			out[i] = v
		}
	}
	return out
}

// SumNormalize scales data so that it sums to one. NaNs count as zero.
// An all-zero vector is returned as zeros.
func SumNormalize(data []float64) []float64 {
	out := ReplaceNaN(data)

	sum := floats.Sum(out)
	if sum == 0 {
		return out
	}

	floats.Scale(1/sum, out)
	return out
}

// ZScore normalizes data to zero mean and unit sample standard deviation.
// Constant data is only centered.
func ZScore(data []float64) []float64 {
	if len(data) == 0 {
		return []float64{}
	}

	mean := Mean(data)
	std := StandardDeviation(data)

	normalized := make([]float64, len(data))
	for i, val := range data {
		normalized[i] = val - mean
	}
	if std < 1e-10 {
		return normalized
	}

	floats.Scale(1/std, normalized)
	return normalized
}

// ArgMax returns the index of the largest value, first one on ties, or -1 for
// an empty slice.
func ArgMax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	return floats.MaxIdx(data)
}
