package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZScoreHasZeroMeanUnitStd(t *testing.T) {
	inputs := [][]float64{
		{0.9, 0.95, 0.2},
		{0.1, 0.2, 0.3, 0.4},
		{10, -3, 7.5, 2, 2, 100},
	}

	for _, in := range inputs {
		z := ZScore(in)
		assert.Len(t, z, len(in))
		assert.InDelta(t, 0, Mean(z), 1e-12)
		assert.InDelta(t, 1, StandardDeviation(z), 1e-12)
	}
}

func TestZScoreConstantInput(t *testing.T) {
	assert.Equal(t, []float64{0, 0, 0}, ZScore([]float64{4, 4, 4}))
	assert.Equal(t, []float64{}, ZScore(nil))
}

func TestReplaceNaN(t *testing.T) {
	in := []float64{1, math.NaN(), 3}
	out := ReplaceNaN(in)

	assert.Equal(t, []float64{1, 0, 3}, out)
	assert.True(t, math.IsNaN(in[1]), "input must not be modified")
}

func TestSumNormalize(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0.25, 0.25, 0.5}, SumNormalize([]float64{1, 1, 2}), 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 0, 0.5}, SumNormalize([]float64{2, math.NaN(), 2}), 1e-12)
	assert.Equal(t, []float64{0, 0}, SumNormalize([]float64{0, math.NaN()}))
}

func TestArgMax(t *testing.T) {
	assert.Equal(t, 1, ArgMax([]float64{0.9, 0.95, 0.2}))
	assert.Equal(t, 0, ArgMax([]float64{3, 3}))
	assert.Equal(t, -1, ArgMax(nil))
}
