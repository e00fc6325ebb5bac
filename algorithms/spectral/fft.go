package spectral

import (
	"github.com/mjibson/go-dsp/fft"
)

// FFT provides Fast Fourier Transform functionality for real-valued channels
type FFT struct {
	sampleRate float64
}

// NewFFT creates a new FFT calculator for signals sampled at sampleRate Hz
func NewFFT(sampleRate float64) *FFT {
	return &FFT{sampleRate: sampleRate}
}

// Compute computes the forward transform of a real signal.
// mjibson/go-dsp handles non-power-of-2 lengths, so the output has len(x) bins.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// ComputeInverseReal computes the inverse transform and returns the real part only
func (f *FFT) ComputeInverseReal(x []complex128) []float64 {
	if len(x) == 0 {
		return []float64{}
	}

	result := fft.IFFT(x)
	realResult := make([]float64, len(result))
	for i, val := range result {
		realResult[i] = real(val)
	}
	return realResult
}

// BinFrequency returns the signed frequency in Hz of bin k of an n-point
// transform, i.e. the centered (shifted) axis: bins past n/2 map to negative
// frequencies.
func (f *FFT) BinFrequency(k, n int) float64 {
	if n == 0 {
		return 0
	}
	if k > n/2 {
		k -= n
	}
	return float64(k) * f.sampleRate / float64(n)
}

// SampleRate returns the configured sample rate
func (f *FFT) SampleRate() float64 {
	return f.sampleRate
}
