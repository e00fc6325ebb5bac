package spectral

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-ssvep/algorithms/windowing"
)

// PowerSpectrum computes Hann-windowed one-sided power spectra and the
// narrow-band SNR used to inspect SSVEP responses.
type PowerSpectrum struct {
	fft       *FFT
	neighbors int
}

// NewPowerSpectrum creates a calculator. neighbors is the number of bins on
// each side of a target bin used as the noise estimate.
func NewPowerSpectrum(sampleRate float64, neighbors int) *PowerSpectrum {
	return &PowerSpectrum{
		fft:       NewFFT(sampleRate),
		neighbors: max(neighbors, 1),
	}
}

// Compute returns the power of bins 0..n/2 of the windowed signal
func (ps *PowerSpectrum) Compute(signal []float64) ([]float64, error) {
	if len(signal) == 0 {
		return []float64{}, nil
	}

	windowed, err := windowing.NewHann(len(signal), false).Apply(signal)
	if err != nil {
		return nil, err
	}

	spectrum := ps.fft.Compute(windowed)
	power := make([]float64, len(signal)/2+1)
	for k := range power {
		m := cmplx.Abs(spectrum[k])
		power[k] = m * m
	}
	return power, nil
}

// Bin returns the index of the bin closest to freq for an n point transform
func (ps *PowerSpectrum) Bin(freq float64, n int) int {
	return int(math.Round(freq * float64(n) / ps.fft.SampleRate()))
}

// SNR returns the power at freq divided by the mean power of the
// surrounding bins. The target bin and its direct neighbours, which carry
// the Hann main lobe, are excluded from the noise estimate.
func (ps *PowerSpectrum) SNR(signal []float64, freq float64) (float64, error) {
	power, err := ps.Compute(signal)
	if err != nil {
		return 0, err
	}

	k := ps.Bin(freq, len(signal))
	if k <= 0 || k >= len(power) {
		return 0, fmt.Errorf("frequency %.2f Hz outside the spectrum of %d samples", freq, len(signal))
	}

	var noise []float64
	for d := 2; d <= ps.neighbors+1; d++ {
		if k-d > 0 {
			noise = append(noise, power[k-d])
		}
		if k+d < len(power) {
			noise = append(noise, power[k+d])
		}
	}

	if len(noise) == 0 {
		return 0, fmt.Errorf("spectrum of %d samples has no bins around %.2f Hz", len(signal), freq)
	}

	mean := floats.Sum(noise) / float64(len(noise))
	if mean == 0 {
		return math.Inf(1), nil
	}
	return power[k] / mean, nil
}

// SNRDecibels converts an SNR ratio to dB
func SNRDecibels(snr float64) float64 {
	return 10 * math.Log10(snr)
}
