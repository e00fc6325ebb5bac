package filters

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-ssvep/algorithms/spectral"
)

// Band is a passband in Hz. Bins whose absolute frequency lies in
// [Low, High] are kept, everything else is zeroed.
type Band struct {
	Low  float64 `json:"low" yaml:"low" mapstructure:"low"`
	High float64 `json:"high" yaml:"high" mapstructure:"high"`
}

// Validate checks the band against the Nyquist frequency of sampleRate
func (b Band) Validate(sampleRate float64) error {
	if b.Low < 0 {
		return fmt.Errorf("low cutoff must not be negative, got %.3f Hz", b.Low)
	}
	if b.High <= b.Low {
		return fmt.Errorf("high cutoff (%.3f Hz) must be above low cutoff (%.3f Hz)", b.High, b.Low)
	}
	if sampleRate > 0 && b.Low >= sampleRate/2 {
		return fmt.Errorf("low cutoff (%.3f Hz) must be below Nyquist (%.3f Hz)", b.Low, sampleRate/2)
	}
	return nil
}

func (b Band) String() string {
	return fmt.Sprintf("%.1f-%.1fHz", b.Low, b.High)
}

// IdealBandpass applies a brick-wall bandpass in the frequency domain.
//
// The signal is transformed, every bin whose centered frequency magnitude is
// above highCutoff or below lowCutoff is zeroed, and the real part of the
// inverse transform is returned. The output has the same length as the input;
// a passband of [0, sampleRate/2] reproduces the input up to round-off.
func IdealBandpass(samples []float64, sampleRate, lowCutoff, highCutoff float64) []float64 {
	if len(samples) == 0 {
		return []float64{}
	}

	f := spectral.NewFFT(sampleRate)
	spectrum := f.Compute(samples)

	n := len(spectrum)
	for k := range spectrum {
		freq := math.Abs(f.BinFrequency(k, n))
		if freq > highCutoff || freq < lowCutoff {
			spectrum[k] = 0
		}
	}

	return f.ComputeInverseReal(spectrum)
}

// FilterBank is an ordered set of bands used for sub-band decomposition
type FilterBank struct {
	sampleRate float64
	bands      []Band
}

// NewFilterBank validates bands and creates a filter bank.
// An empty band list is allowed and means no sub-band decomposition.
func NewFilterBank(sampleRate float64, bands []Band) (*FilterBank, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %.3f", sampleRate)
	}
	for i, b := range bands {
		if err := b.Validate(sampleRate); err != nil {
			return nil, fmt.Errorf("band %d: %w", i, err)
		}
	}

	copied := make([]Band, len(bands))
	copy(copied, bands)

	return &FilterBank{
		sampleRate: sampleRate,
		bands:      copied,
	}, nil
}

// Len returns the number of sub-bands
func (fb *FilterBank) Len() int {
	return len(fb.bands)
}

// Band returns sub-band i
func (fb *FilterBank) Band(i int) Band {
	return fb.bands[i]
}

// ApplyColumns filters every column of a row-major rows x cols matrix
// through sub-band i and returns a new row-major matrix.
func (fb *FilterBank) ApplyColumns(i int, data []float64, rows, cols int) ([]float64, error) {
	if i < 0 || i >= len(fb.bands) {
		return nil, fmt.Errorf("sub-band %d out of range [0, %d)", i, len(fb.bands))
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("expected %d values for %dx%d, got %d", rows*cols, rows, cols, len(data))
	}

	band := fb.bands[i]
	out := make([]float64, len(data))
	column := make([]float64, rows)

	for c := range cols {
		for r := range rows {
			column[r] = data[r*cols+c]
		}
		filtered := IdealBandpass(column, fb.sampleRate, band.Low, band.High)
		for r := range rows {
			out[r*cols+c] = filtered[r]
		}
	}

	return out, nil
}
