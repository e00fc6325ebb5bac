package ssvep

import (
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-ssvep/linalg"
)

// HarmonicGroup is the factorized sine/cosine reference of one target.
// MatrixID is owned by the group and released by Classifier.Close.
type HarmonicGroup struct {
	Frequency float64
	MatrixID  linalg.Handle
}

// ReferenceMatrix returns the row-major rows x 2*harmonics reference for freq.
// Columns 2h and 2h+1 hold sin and cos of 2π·freq·(h+1)·t with t = row/sampleRate.
func ReferenceMatrix(freq, sampleRate float64, rows, harmonics int) []float64 {
	cols := 2 * harmonics
	data := make([]float64, rows*cols)

	for w := range rows {
		t := float64(w) / sampleRate
		for h := range harmonics {
			arg := 2 * math.Pi * freq * float64(h+1) * t
			data[w*cols+2*h] = math.Sin(arg)
			data[w*cols+2*h+1] = math.Cos(arg)
		}
	}
	return data
}

// buildHarmonicBank allocates and factorizes one reference per frequency.
// On failure every handle allocated so far is released.
func buildHarmonicBank(backend linalg.Backend, freqs []float64, sampleRate float64, rows, harmonics int) ([]HarmonicGroup, error) {
	groups := make([]HarmonicGroup, 0, len(freqs))

	fail := func(err error) ([]HarmonicGroup, error) {
		errs := []error{err}
		for _, g := range groups {
			if rerr := backend.Release(g.MatrixID); rerr != nil {
				errs = append(errs, rerr)
			}
		}
		return nil, errors.Join(errs...)
	}

	for _, f := range freqs {
		h, err := backend.Allocate(ReferenceMatrix(f, sampleRate, rows, harmonics), rows, 2*harmonics)
		if err != nil {
			return fail(fmt.Errorf("allocate reference for %.2f Hz: %w", f, err))
		}
		groups = append(groups, HarmonicGroup{Frequency: f, MatrixID: h})

		if err := backend.ComputeQR(h); err != nil {
			return fail(fmt.Errorf("factorize reference for %.2f Hz: %w", f, err))
		}
	}

	return groups, nil
}

// releaseHarmonicBank releases every group handle
func releaseHarmonicBank(backend linalg.Backend, groups []HarmonicGroup) error {
	var errs []error
	for _, g := range groups {
		if err := backend.Release(g.MatrixID); err != nil {
			errs = append(errs, fmt.Errorf("release reference for %.2f Hz: %w", g.Frequency, err))
		}
	}
	return errors.Join(errs...)
}
