package ssvep

import (
	"errors"
	"fmt"
	"math"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-ssvep/algorithms/common"
	"github.com/RyanBlaney/sonido-ssvep/algorithms/filters"
	"github.com/RyanBlaney/sonido-ssvep/linalg"
)

// FeatureSet holds the per-target scores of one window
type FeatureSet struct {
	// CCA is the sum-normalized canonical correlation vector (FBCCA mixed when a filter bank is set)
	CCA []float64 `json:"cca" yaml:"cca"`

	// MEC is the sum-normalized minimum energy combination vector
	MEC []float64 `json:"mec" yaml:"mec"`

	// Features is zscore(CCA) + zscore(MEC)
	Features []float64 `json:"features" yaml:"features"`
}

// FeatureComputer scores windows against a fixed harmonic reference bank.
// Every handle it allocates while scoring is released before the call returns.
type FeatureComputer struct {
	backend linalg.Backend
	groups  []HarmonicGroup
	bank    *filters.FilterBank
	mixing  Mixing
	rows    int
	cols    int
	workers int
}

// NewFeatureComputer creates a computer for rows x cols windows. bank may be
// nil to disable sub-band mixing.
func NewFeatureComputer(backend linalg.Backend, groups []HarmonicGroup, bank *filters.FilterBank, mixing Mixing, rows, cols, workers int) *FeatureComputer {
	return &FeatureComputer{
		backend: backend,
		groups:  groups,
		bank:    bank,
		mixing:  mixing,
		rows:    rows,
		cols:    cols,
		workers: max(workers, 1),
	}
}

func (fc *FeatureComputer) pool() *pool.ErrorPool {
	return pool.New().WithMaxGoroutines(fc.workers).WithErrors()
}

func (fc *FeatureComputer) checkWindow(window []float64) error {
	if len(window) != fc.rows*fc.cols {
		return fmt.Errorf("%w: window holds %d values, expected %dx%d", linalg.ErrDimension, len(window), fc.rows, fc.cols)
	}
	return nil
}

func (fc *FeatureComputer) filtered() bool {
	return fc.bank != nil && fc.bank.Len() > 0
}

// closeScope merges the scope release error into err
func closeScope(scope *linalg.Scope, err *error) {
	if cerr := scope.Close(); cerr != nil {
		*err = errors.Join(*err, cerr)
	}
}

// correlate scores one factorized window against every group in parallel
func (fc *FeatureComputer) correlate(window linalg.Handle, score func(x, y linalg.Handle) (float64, error)) ([]float64, error) {
	out := make([]float64, len(fc.groups))

	p := fc.pool()
	for i, g := range fc.groups {
		p.Go(func() error {
			v, err := score(window, g.MatrixID)
			if err != nil {
				return fmt.Errorf("target %.2f Hz: %w", g.Frequency, err)
			}
			out[i] = v
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ComputeCanonicalCorrelations returns the sum-normalized CCA score of every target.
// With a filter bank the per-band correlations are mixed as Σ w(n)·corr².
func (fc *FeatureComputer) ComputeCanonicalCorrelations(window []float64) (scores []float64, err error) {
	if err := fc.checkWindow(window); err != nil {
		return nil, err
	}

	scope := linalg.NewScope(fc.backend)
	defer closeScope(scope, &err)

	if !fc.filtered() {
		h, err := scope.AllocateQR(window, fc.rows, fc.cols)
		if err != nil {
			return nil, fmt.Errorf("window: %w", err)
		}

		corr, err := fc.correlate(h, fc.backend.CanonicalCorrelation)
		if err != nil {
			return nil, fmt.Errorf("canonical correlation: %w", err)
		}
		return common.SumNormalize(corr), nil
	}

	bands := fc.bank.Len()
	perBand := make([][]float64, bands)

	p := fc.pool()
	for n := range bands {
		p.Go(func() error {
			data, err := fc.bank.ApplyColumns(n, window, fc.rows, fc.cols)
			if err != nil {
				return err
			}

			h, err := scope.AllocateQR(data, fc.rows, fc.cols)
			if err != nil {
				return fmt.Errorf("sub-band %s: %w", fc.bank.Band(n), err)
			}

			row := make([]float64, len(fc.groups))
			for t, g := range fc.groups {
				v, err := fc.backend.CanonicalCorrelation(h, g.MatrixID)
				if err != nil {
					return fmt.Errorf("sub-band %s, target %.2f Hz: %w", fc.bank.Band(n), g.Frequency, err)
				}
				row[t] = v
			}
			perBand[n] = row
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("filter bank correlation: %w", err)
	}

	mixed := make([]float64, len(fc.groups))
	for n, row := range perBand {
		w := fc.mixing.Weight(n)
		for t, v := range row {
			if math.IsNaN(v) {
				continue
			}
			mixed[t] += w * v * v
		}
	}

	return common.SumNormalize(mixed), nil
}

// ComputeMinimumEnergyCombinations returns the sum-normalized MEC score of every target
func (fc *FeatureComputer) ComputeMinimumEnergyCombinations(window []float64) (scores []float64, err error) {
	if err := fc.checkWindow(window); err != nil {
		return nil, err
	}

	scope := linalg.NewScope(fc.backend)
	defer closeScope(scope, &err)

	h, err := scope.AllocateQR(window, fc.rows, fc.cols)
	if err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}

	mec, err := fc.correlate(h, fc.backend.MinimumEnergyCombination)
	if err != nil {
		return nil, fmt.Errorf("minimum energy combination: %w", err)
	}
	return common.SumNormalize(mec), nil
}

// ComputeFeatures combines the z-scored CCA and MEC vectors into one feature
// vector. NaN scores are zeroed before normalization.
func (fc *FeatureComputer) ComputeFeatures(window []float64) (*FeatureSet, error) {
	cca, err := fc.ComputeCanonicalCorrelations(window)
	if err != nil {
		return nil, err
	}

	mec, err := fc.ComputeMinimumEnergyCombinations(window)
	if err != nil {
		return nil, err
	}

	cca = common.ReplaceNaN(cca)
	mec = common.ReplaceNaN(mec)

	features := make([]float64, len(fc.groups))
	floats.AddTo(features, common.ZScore(cca), common.ZScore(mec))

	return &FeatureSet{
		CCA:      cca,
		MEC:      mec,
		Features: features,
	}, nil
}
