package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrNoObservations is returned when a baseline is requested before any data was added
var ErrNoObservations = errors.New("no baseline observations")

// Gaussian is a univariate normal distribution learned for one target
type Gaussian struct {
	Mean   float64 `json:"mean" yaml:"mean" mapstructure:"mean"`
	StdDev float64 `json:"std_dev" yaml:"std_dev" mapstructure:"std_dev"`
}

// Density returns the probability density at x.
// A distribution with no spread returns +Inf at its mean and 0 elsewhere.
func (g Gaussian) Density(x float64) float64 {
	if g.StdDev <= 0 {
		if x == g.Mean {
			return math.Inf(1)
		}
		return 0
	}
	return distuv.Normal{Mu: g.Mean, Sigma: g.StdDev}.Prob(x)
}

// Validate rejects NaN parameters and negative spread
func (g Gaussian) Validate() error {
	if math.IsNaN(g.Mean) || math.IsInf(g.Mean, 0) {
		return fmt.Errorf("mean must be finite, got %v", g.Mean)
	}
	if math.IsNaN(g.StdDev) || g.StdDev < 0 {
		return fmt.Errorf("standard deviation must be non-negative, got %v", g.StdDev)
	}
	return nil
}

// BaselineEstimator accumulates per-target score vectors from calibration
// trials and fits one Gaussian per target.
type BaselineEstimator struct {
	targets int
	columns [][]float64
}

// NewBaselineEstimator creates an estimator for the given number of targets
func NewBaselineEstimator(targets int) *BaselineEstimator {
	return &BaselineEstimator{
		targets: targets,
		columns: make([][]float64, targets),
	}
}

// Add records one score vector. NaN entries are skipped for their target.
func (be *BaselineEstimator) Add(scores []float64) error {
	if len(scores) != be.targets {
		return fmt.Errorf("score vector has %d targets, expected %d", len(scores), be.targets)
	}
	for i, v := range scores {
		if math.IsNaN(v) {
			continue
		}
		be.columns[i] = append(be.columns[i], v)
	}
	return nil
}

// Count returns the number of observations recorded for target i
func (be *BaselineEstimator) Count(i int) int {
	return len(be.columns[i])
}

// Distributions fits the per-target Gaussians
func (be *BaselineEstimator) Distributions() ([]Gaussian, error) {
	out := make([]Gaussian, be.targets)
	for i, col := range be.columns {
		switch len(col) {
		case 0:
			return nil, fmt.Errorf("target %d: %w", i, ErrNoObservations)
		case 1:
			out[i] = Gaussian{Mean: col[0]}
		default:
			mean, std := stat.MeanStdDev(col, nil)
			out[i] = Gaussian{Mean: mean, StdDev: std}
		}
	}
	return out, nil
}
