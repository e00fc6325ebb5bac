package ssvep

import (
	"math"

	"github.com/RyanBlaney/sonido-ssvep/algorithms/common"
	"github.com/RyanBlaney/sonido-ssvep/algorithms/stats"
)

// Classification sentinels. Non-negative results are target indices.
const (
	// Timeout means the window did not fill within the trial duration
	Timeout = -1

	// NoMatch means the window filled but no target qualified
	NoMatch = -2
)

// OutcomeString renders a classification result for logs
func OutcomeString(outcome int) string {
	switch outcome {
	case Timeout:
		return "timeout"
	case NoMatch:
		return "no_match"
	default:
		return "target"
	}
}

// Predictor turns the features of one window into a target index or NoMatch
type Predictor interface {
	Predict(fs *FeatureSet) int
}

// MaxScorePredictor picks the highest feature that reaches Threshold
type MaxScorePredictor struct {
	Threshold float64
}

// Predict implements Predictor
func (p MaxScorePredictor) Predict(fs *FeatureSet) int {
	return PredictMaxScore(fs.Features, p.Threshold)
}

// PredictMaxScore returns the index of the maximum score if it is at least
// threshold, NoMatch otherwise.
func PredictMaxScore(scores []float64, threshold float64) int {
	best := common.ArgMax(scores)
	if best < 0 || math.IsNaN(scores[best]) || scores[best] < threshold {
		return NoMatch
	}
	return best
}

// StatisticsPredictor compares the CCA vector against per-target baselines
// learned during calibration. Among targets whose score reaches the baseline
// mean it picks the one with the lowest density.
type StatisticsPredictor struct {
	Baseline []stats.Gaussian
}

// Predict implements Predictor
func (p StatisticsPredictor) Predict(fs *FeatureSet) int {
	return PredictStatistics(fs.CCA, p.Baseline)
}

// PredictStatistics applies the baseline rule to raw scores. A baseline whose
// length differs from scores never matches.
func PredictStatistics(scores []float64, baseline []stats.Gaussian) int {
	if len(scores) != len(baseline) {
		return NoMatch
	}

	result := NoMatch
	lowest := math.Inf(1)
	for i, v := range scores {
		if math.IsNaN(v) || v < baseline[i].Mean {
			continue
		}
		d := baseline[i].Density(v)
		if result == NoMatch || d < lowest {
			result = i
			lowest = d
		}
	}
	return result
}

func newPredictor(cfg Config) Predictor {
	if cfg.Predictor == PredictorStatistics {
		return StatisticsPredictor{Baseline: append([]stats.Gaussian(nil), cfg.Baseline...)}
	}
	return MaxScorePredictor{Threshold: cfg.Threshold}
}
