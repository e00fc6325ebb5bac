// Package session drives a classifier through a series of trials fed by a
// synthetic acquisition source.
package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-ssvep/algorithms/stats"
	"github.com/RyanBlaney/sonido-ssvep/internal/metrics"
	"github.com/RyanBlaney/sonido-ssvep/internal/synth"
	"github.com/RyanBlaney/sonido-ssvep/logging"
	"github.com/RyanBlaney/sonido-ssvep/ssvep"
)

// feedInterval is the pacing granularity of realtime feeding
const feedInterval = 10 * time.Millisecond

// Stimulus returns the flicker frequency presented during trial i
type Stimulus func(i int) float64

// Fixed presents the same frequency on every trial
func Fixed(freq float64) Stimulus {
	return func(int) float64 { return freq }
}

// Cycle presents the given frequencies in turn
func Cycle(freqs []float64) Stimulus {
	return func(i int) float64 { return freqs[i%len(freqs)] }
}

// Config controls trial pacing
type Config struct {
	// Realtime paces samples at the sampling rate; otherwise every trial is
	// fed exactly settling + window samples before classifying.
	Realtime bool

	// Rest is the pause between realtime trials
	Rest time.Duration
}

// Trial is the outcome of one presented stimulus
type Trial struct {
	Number   int                `json:"number" yaml:"number"`
	Stimulus float64            `json:"stimulus" yaml:"stimulus"`
	Expected int                `json:"expected" yaml:"expected"`
	Correct  bool               `json:"correct" yaml:"correct"`
	Result   *ssvep.TrialResult `json:"result" yaml:"result"`
}

// Summary aggregates a run
type Summary struct {
	Trials   int     `json:"trials" yaml:"trials"`
	Correct  int     `json:"correct" yaml:"correct"`
	Wrong    int     `json:"wrong" yaml:"wrong"`
	NoMatch  int     `json:"no_match" yaml:"no_match"`
	Timeouts int     `json:"timeouts" yaml:"timeouts"`
	Accuracy float64 `json:"accuracy" yaml:"accuracy"`
}

// Summarize counts outcomes of trials
func Summarize(trials []Trial) Summary {
	s := Summary{Trials: len(trials)}
	for _, t := range trials {
		switch {
		case t.Result.Outcome == ssvep.Timeout:
			s.Timeouts++
		case t.Result.Outcome == ssvep.NoMatch:
			s.NoMatch++
		case t.Correct:
			s.Correct++
		default:
			s.Wrong++
		}
	}
	if s.Trials > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Trials)
	}
	return s
}

// Runner presents stimuli to a classifier one trial at a time
type Runner struct {
	classifier *ssvep.Classifier
	source     synth.Config
	recorder   metrics.Recorder
	logger     logging.Logger
	cfg        Config
}

// NewRunner creates a runner. recorder and logger may be nil.
func NewRunner(classifier *ssvep.Classifier, source synth.Config, cfg Config, recorder metrics.Recorder, logger logging.Logger) *Runner {
	if recorder == nil {
		recorder = metrics.NoOpRecorder{}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Runner{
		classifier: classifier,
		source:     source,
		recorder:   recorder,
		logger:     logger.WithFields(logging.Fields{"component": "session"}),
		cfg:        cfg,
	}
}

// expectedTarget returns the index of the target flickering at freq, or -1
func (r *Runner) expectedTarget(freq float64) int {
	for i, g := range r.classifier.Groups() {
		if math.Abs(g.Frequency-freq) < 1e-9 {
			return i
		}
	}
	return -1
}

// Run presents n trials and returns their outcomes
func (r *Runner) Run(ctx context.Context, n int, stimulus Stimulus) ([]Trial, error) {
	trials := make([]Trial, 0, n)

	for i := range n {
		if err := ctx.Err(); err != nil {
			return trials, err
		}

		freq := stimulus(i)
		result, err := r.trial(ctx, i, freq)
		if err != nil {
			return trials, fmt.Errorf("trial %d (%.2f Hz): %w", i, freq, err)
		}

		expected := r.expectedTarget(freq)
		trial := Trial{
			Number:   i,
			Stimulus: freq,
			Expected: expected,
			Correct:  expected >= 0 && result.Outcome == expected,
			Result:   result,
		}
		trials = append(trials, trial)
		r.recorder.Trial(result, expected)

		r.logger.Info("Trial finished", logging.Fields{
			"trial":    i,
			"stimulus": freq,
			"outcome":  ssvep.OutcomeString(result.Outcome),
			"index":    result.Outcome,
			"correct":  trial.Correct,
		})

		if r.cfg.Realtime && r.cfg.Rest > 0 && i < n-1 {
			select {
			case <-ctx.Done():
				return trials, ctx.Err()
			case <-time.After(r.cfg.Rest):
			}
		}
	}

	return trials, nil
}

// Calibrate presents every target in turn for n trials and fits the
// per-target distribution of canonical correlation scores.
func (r *Runner) Calibrate(ctx context.Context, n int) ([]stats.Gaussian, error) {
	groups := r.classifier.Groups()
	freqs := make([]float64, len(groups))
	for i, g := range groups {
		freqs[i] = g.Frequency
	}

	trials, err := r.Run(ctx, n, Cycle(freqs))
	if err != nil {
		return nil, err
	}

	estimator := stats.NewBaselineEstimator(len(groups))
	for _, t := range trials {
		if t.Result.Features == nil {
			continue
		}
		if err := estimator.Add(t.Result.Features.CCA); err != nil {
			return nil, err
		}
	}

	baseline, err := estimator.Distributions()
	if err != nil {
		return nil, fmt.Errorf("calibration over %d trials: %w", n, err)
	}
	return baseline, nil
}

func (r *Runner) newSource(i int, freq float64) (*synth.Source, error) {
	cfg := r.source
	cfg.Frequency = freq
	cfg.Seed = r.source.Seed + uint64(i)
	return synth.NewSource(cfg)
}

// trial arms the classifier, feeds it and classifies once
func (r *Runner) trial(ctx context.Context, i int, freq float64) (*ssvep.TrialResult, error) {
	src, err := r.newSource(i, freq)
	if err != nil {
		return nil, err
	}

	r.classifier.SetActive(true)
	defer r.classifier.SetActive(false)

	if !r.cfg.Realtime {
		cfg := r.classifier.Config()
		feed(r.classifier, src, cfg.SettlingSamples()+cfg.WindowSize(), time.Now())
		return r.classifier.ClassifyTrial()
	}

	cfg := r.classifier.Config()
	presentation := cfg.SettlingDelay + cfg.TrialDuration

	var result *ssvep.TrialResult
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		return stream(gctx, done, r.classifier, src, r.source.SampleRate)
	})

	// classification starts once the stimulus has been shown for a full trial
	g.Go(func() error {
		defer close(done)
		select {
		case <-gctx.Done():
			return gctx.Err()
		case <-time.After(presentation):
		}

		var err error
		result, err = r.classifier.ClassifyTrial()
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// feed pushes n samples without pacing
func feed(c *ssvep.Classifier, src *synth.Source, n int, start time.Time) {
	for range n {
		values, idx := src.Next()
		c.Accept(ssvep.Sample{Values: values, Index: idx, Timestamp: start.Add(src.Offset(idx))})
	}
}

// stream pushes samples at sampleRate until done is closed or ctx ends
func stream(ctx context.Context, done <-chan struct{}, c *ssvep.Classifier, src *synth.Source, sampleRate float64) error {
	ticker := time.NewTicker(feedInterval)
	defer ticker.Stop()

	start := time.Now()
	var sent int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		case now := <-ticker.C:
			due := int(now.Sub(start).Seconds() * sampleRate)
			feed(c, src, due-sent, start)
			sent = max(due, sent)
		}
	}
}
