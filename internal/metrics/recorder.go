// Package metrics publishes trial outcomes to a DogStatsD agent.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/RyanBlaney/sonido-ssvep/logging"
	"github.com/RyanBlaney/sonido-ssvep/ssvep"
)

// Namespace prefixes every metric name
const Namespace = "ssvep."

// Config selects the statsd sink. An empty Address disables metrics.
type Config struct {
	Address string   `json:"address" yaml:"address" mapstructure:"address"`
	Tags    []string `json:"tags,omitempty" yaml:"tags,omitempty" mapstructure:"tags"`
}

// Recorder receives one call per finished trial
type Recorder interface {
	Trial(result *ssvep.TrialResult, expected int)
	Close() error
}

// New returns a statsd recorder, or a no-op recorder when cfg has no address
func New(cfg Config, logger logging.Logger) (Recorder, error) {
	if cfg.Address == "" {
		return NoOpRecorder{}, nil
	}
	return NewStatsdRecorder(cfg, logger)
}

// StatsdRecorder counts outcomes and times trials through DogStatsD
type StatsdRecorder struct {
	client statsd.ClientInterface
	logger logging.Logger
}

// NewStatsdRecorder connects a DogStatsD client to cfg.Address
func NewStatsdRecorder(cfg Config, logger logging.Logger) (*StatsdRecorder, error) {
	client, err := statsd.New(cfg.Address,
		statsd.WithNamespace(Namespace),
		statsd.WithTags(cfg.Tags),
		statsd.WithoutTelemetry(),
		statsd.WithoutClientSideAggregation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client for %s: %w", cfg.Address, err)
	}

	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &StatsdRecorder{
		client: client,
		logger: logger.WithFields(logging.Fields{"component": "metrics"}),
	}, nil
}

// Trial implements Recorder. expected is the stimulated target index, or a
// negative value when unknown.
func (r *StatsdRecorder) Trial(result *ssvep.TrialResult, expected int) {
	tags := []string{"outcome:" + ssvep.OutcomeString(result.Outcome)}
	if result.Matched() {
		tags = append(tags, "target:"+strconv.Itoa(result.Outcome))
	}

	errs := []error{
		r.client.Incr("trials", tags, 1),
		r.client.Timing("trial.wait", result.Waited, tags, 1),
	}

	if result.Features != nil {
		errs = append(errs, r.client.Timing("trial.compute", result.Computed, tags, 1))
	}

	if expected >= 0 {
		name := "trials.incorrect"
		if result.Outcome == expected {
			name = "trials.correct"
		}
		errs = append(errs, r.client.Incr(name, tags, 1))
	}

	for _, err := range errs {
		if err != nil {
			r.logger.Debug("Failed to send metric", logging.Fields{"error": err.Error()})
		}
	}
}

// Close flushes pending metrics
func (r *StatsdRecorder) Close() error {
	return r.client.Close()
}

// NoOpRecorder discards every trial
type NoOpRecorder struct{}

func (NoOpRecorder) Trial(*ssvep.TrialResult, int) {}
func (NoOpRecorder) Close() error                  { return nil }
