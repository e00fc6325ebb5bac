package ssvep

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-ssvep/algorithms/common"
	"github.com/RyanBlaney/sonido-ssvep/algorithms/filters"
	"github.com/RyanBlaney/sonido-ssvep/linalg"
	"github.com/RyanBlaney/sonido-ssvep/logging"
)

// ErrClosed is returned by Classify after Close
var ErrClosed = errors.New("classifier closed")

// Sample is one multichannel reading from the acquisition source
type Sample struct {
	Values    []float64
	Timestamp time.Time
	Index     uint64
}

// TrialResult describes one Classify call
type TrialResult struct {
	ID        string        `json:"id" yaml:"id"`
	Outcome   int           `json:"outcome" yaml:"outcome"`
	Frequency float64       `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	Features  *FeatureSet   `json:"features,omitempty" yaml:"features,omitempty"`
	Started   time.Time     `json:"started" yaml:"started"`
	Waited    time.Duration `json:"waited" yaml:"waited"`
	Computed  time.Duration `json:"computed" yaml:"computed"`
}

// TimedOut reports whether the window failed to fill in time
func (r *TrialResult) TimedOut() bool {
	return r.Outcome == Timeout
}

// Matched reports whether a target was selected
func (r *TrialResult) Matched() bool {
	return r.Outcome >= 0
}

// Option customizes a Classifier
type Option func(*Classifier)

// WithClock replaces the wall clock used for trial timeouts
func WithClock(c clock.Clock) Option {
	return func(cl *Classifier) {
		if c != nil {
			cl.clock = c
		}
	}
}

// WithLogger sets the classifier logger
func WithLogger(l logging.Logger) Option {
	return func(cl *Classifier) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithPredictor overrides the predictor selected by Config.Predictor
func WithPredictor(p Predictor) Option {
	return func(cl *Classifier) {
		if p != nil {
			cl.predictor = p
		}
	}
}

// Classifier is the streaming SSVEP decoder. One goroutine feeds samples
// through Accept while another runs trials with Classify.
type Classifier struct {
	cfg       Config
	backend   linalg.Backend
	groups    []HarmonicGroup
	features  *FeatureComputer
	predictor Predictor
	clock     clock.Clock
	logger    logging.Logger

	windowSize int
	settling   int

	mu      sync.Mutex
	buffer  *common.FrameBuffer
	frame   []float64
	active  bool
	discard int
	dropped uint64
	filled  chan struct{}

	// inflight is read-held while a trial scores its window. Close takes it
	// exclusively before releasing the references.
	inflight  sync.RWMutex
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// New validates cfg, builds the harmonic reference bank on backend and
// returns an inactive classifier. A nil backend selects the gonum backend.
func New(cfg Config, backend linalg.Backend, opts ...Option) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if backend == nil {
		backend = linalg.NewGonumBackend()
	}

	var bank *filters.FilterBank
	if len(cfg.FilterBank) > 0 {
		var err error
		bank, err = filters.NewFilterBank(cfg.SamplingRate, cfg.FilterBank)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}

	c := &Classifier{
		cfg:        cfg,
		backend:    backend,
		predictor:  newPredictor(cfg),
		clock:      clock.New(),
		logger:     logging.GetGlobalLogger(),
		windowSize: cfg.WindowSize(),
		settling:   cfg.SettlingSamples(),
		frame:      make([]float64, len(cfg.Channels)),
		filled:     make(chan struct{}, 1),
		closed:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithFields(logging.Fields{"component": "ssvep_classifier"})

	if c.cfg.PollInterval <= 0 {
		c.cfg.PollInterval = 10 * time.Millisecond
	}

	freqs, err := cfg.Frequencies()
	if err != nil {
		return nil, err
	}

	c.groups, err = buildHarmonicBank(backend, freqs, cfg.SamplingRate, c.windowSize, cfg.Harmonics)
	if err != nil {
		return nil, fmt.Errorf("failed to build harmonic references: %w", err)
	}

	c.features = NewFeatureComputer(backend, c.groups, bank, cfg.Mixing, c.windowSize, len(cfg.Channels), cfg.Workers())
	c.buffer = common.NewFrameBuffer(c.windowSize, len(cfg.Channels))

	c.logger.Debug("Classifier created", logging.Fields{
		"targets":          len(c.groups),
		"harmonics":        cfg.Harmonics,
		"channels":         len(cfg.Channels),
		"window_size":      c.windowSize,
		"settling_samples": c.settling,
		"sub_bands":        len(cfg.FilterBank),
		"workers":          cfg.Workers(),
	})

	return c, nil
}

// Config returns the configuration the classifier was built with
func (c *Classifier) Config() Config {
	return c.cfg
}

// Groups returns the harmonic reference bank
func (c *Classifier) Groups() []HarmonicGroup {
	return append([]HarmonicGroup(nil), c.groups...)
}

// WindowSize returns the number of samples per classification window
func (c *Classifier) WindowSize() int {
	return c.windowSize
}

// FeatureComputer exposes the scoring pipeline, e.g. for calibration
func (c *Classifier) FeatureComputer() *FeatureComputer {
	return c.features
}

// SetActive arms or disarms sample admission. Every change of state clears
// the buffer and restarts the settling delay.
func (c *Classifier) SetActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == active {
		return
	}

	c.active = active
	c.discard = c.settling
	c.buffer.Clear()

	select {
	case <-c.filled:
	default:
	}

	c.logger.Debug("Activation changed", logging.Fields{
		"active":  active,
		"discard": c.discard,
	})
}

// Active reports whether samples are admitted
func (c *Classifier) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Buffered returns the number of samples in the sliding window
func (c *Classifier) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.Len()
}

// Dropped returns the number of samples rejected for missing channels
func (c *Classifier) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Accept admits one sample. It never blocks beyond the buffer lock.
// Samples are ignored while inactive or during the settling delay.
func (c *Classifier) Accept(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}

	if c.discard > 0 {
		c.discard--
		return
	}

	for i, ch := range c.cfg.Channels {
		if ch >= len(s.Values) {
			c.dropped++
			return
		}
		c.frame[i] = s.Values[ch]
	}

	// width always matches
	_, _ = c.buffer.Push(c.frame)

	if c.buffer.IsFull() {
		select {
		case c.filled <- struct{}{}:
		default:
		}
	}
}

// snapshot copies a full window oldest-to-newest, or returns nil
func (c *Classifier) snapshot() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buffer.Len() < c.windowSize {
		return nil
	}

	window := make([]float64, c.windowSize*c.buffer.Width())
	if _, err := c.buffer.CopyTo(window); err != nil {
		return nil
	}
	return window
}

// waitForWindow blocks until a full window is buffered or the trial duration
// elapses. The buffer is not consumed.
func (c *Classifier) waitForWindow(start time.Time) []float64 {
	for {
		if window := c.snapshot(); window != nil {
			return window
		}

		if c.clock.Since(start) > c.cfg.TrialDuration {
			return nil
		}

		select {
		case <-c.filled:
		case <-c.clock.After(c.cfg.PollInterval):
		case <-c.closed:
			return nil
		}
	}
}

// Classify runs one trial and returns a target index, Timeout or NoMatch
func (c *Classifier) Classify() (int, error) {
	result, err := c.ClassifyTrial()
	if err != nil {
		return NoMatch, err
	}
	return result.Outcome, nil
}

// ClassifyTrial runs one trial and reports its features and timings
func (c *Classifier) ClassifyTrial() (*TrialResult, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}

	result := &TrialResult{
		ID:      uuid.NewString(),
		Outcome: Timeout,
		Started: c.clock.Now(),
	}
	logger := c.logger.WithFields(logging.Fields{"trial_id": result.ID})

	window := c.waitForWindow(result.Started)
	result.Waited = c.clock.Since(result.Started)

	if window == nil {
		select {
		case <-c.closed:
			return nil, ErrClosed
		default:
		}

		logger.Debug("Trial timed out", logging.Fields{
			"waited":   result.Waited,
			"buffered": c.Buffered(),
		})
		return result, nil
	}

	c.inflight.RLock()
	defer c.inflight.RUnlock()

	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}

	computeStart := c.clock.Now()
	fs, err := c.features.ComputeFeatures(window)
	if err != nil {
		logger.Error(err, "Feature computation failed")
		return nil, fmt.Errorf("trial %s: %w", result.ID, err)
	}
	result.Computed = c.clock.Since(computeStart)

	result.Features = fs
	result.Outcome = c.predictor.Predict(fs)
	if result.Matched() {
		result.Frequency = c.groups[result.Outcome].Frequency
	}

	logger.Debug("Trial classified", logging.Fields{
		"outcome":   OutcomeString(result.Outcome),
		"index":     result.Outcome,
		"frequency": result.Frequency,
		"features":  fs.Features,
		"waited":    result.Waited,
		"computed":  result.Computed,
	})

	return result, nil
}

// Close releases the harmonic reference handles. A trial waiting for its
// window returns ErrClosed; a trial already scoring finishes first. It is
// safe to call more than once; later calls return the first result.
func (c *Classifier) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.inflight.Lock()
		defer c.inflight.Unlock()

		c.closeErr = releaseHarmonicBank(c.backend, c.groups)
		if c.closeErr != nil {
			c.logger.Error(c.closeErr, "Failed to release harmonic references")
		}
	})
	return c.closeErr
}
