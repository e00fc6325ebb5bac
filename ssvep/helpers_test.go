package ssvep

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-ssvep/internal/synth"
	"github.com/RyanBlaney/sonido-ssvep/linalg"
)

var errInjected = errors.New("injected failure")

// testConfig is four targets at 13-16 Hz, 2 harmonics, 4 channels and a
// 1000 sample window.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Patterns = SingleFrequencyPatterns(13, 14, 15, 16)
	cfg.Harmonics = 2
	cfg.Channels = []int{0, 1, 2, 3}
	cfg.SettlingDelay = 0
	cfg.Parallelism = 2
	return cfg
}

// recording returns a source of 4 channel samples with a response at freq
func recording(t *testing.T, freq float64, seed uint64) *synth.Source {
	t.Helper()
	src, err := synth.NewSource(synth.Config{
		SampleRate: 250,
		Channels:   4,
		Frequency:  freq,
		Amplitude:  1,
		PhaseStep:  0.3,
		Noise:      0.1,
		Seed:       seed,
	})
	require.NoError(t, err)
	return src
}

// faultyBackend wraps a real backend and fails selected calls
type faultyBackend struct {
	linalg.Backend

	mu          sync.Mutex
	allocations int
	failAlloc   int // 1-based Allocate call that fails, 0 for none
	failQR      bool
	failMEC     bool
	failRelease bool
}

func newFaultyBackend() *faultyBackend {
	return &faultyBackend{Backend: linalg.NewGonumBackend()}
}

func (f *faultyBackend) Allocate(data []float64, rows, cols int) (linalg.Handle, error) {
	f.mu.Lock()
	f.allocations++
	fail := f.allocations == f.failAlloc
	f.mu.Unlock()

	if fail {
		return 0, errInjected
	}
	return f.Backend.Allocate(data, rows, cols)
}

func (f *faultyBackend) ComputeQR(h linalg.Handle) error {
	f.mu.Lock()
	fail := f.failQR
	f.mu.Unlock()

	if fail {
		return errInjected
	}
	return f.Backend.ComputeQR(h)
}

func (f *faultyBackend) MinimumEnergyCombination(x, y linalg.Handle) (float64, error) {
	f.mu.Lock()
	fail := f.failMEC
	f.mu.Unlock()

	if fail {
		return 0, errInjected
	}
	return f.Backend.MinimumEnergyCombination(x, y)
}

func (f *faultyBackend) Release(h linalg.Handle) error {
	f.mu.Lock()
	fail := f.failRelease
	f.mu.Unlock()

	if fail {
		return errInjected
	}
	return f.Backend.Release(h)
}

func (f *faultyBackend) set(apply func(f *faultyBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	apply(f)
}
