package ssvep

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-ssvep/algorithms/common"
	"github.com/RyanBlaney/sonido-ssvep/algorithms/filters"
	"github.com/RyanBlaney/sonido-ssvep/linalg"
)

// newTestComputer builds a computer over testConfig targets on b
func newTestComputer(t *testing.T, b linalg.Backend, bands []filters.Band) (*FeatureComputer, []HarmonicGroup) {
	t.Helper()
	cfg := testConfig()

	freqs, err := cfg.Frequencies()
	require.NoError(t, err)

	groups, err := buildHarmonicBank(b, freqs, cfg.SamplingRate, cfg.WindowSize(), cfg.Harmonics)
	require.NoError(t, err)
	t.Cleanup(func() { _ = releaseHarmonicBank(b, groups) })

	var bank *filters.FilterBank
	if len(bands) > 0 {
		bank, err = filters.NewFilterBank(cfg.SamplingRate, bands)
		require.NoError(t, err)
	}

	return NewFeatureComputer(b, groups, bank, Mixing{A: 1.25, B: 0.25}, cfg.WindowSize(), len(cfg.Channels), cfg.Workers()), groups
}

func TestComputeCanonicalCorrelations(t *testing.T) {
	b := linalg.NewGonumBackend()
	fc, groups := newTestComputer(t, b, nil)

	cca, err := fc.ComputeCanonicalCorrelations(recording(t, 14, 3).Window(1000))
	require.NoError(t, err)
	require.Len(t, cca, 4)

	assert.InDelta(t, 1, floats.Sum(cca), 1e-9)
	assert.Equal(t, 1, common.ArgMax(cca))
	assert.Equal(t, len(groups), b.Live())
}

func TestComputeMinimumEnergyCombinations(t *testing.T) {
	b := linalg.NewGonumBackend()
	fc, groups := newTestComputer(t, b, nil)

	mec, err := fc.ComputeMinimumEnergyCombinations(recording(t, 16, 4).Window(1000))
	require.NoError(t, err)

	assert.InDelta(t, 1, floats.Sum(mec), 1e-9)
	assert.Equal(t, 3, common.ArgMax(mec))
	assert.Equal(t, len(groups), b.Live())
}

func TestComputeFeaturesNormalization(t *testing.T) {
	b := linalg.NewGonumBackend()
	fc, _ := newTestComputer(t, b, nil)

	fs, err := fc.ComputeFeatures(recording(t, 15, 5).Window(1000))
	require.NoError(t, err)
	require.Len(t, fs.Features, 4)

	assert.Equal(t, 2, common.ArgMax(fs.Features))
	assert.InDelta(t, 0, common.Mean(fs.Features), 1e-9)

	expected := make([]float64, 4)
	floats.AddTo(expected, common.ZScore(fs.CCA), common.ZScore(fs.MEC))
	assert.InDeltaSlice(t, expected, fs.Features, 1e-12)
}

func TestComputeFeaturesFlatWindowHasNoNaN(t *testing.T) {
	b := linalg.NewGonumBackend()
	fc, groups := newTestComputer(t, b, nil)

	fs, err := fc.ComputeFeatures(make([]float64, 4000))
	require.NoError(t, err)

	for _, v := range append(append(fs.CCA, fs.MEC...), fs.Features...) {
		assert.False(t, math.IsNaN(v))
	}
	assert.Equal(t, []float64{0, 0, 0, 0}, fs.Features)
	assert.Equal(t, len(groups), b.Live())
}

func TestComputeFeaturesWithFilterBank(t *testing.T) {
	b := linalg.NewGonumBackend()
	bands := []filters.Band{{Low: 12, High: 50}, {Low: 26, High: 50}, {Low: 40, High: 50}}
	fc, groups := newTestComputer(t, b, bands)

	src := recording(t, 13, 6)
	fs, err := fc.ComputeFeatures(src.Window(1000))
	require.NoError(t, err)

	assert.InDelta(t, 1, floats.Sum(fs.CCA), 1e-9)
	assert.Equal(t, 0, common.ArgMax(fs.CCA))
	assert.Equal(t, 0, common.ArgMax(fs.Features))
	assert.Equal(t, len(groups), b.Live())
}

// scriptedBackend answers CanonicalCorrelation from a fixed sub-band x target
// table. Matrices allocated before bands is set are references, numbered in
// allocation order; later ones are matched to a sub-band by their data.
type scriptedBackend struct {
	mu      sync.Mutex
	next    linalg.Handle
	targets int
	owner   map[linalg.Handle]int // >= 0 sub-band, < 0 -(target+1)
	bands   [][]float64
	corr    [][]float64
}

func newScriptedBackend(corr [][]float64) *scriptedBackend {
	return &scriptedBackend{owner: map[linalg.Handle]int{}, corr: corr}
}

func (b *scriptedBackend) setBands(bands [][]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bands = bands
}

func (b *scriptedBackend) Allocate(data []float64, rows, cols int) (linalg.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	if b.bands == nil {
		b.owner[b.next] = -(b.targets + 1)
		b.targets++
		return b.next, nil
	}

	for i, band := range b.bands {
		if floats.Equal(band, data) {
			b.owner[b.next] = i
			return b.next, nil
		}
	}
	return 0, errors.New("window matches no sub-band")
}

func (b *scriptedBackend) ComputeQR(h linalg.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.owner[h]; !ok {
		return linalg.ErrUnknownHandle
	}
	return nil
}

func (b *scriptedBackend) CanonicalCorrelation(x, y linalg.Handle) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	band, ok := b.owner[x]
	if !ok || band < 0 {
		return 0, linalg.ErrUnknownHandle
	}
	ref, ok := b.owner[y]
	if !ok || ref >= 0 {
		return 0, linalg.ErrUnknownHandle
	}
	return b.corr[band][-ref-1], nil
}

func (b *scriptedBackend) MinimumEnergyCombination(x, y linalg.Handle) (float64, error) {
	return 0, nil
}

func (b *scriptedBackend) Release(h linalg.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.owner[h]; !ok {
		return linalg.ErrUnknownHandle
	}
	delete(b.owner, h)
	return nil
}

func (b *scriptedBackend) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.owner)
}

func (b *scriptedBackend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.owner)
}

func TestFilterBankMixingWeightsSquaredCorrelations(t *testing.T) {
	corr := [][]float64{
		{0.9, 0.2, 0.3, 0.1},
		{0.5, math.NaN(), 0.4, 0.2},
		{0.3, 0.1, 0.6, 0.2},
	}
	bands := []filters.Band{{Low: 6, High: 90}, {Low: 20, High: 90}, {Low: 34, High: 90}}

	b := newScriptedBackend(corr)
	fc, groups := newTestComputer(t, b, bands)
	require.Len(t, groups, 4)

	cfg := testConfig()
	window := recording(t, 15, 9).Window(cfg.WindowSize())

	bank, err := filters.NewFilterBank(cfg.SamplingRate, bands)
	require.NoError(t, err)
	filtered := make([][]float64, len(bands))
	for n := range bands {
		filtered[n], err = bank.ApplyColumns(n, window, cfg.WindowSize(), len(cfg.Channels))
		require.NoError(t, err)
	}
	b.setBands(filtered)

	expected := make([]float64, 4)
	for n, row := range corr {
		w := math.Pow(float64(n+1), -1.25) + 0.25
		for target, rho := range row {
			if !math.IsNaN(rho) {
				expected[target] += w * rho * rho
			}
		}
	}
	floats.Scale(1/floats.Sum(expected), expected)

	cca, err := fc.ComputeCanonicalCorrelations(window)
	require.NoError(t, err)
	assert.InDeltaSlice(t, expected, cca, 1e-12)
	assert.Equal(t, len(groups), b.Live())
}

func TestComputeFeaturesHandleHygiene(t *testing.T) {
	b := linalg.NewGonumBackend()
	fc, groups := newTestComputer(t, b, []filters.Band{{Low: 6, High: 90}, {Low: 20, High: 90}})
	src := recording(t, 15, 7)

	for range 5 {
		_, err := fc.ComputeFeatures(src.Window(1000))
		require.NoError(t, err)
		assert.Equal(t, len(groups), b.Live())
	}
}

func TestComputeFeaturesReleasesOnFailure(t *testing.T) {
	b := newFaultyBackend()
	fc, groups := newTestComputer(t, b, nil)
	window := recording(t, 15, 8).Window(1000)

	b.set(func(f *faultyBackend) { f.failMEC = true })
	_, err := fc.ComputeFeatures(window)
	assert.True(t, errors.Is(err, errInjected))
	assert.Equal(t, len(groups), b.Live())

	b.set(func(f *faultyBackend) {
		f.failMEC = false
		f.failQR = true
	})
	_, err = fc.ComputeCanonicalCorrelations(window)
	assert.True(t, errors.Is(err, errInjected))
	assert.Equal(t, len(groups), b.Live())
}

func TestComputeFeaturesReportsReleaseFailure(t *testing.T) {
	b := newFaultyBackend()
	fc, _ := newTestComputer(t, b, nil)

	b.set(func(f *faultyBackend) { f.failRelease = true })
	defer b.set(func(f *faultyBackend) { f.failRelease = false })

	_, err := fc.ComputeMinimumEnergyCombinations(recording(t, 15, 9).Window(1000))
	assert.True(t, errors.Is(err, errInjected))
}

func TestComputeFeaturesRejectsWrongWindow(t *testing.T) {
	b := linalg.NewGonumBackend()
	fc, groups := newTestComputer(t, b, nil)

	_, err := fc.ComputeFeatures(make([]float64, 10))
	assert.True(t, errors.Is(err, linalg.ErrDimension))
	assert.Equal(t, len(groups), b.Live())
}
