package linalg

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// defaultRankTolerance is relative to the largest column norm / R diagonal
	defaultRankTolerance = 1e-10

	// defaultNuisanceEnergy is the share of residual energy the MEC
	// combination is allowed to keep.
	defaultNuisanceEnergy = 0.1
)

type matrix struct {
	raw        *mat.Dense
	centered   *mat.Dense // column-centered copy, set by ComputeQR
	q          *mat.Dense // orthonormal basis of the centered column space; nil when rank is 0
	factorized bool
}

// GonumBackend is an in-process Backend built on gonum/mat.
type GonumBackend struct {
	mu       sync.RWMutex
	next     Handle
	matrices map[Handle]matrix

	rankTol        float64
	nuisanceEnergy float64
}

// NewGonumBackend creates an empty backend
func NewGonumBackend() *GonumBackend {
	return &GonumBackend{
		matrices:       make(map[Handle]matrix),
		rankTol:        defaultRankTolerance,
		nuisanceEnergy: defaultNuisanceEnergy,
	}
}

// Allocate copies data into a new rows x cols matrix
func (b *GonumBackend) Allocate(data []float64, rows, cols int) (Handle, error) {
	if rows <= 0 || cols <= 0 {
		return 0, fmt.Errorf("%w: cannot allocate %dx%d", ErrDimension, rows, cols)
	}
	if len(data) != rows*cols {
		return 0, fmt.Errorf("%w: %d values for %dx%d", ErrDimension, len(data), rows, cols)
	}

	buf := make([]float64, len(data))
	copy(buf, data)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	h := b.next
	b.matrices[h] = matrix{raw: mat.NewDense(rows, cols, buf)}
	return h, nil
}

func (b *GonumBackend) lookup(h Handle) (matrix, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	m, ok := b.matrices[h]
	if !ok {
		return matrix{}, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return m, nil
}

// ComputeQR centers the columns and keeps the thin Q of a Householder QR,
// restricted to the numerical rank. Zero-variance columns do not contribute.
func (b *GonumBackend) ComputeQR(h Handle) error {
	m, err := b.lookup(h)
	if err != nil {
		return err
	}

	centered := centerColumns(m.raw)
	q := orthonormalBasis(centered, b.rankTol)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.matrices[h]; !ok {
		return fmt.Errorf("%w: %d released during factorization", ErrUnknownHandle, h)
	}
	m.centered = centered
	m.q = q
	m.factorized = true
	b.matrices[h] = m
	return nil
}

// CanonicalCorrelation returns the largest singular value of QxᵀQy.
// NaN is returned when either matrix has no variance.
func (b *GonumBackend) CanonicalCorrelation(x, y Handle) (float64, error) {
	mx, my, err := b.pair(x, y)
	if err != nil {
		return math.NaN(), err
	}
	if !mx.factorized || !my.factorized {
		return math.NaN(), ErrNotFactorized
	}
	if mx.q == nil || my.q == nil {
		return math.NaN(), nil
	}

	var cross mat.Dense
	cross.Mul(mx.q.T(), my.q)

	var svd mat.SVD
	if ok := svd.Factorize(&cross, mat.SVDNone); !ok {
		return math.NaN(), nil
	}

	return math.Min(floats.Max(svd.Values(nil)), 1), nil
}

// MinimumEnergyCombination implements the minimum energy combination score:
// the reference subspace of y is projected out of x, the channel combinations
// with the least residual energy are kept, and the score is the mean ratio of
// reference power to residual noise variance per reference dimension.
func (b *GonumBackend) MinimumEnergyCombination(x, y Handle) (float64, error) {
	mx, my, err := b.pair(x, y)
	if err != nil {
		return math.NaN(), err
	}
	if !my.factorized {
		return math.NaN(), ErrNotFactorized
	}
	if my.q == nil {
		return math.NaN(), nil
	}

	signal := mx.centered
	if signal == nil {
		signal = centerColumns(mx.raw)
	}

	rows, channels := signal.Dims()
	_, refDims := my.q.Dims()
	dof := rows - refDims
	if dof <= 0 {
		return math.NaN(), fmt.Errorf("%w: %d samples for %d reference dimensions", ErrDimension, rows, refDims)
	}

	residual := projectOut(my.q, signal)

	var cov mat.SymDense
	cov.SymOuterK(1, residual.T())

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return math.NaN(), nil
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	weights := b.combinationWeights(values, &vectors, channels)

	var combined mat.Dense
	combined.Mul(signal, weights)

	var refPower mat.Dense
	refPower.Mul(my.q.T(), &combined)
	noise := projectOut(my.q, &combined)

	_, count := combined.Dims()
	score := 0.0
	for k := range count {
		p := mat.Col(nil, k, &refPower)
		n := mat.Col(nil, k, noise)

		power := floats.Dot(p, p)
		variance := floats.Dot(n, n) / float64(dof)
		if variance <= 0 {
			variance = math.SmallestNonzeroFloat64
		}
		score += power / variance
	}

	return score / float64(count*refDims), nil
}

// combinationWeights selects the eigenvectors with the smallest eigenvalues
// until their cumulative energy would exceed the nuisance share, scaling each
// by 1/sqrt(λ). At least one combination is always kept.
func (b *GonumBackend) combinationWeights(values []float64, vectors *mat.Dense, channels int) *mat.Dense {
	total := 0.0
	for _, v := range values {
		total += math.Max(v, 0)
	}
	if total <= 0 || math.IsNaN(total) {
		// residual is empty: the raw channels already are the combination
		w := mat.NewDense(channels, channels, nil)
		for i := range channels {
			w.Set(i, i, 1)
		}
		return w
	}

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return values[order[i]] < values[order[j]] })

	count := 1
	cumulative := math.Max(values[order[0]], 0)
	for count < channels {
		next := math.Max(values[order[count]], 0)
		if cumulative+next > b.nuisanceEnergy*total {
			break
		}
		cumulative += next
		count++
	}

	floor := total * 1e-12
	w := mat.NewDense(channels, count, nil)
	for k := range count {
		j := order[k]
		col := mat.Col(nil, j, vectors)
		floats.Scale(1/math.Sqrt(math.Max(values[j], floor)), col)
		w.SetCol(k, col)
	}
	return w
}

// Release frees a handle
func (b *GonumBackend) Release(h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.matrices[h]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	delete(b.matrices, h)
	return nil
}

// ClearAll releases every live handle
func (b *GonumBackend) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matrices = make(map[Handle]matrix)
}

// Live returns the number of live handles
func (b *GonumBackend) Live() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.matrices)
}

func (b *GonumBackend) pair(x, y Handle) (matrix, matrix, error) {
	mx, err := b.lookup(x)
	if err != nil {
		return matrix{}, matrix{}, err
	}
	my, err := b.lookup(y)
	if err != nil {
		return matrix{}, matrix{}, err
	}

	rx, _ := mx.raw.Dims()
	ry, _ := my.raw.Dims()
	if rx != ry {
		return matrix{}, matrix{}, fmt.Errorf("%w: %d rows vs %d rows", ErrDimension, rx, ry)
	}
	return mx, my, nil
}

func centerColumns(a *mat.Dense) *mat.Dense {
	rows, cols := a.Dims()
	out := mat.NewDense(rows, cols, nil)
	col := make([]float64, rows)
	for j := range cols {
		mat.Col(col, j, a)
		mean := stat.Mean(col, nil)
		floats.AddConst(-mean, col)
		out.SetCol(j, col)
	}
	return out
}

// orthonormalBasis returns the thin Q of a QR factorization of the columns of
// a that carry energy, or nil when there are none.
func orthonormalBasis(a *mat.Dense, tol float64) *mat.Dense {
	rows, cols := a.Dims()

	norms := make([]float64, cols)
	for j := range cols {
		norms[j] = floats.Norm(mat.Col(nil, j, a), 2)
	}
	maxNorm := floats.Max(norms)
	if maxNorm == 0 || math.IsNaN(maxNorm) {
		return nil
	}

	var keep []int
	for j, n := range norms {
		if n > tol*maxNorm {
			keep = append(keep, j)
		}
	}
	if len(keep) > rows {
		keep = keep[:rows]
	}

	active := mat.NewDense(rows, len(keep), nil)
	for k, j := range keep {
		active.SetCol(k, mat.Col(nil, j, a))
	}

	var qr mat.QR
	qr.Factorize(active)

	var r mat.Dense
	qr.RTo(&r)
	var full mat.Dense
	qr.QTo(&full)

	maxDiag := 0.0
	for k := range keep {
		maxDiag = math.Max(maxDiag, math.Abs(r.At(k, k)))
	}

	var rank []int
	for k := range keep {
		if math.Abs(r.At(k, k)) > tol*maxDiag {
			rank = append(rank, k)
		}
	}
	if len(rank) == 0 {
		return nil
	}

	q := mat.NewDense(rows, len(rank), nil)
	for k, j := range rank {
		q.SetCol(k, mat.Col(nil, j, &full))
	}
	return q
}

// projectOut returns a - Q Qᵀ a for an orthonormal Q.
func projectOut(q *mat.Dense, a mat.Matrix) *mat.Dense {
	var coef mat.Dense
	coef.Mul(q.T(), a)

	var fit mat.Dense
	fit.Mul(q, &coef)

	var out mat.Dense
	out.Sub(a, &fit)
	return &out
}
