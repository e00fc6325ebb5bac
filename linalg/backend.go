// Package linalg is the matrix boundary used by the SSVEP feature pipeline.
//
// Matrices live behind opaque handles owned by a Backend. Callers allocate
// from flat row-major buffers, factorize in place and must release every
// handle they allocate. Scope groups transient handles so they are released
// on every exit path.
package linalg

import "errors"

// Handle identifies a matrix owned by a Backend. The zero Handle is never issued.
type Handle uint64

var (
	// ErrUnknownHandle is returned for handles that were never allocated or are already released.
	ErrUnknownHandle = errors.New("unknown matrix handle")

	// ErrNotFactorized is returned when a correlation needs a QR factorization that was not computed.
	ErrNotFactorized = errors.New("matrix is not QR factorized")

	// ErrDimension is returned for shape mismatches.
	ErrDimension = errors.New("matrix dimension mismatch")
)

// Backend is the linear algebra collaborator of the feature computer.
//
// Data crossing the boundary is row-major: element (r, c) is data[r*cols+c].
// Implementations must be safe for concurrent use; correlation calls never
// mutate their operands.
type Backend interface {
	// Allocate copies data into a new rows x cols matrix.
	Allocate(data []float64, rows, cols int) (Handle, error)

	// ComputeQR factorizes the matrix in place.
	ComputeQR(h Handle) error

	// CanonicalCorrelation returns the largest canonical correlation between
	// the column spaces of two factorized matrices with equal row counts.
	CanonicalCorrelation(x, y Handle) (float64, error)

	// MinimumEnergyCombination scores how much of signal x lies in the
	// subspace spanned by the factorized reference y.
	MinimumEnergyCombination(x, y Handle) (float64, error)

	// Release frees a handle. Releasing twice returns ErrUnknownHandle.
	Release(h Handle) error

	// ClearAll releases every live handle.
	ClearAll()

	// Live reports the number of handles currently allocated.
	Live() int
}
