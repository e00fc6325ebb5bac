package linalg

import (
	"errors"
	"fmt"
	"sync"
)

// Scope tracks transient handles allocated from a Backend and releases all of
// them on Close. It is safe for concurrent use, so parallel tasks of one
// computation can share a scope.
//
//	scope := linalg.NewScope(backend)
//	defer scope.Close()
type Scope struct {
	backend Backend

	mu      sync.Mutex
	handles []Handle
	closed  bool
}

// NewScope creates an empty scope over backend
func NewScope(backend Backend) *Scope {
	return &Scope{backend: backend}
}

// Allocate allocates a matrix owned by the scope
func (s *Scope) Allocate(data []float64, rows, cols int) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("allocate on closed scope")
	}

	h, err := s.backend.Allocate(data, rows, cols)
	if err != nil {
		return 0, err
	}
	s.handles = append(s.handles, h)
	return h, nil
}

// AllocateQR allocates a matrix owned by the scope and factorizes it.
// The handle stays tracked even when factorization fails.
func (s *Scope) AllocateQR(data []float64, rows, cols int) (Handle, error) {
	h, err := s.Allocate(data, rows, cols)
	if err != nil {
		return 0, err
	}
	if err := s.backend.ComputeQR(h); err != nil {
		return 0, fmt.Errorf("qr factorization failed: %w", err)
	}
	return h, nil
}

// Len returns the number of handles the scope still owns
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Close releases every handle exactly once. Subsequent calls are no-ops.
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, h := range s.handles {
		if err := s.backend.Release(h); err != nil {
			errs = append(errs, fmt.Errorf("release handle %d: %w", h, err))
		}
	}
	s.handles = nil

	return errors.Join(errs...)
}
