package common

import (
	"fmt"
)

// FrameBuffer is a fixed-capacity ring of equally sized frames (one frame per
// multichannel sample). Pushing into a full buffer overwrites the oldest
// frame. FrameBuffer is not safe for concurrent use.
type FrameBuffer struct {
	frames   []float64 // capacity * width, row-major
	width    int
	capacity int
	writePos int
	count    int
}

// NewFrameBuffer creates a buffer holding up to capacity frames of width values
func NewFrameBuffer(capacity, width int) *FrameBuffer {
	return &FrameBuffer{
		frames:   make([]float64, capacity*width),
		width:    width,
		capacity: capacity,
	}
}

// Push appends a frame, evicting the oldest one when the buffer is full.
// It reports whether a frame was evicted.
func (fb *FrameBuffer) Push(frame []float64) (bool, error) {
	if len(frame) != fb.width {
		return false, fmt.Errorf("frame width (%d) doesn't match buffer width (%d)", len(frame), fb.width)
	}
	if fb.capacity == 0 {
		return false, nil
	}

	copy(fb.frames[fb.writePos*fb.width:(fb.writePos+1)*fb.width], frame)
	fb.writePos = (fb.writePos + 1) % fb.capacity

	if fb.count < fb.capacity {
		fb.count++
		return false, nil
	}
	return true, nil
}

// CopyTo writes the buffered frames oldest-to-newest into dst as a flat
// row-major matrix and returns the number of frames written. dst must hold
// at least Len()*Width() values.
func (fb *FrameBuffer) CopyTo(dst []float64) (int, error) {
	if len(dst) < fb.count*fb.width {
		return 0, fmt.Errorf("destination holds %d values, need %d", len(dst), fb.count*fb.width)
	}

	readPos := (fb.writePos - fb.count + fb.capacity) % max(fb.capacity, 1)
	for i := range fb.count {
		src := ((readPos + i) % fb.capacity) * fb.width
		copy(dst[i*fb.width:(i+1)*fb.width], fb.frames[src:src+fb.width])
	}
	return fb.count, nil
}

// Frame returns a copy of the i-th oldest frame
func (fb *FrameBuffer) Frame(i int) []float64 {
	if i < 0 || i >= fb.count {
		return nil
	}
	pos := ((fb.writePos - fb.count + i + fb.capacity) % fb.capacity) * fb.width
	out := make([]float64, fb.width)
	copy(out, fb.frames[pos:pos+fb.width])
	return out
}

// Len returns the number of buffered frames
func (fb *FrameBuffer) Len() int {
	return fb.count
}

// Width returns the number of values per frame
func (fb *FrameBuffer) Width() int {
	return fb.width
}

// Capacity returns the maximum number of frames
func (fb *FrameBuffer) Capacity() int {
	return fb.capacity
}

// IsFull returns true if buffer is full
func (fb *FrameBuffer) IsFull() bool {
	return fb.count == fb.capacity
}

// Clear empties the buffer
func (fb *FrameBuffer) Clear() {
	fb.writePos = 0
	fb.count = 0
}
