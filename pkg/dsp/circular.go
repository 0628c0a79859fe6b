package dsp

import "fmt"

// CircularBuffer is a fixed capacity ring of float32 that overwrites its
// oldest element on every push.
type CircularBuffer struct {
	buf []float32
	i   int
}

// NewCircularBuffer takes ownership of buf and zeroes it.
func NewCircularBuffer(buf []float32) *CircularBuffer {
	clear(buf)
	return &CircularBuffer{buf: buf}
}

// Len returns the capacity.
func (cb *CircularBuffer) Len() int { return len(cb.buf) }

// Push overwrites the oldest element with x and returns the element it
// replaced.
func (cb *CircularBuffer) Push(x float32) float32 {
	if len(cb.buf) == 0 {
		return 0
	}
	old := cb.buf[cb.i]
	cb.buf[cb.i] = x
	cb.i++
	if cb.i == len(cb.buf) {
		cb.i = 0
	}
	return old
}

// At returns the i-th element counting from the oldest. At(0) is the oldest,
// At(Len()-1) the newest. Indices outside the window read as 0.
func (cb *CircularBuffer) At(i int) float32 {
	if i < 0 || i >= len(cb.buf) {
		return 0
	}
	return cb.buf[(cb.i+i)%len(cb.buf)]
}

// Oldest returns the element the next Push replaces.
func (cb *CircularBuffer) Oldest() float32 {
	if len(cb.buf) == 0 {
		return 0
	}
	return cb.buf[cb.i]
}

// Newest returns the most recently pushed element.
func (cb *CircularBuffer) Newest() float32 {
	if len(cb.buf) == 0 {
		return 0
	}
	return cb.buf[(cb.i+len(cb.buf)-1)%len(cb.buf)]
}

// newest returns the newest n elements as up to two contiguous slices, older
// part first.
func (cb *CircularBuffer) newest(n int) ([]float32, []float32, error) {
	if n <= 0 || n > len(cb.buf) {
		return nil, nil, fmt.Errorf("%w: %d of %d", ErrWindow, n, len(cb.buf))
	}
	if n <= cb.i {
		return cb.buf[cb.i-n : cb.i], nil, nil
	}
	wrap := n - cb.i
	return cb.buf[len(cb.buf)-wrap:], cb.buf[:cb.i], nil
}

// Mean averages the newest n elements.
func (cb *CircularBuffer) Mean(n int) (float32, error) {
	a, b, err := cb.newest(n)
	if err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return MeanElement(a)
	}
	sa, _ := SumElement(a)
	sb, _ := SumElement(b)
	return (sa + sb) / float32(n), nil
}

// Max returns the largest of the newest n elements.
func (cb *CircularBuffer) Max(n int) (float32, error) {
	a, b, err := cb.newest(n)
	if err != nil {
		return 0, err
	}
	ma, _ := MaxElement(a)
	if len(b) == 0 {
		return ma, nil
	}
	mb, _ := MaxElement(b)
	return max(ma, mb), nil
}
