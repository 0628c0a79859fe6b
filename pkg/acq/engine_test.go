package acq

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDMA[T Sample] struct {
	buf  []T
	half func()
	full func()
	err  error
}

func (d *fakeDMA[T]) StartCircular(buf []T, half, full func()) error {
	d.buf, d.half, d.full = buf, half, full
	return d.err
}

func TestNew_Geometry(t *testing.T) {
	_, err := New(0, 10, make([]int16, 0))
	assert.ErrorIs(t, err, ErrGeometry)

	_, err = New(2, 10, make([]int16, 39))
	assert.ErrorIs(t, err, ErrGeometry)

	e, err := New(2, 10, make([]int32, 40))
	require.NoError(t, err)
	assert.Equal(t, 2, e.Channels())
	assert.Equal(t, 10, e.Samples())
	assert.Len(t, e.Buffer(), 40)
}

func TestEngine_StartError(t *testing.T) {
	e, err := New(1, 4, make([]int16, 8))
	require.NoError(t, err)

	boom := errors.New("dma busy")
	assert.ErrorIs(t, e.Start(&fakeDMA[int16]{err: boom}), boom)
}

func TestEngine_Handoff(t *testing.T) {
	const channels, samples = 2, 4
	buf := make([]int16, 2*channels*samples)
	for i := range buf {
		buf[i] = int16(i)
	}

	e, err := New(channels, samples, buf)
	require.NoError(t, err)
	dma := &fakeDMA[int16]{}
	require.NoError(t, e.Start(dma))
	assert.Equal(t, buf, dma.buf)

	// Nothing completed yet: no callback, accessors read zero.
	called := 0
	assert.False(t, e.Loop(func(Frame[int16]) { called++ }))
	assert.Equal(t, 0, called)
	assert.Equal(t, NotAvailable, e.Active())
	assert.True(t, e.Current().Empty())
	assert.Equal(t, 0.0, e.Current().Mean(0))
	assert.Equal(t, 0.0, e.Current().RMS(1))

	var got []Frame[int16]
	collect := func(f Frame[int16]) { got = append(got, f) }

	dma.half()
	assert.True(t, e.Loop(collect))
	assert.False(t, e.Loop(collect), "each half is delivered once")
	require.Len(t, got, 1)
	assert.Equal(t, buf[:8], got[0].Data())
	assert.Equal(t, First, e.Last())

	dma.full()
	assert.True(t, e.Loop(collect))
	require.Len(t, got, 2)
	assert.Equal(t, buf[8:], got[1].Data())
	assert.Equal(t, Second, e.Last())
	assert.Equal(t, buf[8:], e.Current().Data())
}

func TestEngine_InterleavedOrder(t *testing.T) {
	e, err := New(1, 2, make([]int32, 4))
	require.NoError(t, err)
	dma := &fakeDMA[int32]{}
	require.NoError(t, e.Start(dma))

	var seen []Buffer
	for i := 0; i < 6; i++ {
		if i%2 == 0 {
			dma.half()
		} else {
			dma.full()
		}
		e.Loop(func(Frame[int32]) { seen = append(seen, e.Last()) })
	}
	assert.Equal(t, []Buffer{First, Second, First, Second, First, Second}, seen)
}

func TestEngine_MissedHalfIsOverwritten(t *testing.T) {
	e, err := New(1, 2, make([]int16, 4))
	require.NoError(t, err)
	dma := &fakeDMA[int16]{}
	require.NoError(t, e.Start(dma))

	dma.half()
	dma.full()

	calls := 0
	e.Loop(func(Frame[int16]) { calls++ })
	e.Loop(func(Frame[int16]) { calls++ })
	assert.Equal(t, 1, calls)
	assert.Equal(t, Second, e.Last())
}

func TestBufferString(t *testing.T) {
	assert.Equal(t, "first", First.String())
	assert.Equal(t, "second", Second.String())
	assert.Equal(t, "not-available", NotAvailable.String())
}
