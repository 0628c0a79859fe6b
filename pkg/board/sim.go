package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"sync"
	"time"
	"unsafe"

	"github.com/itohio/daqcore/pkg/acq"
	"github.com/itohio/daqcore/pkg/config"
	"github.com/itohio/daqcore/pkg/sample"
	"github.com/itohio/daqcore/pkg/transport"
)

// ErrBusy is returned by StreamEndpoint.Send while a packet is in flight.
var ErrBusy = errors.New("board: endpoint busy")

// Simulator is a DMA controller that fills the acquisition ring with
// synthetic ADC counts: a sine on the signal channels, 120° apart, and the
// configured supply state on the measurement channels.
type Simulator[T acq.Sample] struct {
	cfg  config.AcquisitionConfig
	meas config.MeasurementConfig
	conv *sample.Converter
	max  float64

	mu     sync.Mutex
	levels []float64 // NaN marks a signal channel
	rnd    *rand.Rand
	buf    []T
	half   func()
	full   func()
	n      uint64
	second bool
}

var _ acq.DMA[int16] = (*Simulator[int16])(nil)

// NewSimulator creates a producer for cfg's acquisition geometry. seed makes
// the noise reproducible.
func NewSimulator[T acq.Sample](cfg *config.Config, seed uint64) *Simulator[T] {
	s := &Simulator[T]{
		cfg:    cfg.Acquisition,
		meas:   cfg.Measurement,
		conv:   sample.NewConverter(cfg.Measurement),
		max:    float64(uint32(1)<<cfg.Measurement.Resolution - 1),
		levels: make([]float64, cfg.Acquisition.Channels),
		rnd:    rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)),
	}
	if unsafe.Sizeof(T(0)) == 2 {
		s.max = min(s.max, math.MaxInt16)
	}
	sup := cfg.Acquisition.Supply
	s.SetSupply(sample.Sample{Temperature: sup.Temperature, Voltage: sup.Voltage, Current: sup.Current})
	return s
}

// SetSupply changes the supply state presented from the next half on.
func (s *Simulator[T]) SetSupply(sup sample.Sample) {
	temp, volt, curr := s.conv.Counts(sup)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.levels {
		s.levels[i] = math.NaN()
	}
	for _, l := range []struct {
		ch  int
		val float64
	}{
		{s.meas.TemperatureChannel, temp},
		{s.meas.VoltageChannel, volt},
		{s.meas.CurrentChannel, curr},
	} {
		if l.ch >= 0 && l.ch < len(s.levels) {
			s.levels[l.ch] = l.val
		}
	}
}

// StartCircular implements acq.DMA.
func (s *Simulator[T]) StartCircular(buf []T, half, full func()) error {
	if want := 2 * s.cfg.Channels * s.cfg.Samples; len(buf) != want {
		return fmt.Errorf("board: simulator needs %d samples, got %d", want, len(buf))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf, s.half, s.full = buf, half, full
	return nil
}

// Fill produces the next half of the ring and raises its completion.
func (s *Simulator[T]) Fill() {
	s.mu.Lock()
	if s.buf == nil {
		s.mu.Unlock()
		return
	}
	size := len(s.buf) / 2
	dst, done := s.buf[:size], s.half
	if s.second {
		dst, done = s.buf[size:], s.full
	}
	s.second = !s.second

	sig := s.cfg.Signal
	c := s.cfg.Channels
	for i := range dst {
		ch := i % c
		v := s.levels[ch]
		if math.IsNaN(v) {
			t := float64(s.n+uint64(i/c)) / s.cfg.SampleRate
			v = sig.Offset + sig.Amplitude*math.Sin(2*math.Pi*sig.Frequency*t+2*math.Pi*float64(ch)/3)
		}
		if sig.Noise > 0 {
			v += sig.Noise * (2*s.rnd.Float64() - 1)
		}
		dst[i] = T(math.Round(min(max(v, 0), s.max)))
	}
	s.n += uint64(s.cfg.Samples)
	s.mu.Unlock()

	done()
}

// Run fills a half every Samples/SampleRate seconds until ctx is done.
func (s *Simulator[T]) Run(ctx context.Context) error {
	period := time.Duration(float64(s.cfg.Samples) / s.cfg.SampleRate * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Fill()
		}
	}
}

// StreamEndpoint is a transport endpoint that writes packets to a stream from
// its own goroutine, the way a USB peripheral completes transfers
// asynchronously.
type StreamEndpoint struct {
	w       io.Writer
	packets chan []byte
}

// NewStreamEndpoint sends packets to w.
func NewStreamEndpoint(w io.Writer) *StreamEndpoint {
	return &StreamEndpoint{w: w, packets: make(chan []byte, 1)}
}

// Send implements transport.Endpoint. The port does not touch p until the
// completion, so it is written without copying.
func (e *StreamEndpoint) Send(p []byte) error {
	select {
	case e.packets <- p:
		return nil
	default:
		return ErrBusy
	}
}

// Run writes queued packets and reports each completion until ctx is done.
func (e *StreamEndpoint) Run(ctx context.Context, complete func(error)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-e.packets:
			_, err := e.w.Write(p)
			complete(err)
		}
	}
}

// Pump copies host input from r into the receive ring of p, waiting for
// space when the ring is full. It returns when r fails or ctx is done.
func Pump(ctx context.Context, r io.Reader, p *transport.Port) error {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		data := buf[:n]
		for {
			data = data[p.Receive(data):]
			if len(data) == 0 {
				break
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Millisecond):
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Millis returns a wrapping millisecond tick counted from start.
func Millis(start time.Time) transport.Clock {
	return func() uint32 {
		return uint32(time.Since(start).Milliseconds())
	}
}
