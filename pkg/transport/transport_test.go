package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRing(t *testing.T) {
	r := NewRing(5)
	assert.Equal(t, 8, r.Cap(), "rounded to a power of two")

	assert.Equal(t, 6, r.Put([]byte("abcdef")))
	assert.Equal(t, 2, r.Put([]byte("ghij")), "only what fits")
	assert.Equal(t, 0, r.Free())

	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('a'), b)

	buf := make([]byte, 3)
	assert.Equal(t, 3, r.Get(buf))
	assert.Equal(t, "bcd", string(buf))
	assert.Equal(t, 4, r.Len())

	assert.Equal(t, 3, r.Put([]byte("xyz"))) // wraps
	out := make([]byte, 16)
	n := r.Get(out)
	assert.Equal(t, "efghxyz", string(out[:n]))

	_, err = r.ReadByte()
	assert.ErrorIs(t, err, ErrEmpty)

	r.Put([]byte("zz"))
	r.Flush()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, NewRing(0).Cap())
}

func TestRingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRing(rapid.IntRange(1, 64).Draw(t, "size"))
		var model []byte
		for i := rapid.IntRange(1, 100).Draw(t, "ops"); i > 0; i-- {
			if rapid.Bool().Draw(t, "put") {
				p := rapid.SliceOfN(rapid.Byte(), 0, 20).Draw(t, "p")
				n := r.Put(p)
				assert.Equal(t, min(len(p), r.Cap()-len(model)), n)
				model = append(model, p[:n]...)
			} else {
				buf := make([]byte, rapid.IntRange(0, 20).Draw(t, "n"))
				n := r.Get(buf)
				require.Equal(t, min(len(buf), len(model)), n)
				assert.Equal(t, model[:n], buf[:n])
				model = model[n:]
			}
			require.Equal(t, len(model), r.Len())
		}
	})
}

func TestRingConcurrent(t *testing.T) {
	r := NewRing(16)
	const total = 10000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if r.Put([]byte{byte(i)}) == 1 {
				i++
			}
		}
	}()
	for i := 0; i < total; {
		b, err := r.ReadByte()
		if err != nil {
			continue
		}
		require.Equal(t, byte(i), b)
		i++
	}
	wg.Wait()
}

type tick struct{ ms atomic.Uint32 }

func (c *tick) now() uint32        { return c.ms.Load() }
func (c *tick) advance(ms uint32) { c.ms.Add(ms) }

type endpoint struct {
	packets []string
	err     error
}

func (e *endpoint) Send(p []byte) error {
	if e.err != nil {
		return e.err
	}
	e.packets = append(e.packets, string(p))
	return nil
}

func newPort(cfg PortConfig) (*Port, *endpoint, *tick) {
	ep := &endpoint{}
	clk := &tick{}
	return NewPort(cfg, ep, clk.now, nil), ep, clk
}

func TestPort_IsOpen(t *testing.T) {
	p, _, clk := newPort(PortConfig{OpenDelay: 100})
	assert.False(t, p.IsOpen())

	p.SetLine(true)
	assert.False(t, p.IsOpen())
	clk.advance(99)
	assert.False(t, p.IsOpen())
	clk.advance(1)
	assert.True(t, p.IsOpen())

	p.SetLine(false)
	assert.False(t, p.IsOpen())
}

func TestPort_Receive(t *testing.T) {
	p, _, _ := newPort(PortConfig{RxSize: 4})
	assert.Equal(t, 4, p.Receive([]byte("hello")))

	var got []byte
	for {
		b, err := p.ReadByte()
		if err != nil {
			assert.ErrorIs(t, err, ErrEmpty)
			break
		}
		got = append(got, b)
	}
	assert.Equal(t, "hell", string(got))

	p.Receive([]byte("ab"))
	p.FlushRx()
	_, err := p.ReadByte()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestPort_TxPackets(t *testing.T) {
	p, ep, _ := newPort(PortConfig{TxSize: 16, PacketSize: 4})
	p.SetLine(true)

	n, err := p.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, []string{"0123"}, ep.packets, "one packet in flight")
	assert.Equal(t, 10, p.TxAvailable())

	p.TxComplete(nil)
	p.TxComplete(nil)
	assert.Equal(t, []string{"0123", "4567", "89"}, ep.packets)
	p.TxComplete(nil)
	assert.Equal(t, 16, p.TxAvailable())
	assert.Equal(t, Errors(0), p.LastError())

	p.Tx([]byte("ab"))
	assert.Equal(t, "ab", ep.packets[3], "idle endpoint restarts")
}

func TestPort_TxDuringRelease(t *testing.T) {
	p, ep, _ := newPort(PortConfig{TxSize: 16, PacketSize: 4})
	p.SetLine(true)

	// The completion found the ring empty and has not cleared busy yet; a
	// foreground Tx in that window cannot start a transfer itself.
	p.busy.Store(true)
	assert.Equal(t, 2, p.Tx([]byte("xy")))
	assert.Empty(t, ep.packets)

	p.release()
	assert.Equal(t, []string{"xy"}, ep.packets)
	assert.True(t, p.busy.Load(), "packet in flight")

	p.TxComplete(nil)
	assert.False(t, p.busy.Load())
	assert.Equal(t, 16, p.TxAvailable())
}

func TestPort_Cropped(t *testing.T) {
	p, _, _ := newPort(PortConfig{TxSize: 8, PacketSize: 4})
	p.SetLine(true)

	n, err := p.Write([]byte("0123456789abcdef"))
	assert.ErrorIs(t, err, ErrCropped)
	assert.Equal(t, 8, n)
	assert.Equal(t, ErrCroppedTransmit, p.LastError())
	assert.Equal(t, "cropped-transmit", p.LastError().String())

	p.ClearError(ErrCroppedTransmit)
	assert.Equal(t, Errors(0), p.LastError())
}

func TestPort_Closed(t *testing.T) {
	p, ep, _ := newPort(PortConfig{})
	_, err := p.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, ep.packets)
}

func TestPort_TransmitErrors(t *testing.T) {
	p, ep, _ := newPort(PortConfig{TxSize: 16, PacketSize: 4})
	ep.err = errors.New("stall")
	p.Tx([]byte("abc"))
	assert.Equal(t, ErrTransmit, p.LastError())

	ep.err = nil
	p.ClearError(ErrTransmit)
	p.Tx([]byte("defgh"))
	require.Len(t, ep.packets, 1)

	p.TxComplete(errors.New("crc"))
	assert.Equal(t, ErrDelayedTransmit, p.LastError())

	p.Tx(nil)
	p.TxComplete(nil)
	assert.Equal(t, Errors(0), p.LastError(), "cleared by the next completion")
	assert.Equal(t, "transmit|delayed-transmit", (ErrTransmit | ErrDelayedTransmit).String())
	assert.Equal(t, "none", Errors(0).String())
}

func TestPort_DrainTimeout(t *testing.T) {
	clk := &tick{}
	ep := &endpoint{}
	p := NewPort(PortConfig{TxSize: 16, PacketSize: 4, Timeout: 50}, ep, func() uint32 {
		clk.advance(1)
		return clk.now()
	}, nil)

	p.Tx([]byte("01234567"))
	err := p.Drain()
	assert.ErrorIs(t, err, ErrTimeout)
}

type asyncEndpoint struct{ port *Port }

func (e *asyncEndpoint) Send(p []byte) error {
	go e.port.TxComplete(nil)
	return nil
}

func TestPort_Drain(t *testing.T) {
	ep := &asyncEndpoint{}
	start := time.Now()
	p := NewPort(PortConfig{TxSize: 64, PacketSize: 4, Timeout: 1000}, ep, func() uint32 {
		return uint32(time.Since(start).Milliseconds())
	}, nil)
	ep.port = p

	p.Tx([]byte(strings.Repeat("x", 40)))
	require.NoError(t, p.Drain())
	assert.Equal(t, 64, p.TxAvailable())
}

func TestScanLines(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("\r\nSerial Number: 1\r\n\r\nPCB Version: 1.2\ntail"))
	sc.Split(ScanLines)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"Serial Number: 1", "PCB Version: 1.2", "tail"}, lines)
}

func TestLink(t *testing.T) {
	host, board := net.Pipe()
	l := NewLink("pipe", 0, 0, nil)
	require.NoError(t, l.Attach(host))
	assert.True(t, l.IsConnected())
	assert.Error(t, l.Attach(host), "already connected")

	go func() {
		r := bufio.NewReader(board)
		cmd, _ := r.ReadString('\n')
		io.WriteString(board, "\r\necho: "+strings.TrimSpace(cmd))
		io.WriteString(board, "\r\n")
	}()

	require.NoError(t, l.Send("Serial"))
	select {
	case line := <-l.Lines():
		assert.Equal(t, "echo: Serial", line)
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}

	require.NoError(t, l.Close())
	assert.False(t, l.IsConnected())
	assert.Error(t, l.Send("x"))
	_, ok := <-l.Lines()
	assert.False(t, ok)
	require.NoError(t, l.Close())
}
