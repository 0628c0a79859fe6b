package board

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/daqcore/pkg/acq"
	"github.com/itohio/daqcore/pkg/config"
	"github.com/itohio/daqcore/pkg/crash"
	"github.com/itohio/daqcore/pkg/flash"
	"github.com/itohio/daqcore/pkg/protocol"
	"github.com/itohio/daqcore/pkg/sample"
	"github.com/itohio/daqcore/pkg/status"
	"github.com/itohio/daqcore/pkg/transport"
	"github.com/itohio/daqcore/pkg/uptime"
)

// endpoint completes transfers only when the test flushes it.
type endpoint struct {
	out     bytes.Buffer
	pending bool
	fail    error
}

func (e *endpoint) Send(p []byte) error {
	if e.fail != nil {
		return e.fail
	}
	e.out.Write(p)
	e.pending = true
	return nil
}

type portCall struct {
	n        int
	on       bool
	pct, dur int
}

type harness struct {
	t     *testing.T
	cfg   *config.Config
	mem   *flash.Memory
	ep    *endpoint
	ms    uint32
	b     *Board[int16]
	sim   *Simulator[int16]
	ports []portCall
	cal   [][]protocol.Calibration
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Flash.SectorSize = 0x400
	return cfg
}

func newMemory(cfg *config.Config) *flash.Memory {
	return flash.NewMemory(flash.Geometry{
		Base:       cfg.Flash.Base,
		SectorSize: cfg.Flash.SectorSize,
		Sectors:    cfg.Flash.Sectors,
	})
}

func newHarness(t *testing.T, cfg *config.Config, mem *flash.Memory, boot string) *harness {
	t.Helper()
	h := &harness{t: t, cfg: cfg, mem: mem, ep: &endpoint{}, ms: 1000}
	b, err := New[int16](Options{
		Config:      cfg,
		Flash:       mem,
		Endpoint:    h.ep,
		Clock:       func() uint32 { return h.ms },
		BootMessage: boot,
		Hooks: Hooks{
			PortState: func(n int, on bool, pct, dur int) {
				h.ports = append(h.ports, portCall{n, on, pct, dur})
			},
			Calibration: func(entries []protocol.Calibration) {
				h.cal = append(h.cal, entries)
			},
		},
	})
	require.NoError(t, err)
	h.b = b
	h.sim = NewSimulator[int16](cfg, 1)
	require.NoError(t, b.Start(h.sim))
	b.Port().SetLine(true)
	h.ms += cfg.Transport.OpenDelay
	return h
}

func (h *harness) step() string {
	h.b.Step(h.ms)
	for h.ep.pending {
		h.ep.pending = false
		h.b.Port().TxComplete(nil)
	}
	out := h.ep.out.String()
	h.ep.out.Reset()
	return out
}

func (h *harness) send(line string) string {
	h.t.Helper()
	require.Equal(h.t, len(line)+2, h.b.Port().Receive([]byte(line+"\r\n")))
	return h.step()
}

func (h *harness) fill() string {
	h.sim.Fill()
	return h.step()
}

func TestNew_EmptyOTP(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, newMemory(cfg), "")

	assert.Equal(t, status.VersionError|status.Error, h.b.Status().Status())
	assert.Equal(t, "\r\nOTP empty", h.send("OTP r"))
	assert.Equal(t, "dev", h.b.Uptime().Version())
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig()
	mem := newMemory(cfg)
	clock := func() uint32 { return 0 }

	_, err := New[int16](Options{Config: cfg, Endpoint: &endpoint{}, Clock: clock})
	assert.Error(t, err, "missing flash")

	other := testConfig()
	other.Flash.Sectors = 12
	_, err = New[int16](Options{Config: other, Flash: mem, Endpoint: &endpoint{}, Clock: clock})
	assert.Error(t, err, "geometry mismatch")

	bad := testConfig()
	bad.Flash.CrashSector = bad.Flash.OTPSector
	_, err = New[int16](Options{Config: bad, Flash: mem, Endpoint: &endpoint{}, Clock: clock})
	assert.Error(t, err, "invalid configuration")

	many := testConfig()
	for i := range uptime.MaxChannels {
		many.Uptime.Channels = append(many.Uptime.Channels, fmt.Sprintf("EXTRA_%d", i))
	}
	_, err = New[int16](Options{Config: many, Flash: mem, Endpoint: &endpoint{}, Clock: clock})
	assert.ErrorIs(t, err, uptime.ErrChannels)
}

func TestSerialHeader(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, newMemory(cfg), "")

	assert.Equal(t,
		"\r\nSerial Number: 00C0FFEE\r\nProduct Type: daq\r\nFirmware: dev\r\nPCB Version: unknown",
		h.send("Serial"))

	h.send("OTP w 1 1 1.2 20240101")
	assert.Contains(t, h.send("Serial"), "\r\nPCB Version: 1.2")
}

func TestOTPWrite(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		read    string
		version bool
	}{
		{"matching board", "OTP w 1 1 1.2 20240101", "\r\nOTP 1 1 1.2 20240101", false},
		{"matching v2", "OTP w 2 1 3 1.0 20250315", "\r\nOTP 2 1 3 1.0 20250315", false},
		{"other board type", "OTP w 1 2 1.2 20240101", "\r\nOTP 1 2 1.2 20240101", true},
		{"older pcb", "OTP w 2 1 0 0.9 20240101", "\r\nOTP 2 1 0 0.9 20240101", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			h := newHarness(t, cfg, newMemory(cfg), "")

			assert.Empty(t, h.send(tt.line))
			assert.Equal(t, tt.read, h.send("OTP r"))
			assert.Equal(t, tt.version, h.b.Status().IsSet(status.VersionError))
			assert.Equal(t, tt.version, h.b.Status().IsSet(status.Error))
		})
	}
}

func TestOTPWrite_UnknownVersionIgnored(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, newMemory(cfg), "")

	assert.Empty(t, h.send("OTP w 3 1 1 1.2 20240101"))
	assert.Equal(t, "\r\nOTP empty", h.send("OTP r"))
}

func TestStatusBlocks(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, newMemory(cfg), "")

	out := h.send("Status")
	assert.True(t, strings.HasPrefix(out, "\r\nStart of board status:\r\nstatus: 0x84000000"), out)
	assert.Contains(t, out, "\r\nERROR\r\nVERSION_ERROR\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\nEnd of board status."), out)

	out = h.send("StatusDef")
	assert.Contains(t, out, "\r\n31 ERROR summary")
	assert.Contains(t, out, "\r\n26 VERSION_ERROR error")
	assert.Contains(t, out, "\r\n24 FLASH_ONGOING status")
}

func TestUptimeAcrossADay(t *testing.T) {
	cfg := testConfig()
	mem := newMemory(cfg)
	h := newHarness(t, cfg, mem, "")

	start := h.ms
	h.step()
	for m := uint32(1); m <= 1440; m++ {
		h.ms = start + m*uptime.SessionInterval
		h.step()
		if m == 720 {
			out := h.send("uptime r 2")
			assert.Contains(t, out, "\r\nMINS_SINCE_SW_UPDATE, 2, 1, 0")
		}
	}

	total, _ := h.b.Uptime().Channel(uptime.TotalBoardMins)
	assert.Equal(t, uint32(1440), total.Count)
	sw, _ := h.b.Uptime().Channel(uptime.MinsSinceSWUpdate)
	assert.Equal(t, uptime.Channel{ID: 2, ResetCount: 1, Count: 720}, sw)

	out := h.send("uptime")
	assert.Contains(t, out, "\r\nTOTAL_BOARD_MINS, 0, 0, 1440")
	assert.Contains(t, out, "\r\nMINS_SINCE_SW_UPDATE, 2, 1, 720")

	// The day boundary persisted the ledger.
	again := newHarness(t, cfg, mem, "")
	total, _ = again.b.Uptime().Channel(uptime.TotalBoardMins)
	assert.Equal(t, uint32(1440), total.Count)
}

func TestUptimeReset_TotalRefused(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, newMemory(cfg), "")

	assert.Contains(t, h.send("uptime r 0"), "\r\nuptime: ")
	assert.Contains(t, h.send("uptime r 9"), "\r\nuptime: ")
}

func TestWatchdogBoot(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, newMemory(cfg), "Watch dog reset")

	ch, ok := h.b.Uptime().Channel(uptime.SWFailures)
	require.True(t, ok)
	assert.Equal(t, uint32(1), ch.Count)
}

func TestPortCommands(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, newMemory(cfg), "")

	assert.Empty(t, h.send("p8 on 22 60%"))
	assert.Equal(t, []portCall{{8, true, 60, 22}}, h.ports)

	assert.Equal(t, "\r\nMISREAD: p7 on 52 60", h.send("p7 on 52 60"))
	assert.Equal(t, 1, h.b.Ports().Undefined())

	assert.Equal(t, "\r\nMISREAD: all on", h.send("all on"), "no AllOn hook")
}

func TestCalibration(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, newMemory(cfg), "")

	assert.Empty(t, h.send("CAL 3,0.05,1.56 2,0.04,.36"))
	want := []protocol.Calibration{
		{Port: 3, Alpha: 0.05, Beta: 1.56},
		{Port: 2, Alpha: 0.04, Beta: 0.36},
	}
	assert.Equal(t, want, h.b.Calibration())
	require.Len(t, h.cal, 1)
	assert.Equal(t, want, h.cal[0])

	assert.Equal(t, "\r\nMISREAD: DFU", h.send("DFU"), "no DFU hook")
}

func TestMeasurement(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, newMemory(cfg), "")
	h.send("OTP w 1 1 1.0 20240101")

	h.fill()
	h.fill()
	assert.Equal(t, uint64(2), h.b.Frames())

	m := h.b.Measurement()
	assert.InDelta(t, 5, m.Voltage, 0.01)
	// Half a count is 0.16 °C.
	assert.InDelta(t, 30, m.Temperature, 0.2)
	assert.InDelta(t, 0.4, m.Current, 0.005)
	assert.Equal(t, status.Field(0), h.b.Status().Status())
	assert.InDelta(t, 5, h.b.Status().Voltage(), 0.01)

	h.sim.SetSupply(sample.Sample{Temperature: 30, Voltage: 4, Current: 0.4})
	for range cfg.Measurement.Average {
		h.fill()
	}
	assert.InDelta(t, 4, h.b.Measurement().Voltage, 0.01)
	assert.Equal(t, status.UnderVoltage|status.Error, h.b.Status().Status())

	h.sim.SetSupply(sample.Sample{Temperature: 30, Voltage: 5, Current: 0.4})
	for range cfg.Measurement.Average {
		h.fill()
	}
	assert.Equal(t, status.Field(0), h.b.Status().Status())
}

func TestOnFrame(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, newMemory(cfg), "")

	var got []acq.Buffer
	h.b.OnFrame(func(f acq.Frame[int16]) {
		assert.Equal(t, cfg.Acquisition.Channels, f.Channels())
		assert.Equal(t, cfg.Acquisition.Samples, f.Samples())
		got = append(got, h.b.Engine().Last())
	})

	h.step()
	h.fill()
	h.fill()
	h.fill()
	assert.Equal(t, []acq.Buffer{acq.First, acq.Second, acq.First}, got)
}

func TestLogging(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, newMemory(cfg), "")

	assert.Empty(t, h.send("LOG p0"))
	out := h.fill()

	var port int
	var frame uint64
	var mean, rms, tone float64
	_, err := fmt.Sscanf(strings.TrimPrefix(out, "\r\n"), "LOG p%d %d %f %f %f", &port, &frame, &mean, &rms, &tone)
	require.NoError(t, err, out)
	assert.Equal(t, 0, port)
	assert.Equal(t, uint64(1), frame)
	assert.InDelta(t, 2047, mean, 1)
	// √(2047² + 2047²/2)
	assert.InDelta(t, 2507.1, rms, 1)
	// 2047 counts of a 3.3 V 12-bit converter.
	assert.InDelta(t, 1.649, tone, 0.01)

	assert.Empty(t, h.send("LOG p9"))
	assert.Empty(t, h.fill())
}

func TestUSBError(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, newMemory(cfg), "")
	h.send("OTP w 1 1 1.0 20240101")
	require.Equal(t, status.Field(0), h.b.Status().Status())

	h.ep.fail = errors.New("stall")
	h.send("Serial")
	assert.Equal(t, status.USBError|status.Error, h.b.Status().Status())
	assert.Equal(t, uint32(transport.ErrTransmit), h.b.Status().USB())

	h.ep.fail = nil
	h.b.Port().ClearError(transport.ErrTransmit)
	h.step()
	assert.Equal(t, status.Field(0), h.b.Status().Status())
}

func TestCrashRecord(t *testing.T) {
	cfg := testConfig()
	mem := newMemory(cfg)
	h := newHarness(t, cfg, mem, "")

	_, ok := h.b.LastCrash()
	assert.False(t, ok)
	require.NoError(t, h.b.RecordFault(crash.Record{PC: 0x08001234, CFSR: 0x400}))

	again := newHarness(t, cfg, mem, "")
	rec, ok := again.b.LastCrash()
	require.True(t, ok)
	assert.Equal(t, crash.Record{Magic: crash.Magic, PC: 0x08001234, CFSR: 0x400, SWVersion: "dev"}, rec)

	require.NoError(t, again.b.ClearCrash())
	_, ok = again.b.LastCrash()
	assert.False(t, ok)

	third := newHarness(t, cfg, mem, "")
	_, ok = third.b.LastCrash()
	assert.False(t, ok)
}

func TestSimulator_StartCircular(t *testing.T) {
	cfg := testConfig()
	sim := NewSimulator[int32](cfg, 1)

	assert.Error(t, sim.StartCircular(make([]int32, 10), func() {}, func() {}))

	var halves, fulls int
	buf := make([]int32, 2*cfg.Acquisition.Channels*cfg.Acquisition.Samples)
	require.NoError(t, sim.StartCircular(buf, func() { halves++ }, func() { fulls++ }))
	sim.Fill()
	sim.Fill()
	sim.Fill()
	assert.Equal(t, 2, halves)
	assert.Equal(t, 1, fulls)

	// Signal channel 0 starts at the sine's zero crossing.
	assert.Equal(t, int32(2047), buf[0])
	for _, v := range buf {
		assert.GreaterOrEqual(t, v, int32(0))
		assert.LessOrEqual(t, v, int32(4095))
	}
}

func TestSimulator_Noise(t *testing.T) {
	cfg := testConfig()
	cfg.Acquisition.Signal.Noise = 3

	a, b := NewSimulator[int16](cfg, 7), NewSimulator[int16](cfg, 7)
	bufA := make([]int16, 2*cfg.Acquisition.Channels*cfg.Acquisition.Samples)
	bufB := make([]int16, len(bufA))
	require.NoError(t, a.StartCircular(bufA, func() {}, func() {}))
	require.NoError(t, b.StartCircular(bufB, func() {}, func() {}))
	a.Fill()
	b.Fill()
	assert.Equal(t, bufA, bufB)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStreamEndpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &lockedBuffer{}
	ep := NewStreamEndpoint(out)
	cfg := transport.DefaultPortConfig()
	cfg.PacketSize = 8
	cfg.Timeout = 1000
	port := transport.NewPort(cfg, ep, Millis(time.Now()), nil)

	done := make(chan error, 1)
	go func() { done <- ep.Run(ctx, port.TxComplete) }()

	port.SetLine(true)
	msg := strings.Repeat("0123456789", 10)
	n, err := port.Write([]byte(msg))
	require.NoError(t, err)
	assert.Equal(t, len(msg), n)
	require.NoError(t, port.Drain())
	assert.Equal(t, msg, out.String())
	assert.Zero(t, port.LastError())

	cancel()
	assert.NoError(t, <-done)
}

func TestStreamEndpoint_Busy(t *testing.T) {
	ep := NewStreamEndpoint(&bytes.Buffer{})
	require.NoError(t, ep.Send([]byte("a")))
	assert.ErrorIs(t, ep.Send([]byte("b")), ErrBusy)
}

func TestPump(t *testing.T) {
	cfg := transport.DefaultPortConfig()
	cfg.RxSize = 16
	port := transport.NewPort(cfg, &endpoint{}, func() uint32 { return 0 }, nil)

	msg := strings.Repeat("x", 40)
	done := make(chan error, 1)
	go func() { done <- Pump(context.Background(), strings.NewReader(msg), port) }()

	var got []byte
	deadline := time.After(5 * time.Second)
	for len(got) < len(msg) {
		b, err := port.ReadByte()
		if err != nil {
			select {
			case <-deadline:
				t.Fatalf("received %d of %d bytes", len(got), len(msg))
			case <-time.After(time.Millisecond):
			}
			continue
		}
		got = append(got, b)
	}
	assert.Equal(t, msg, string(got))
	assert.NoError(t, <-done)
}
