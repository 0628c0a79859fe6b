package board

import (
	"fmt"

	"github.com/itohio/daqcore/pkg/acq"
	"github.com/itohio/daqcore/pkg/dsp"
	"github.com/itohio/daqcore/pkg/sample"
)

// frame consumes one completed acquisition half.
func (b *Board[T]) frame(f acq.Frame[T]) {
	b.frames++

	b.measured = b.avg.Push(sample.Convert(b.conv, f))
	b.conv.Apply(b.status, b.measured)

	if b.logPort >= 0 && b.port.IsOpen() {
		b.logChannel(f, b.logPort)
	}
	if b.onFrame != nil {
		b.onFrame(f)
	}
}

// logChannel writes the mean, RMS and tone amplitude of channel c.
func (b *Board[T]) logChannel(f acq.Frame[T], c int) {
	tone, ok := dsp.GoertzelFrame(b.tone, f, c)
	if !ok {
		return
	}
	fmt.Fprintf(b.port, "\r\nLOG p%d %d %.1f %.1f %.4f", c, b.frames, f.Mean(c), f.RMS(c), tone)
}
