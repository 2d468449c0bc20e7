package stream

import (
	"github.com/meshfiles/zmbridge/internal/mesh"
	"github.com/meshfiles/zmbridge/internal/protocol"
	"github.com/meshfiles/zmbridge/internal/util"
)

// Accumulator coalesces arbitrary-length byte writes into MTU-sized frames.
// It is goroutine-local (the tick loop is the only caller) and needs no
// locking. The outbound sequence counter lives for the whole process — it
// is never reset between transfers.
type Accumulator struct {
	link mesh.Link
	max  int // payload bytes per frame
	buf  []byte
	seq  uint16
}

// NewAccumulator creates an accumulator emitting frames of at most max
// payload bytes on link.
func NewAccumulator(link mesh.Link, max int) *Accumulator {
	return &Accumulator{
		link: link,
		max:  max,
		buf:  make([]byte, 0, max),
	}
}

// WriteByte appends one byte to the pending frame, flushing implicitly when
// the frame fills. It never blocks and never fails toward the caller: a
// transmit error is counted and logged, nothing more. The stepping engine
// has no way to react to backpressure anyway.
func (a *Accumulator) WriteByte(b byte) {
	a.buf = append(a.buf, b)
	if len(a.buf) >= a.max {
		a.Flush()
	}
}

// Write appends p byte by byte, honoring the implicit flush boundary.
func (a *Accumulator) Write(p []byte) {
	for _, b := range p {
		a.WriteByte(b)
	}
}

// Flush emits the pending bytes as exactly one frame with the current
// outbound sequence number, then advances the sequence and clears the
// buffer. A no-op when the buffer is empty. The sequence advances even when
// the transmit fails — the receiver's drop-on-mismatch discipline makes a
// lost sequence number unrecoverable either way.
func (a *Accumulator) Flush() {
	if len(a.buf) == 0 {
		return
	}

	data := protocol.Encode(&protocol.Frame{Seq: a.seq, Payload: a.buf})
	if err := a.link.Send(data); err != nil {
		util.LogWarning("frame %d not sent: %v", a.seq, err)
	} else {
		util.Stats.AddFrame()
	}

	a.seq++ // wraps mod 65536
	a.buf = a.buf[:0]
}

// Buffered returns the number of bytes waiting for the next flush.
func (a *Accumulator) Buffered() int {
	return len(a.buf)
}
