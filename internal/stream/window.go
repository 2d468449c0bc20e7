package stream

import (
	"github.com/meshfiles/zmbridge/internal/mesh"
	"github.com/meshfiles/zmbridge/internal/protocol"
	"github.com/meshfiles/zmbridge/internal/util"
)

// EndOfData is the sentinel Read and Peek return when no byte is available.
// It mirrors the stream contract the stepping engine was written against:
// an empty stream is not an error, the engine just polls again next tick.
const EndOfData = -1

// Window holds at most one decoded frame pending consumption and enforces
// strict sequence order. There is no queue: a frame arriving before the
// previous one is drained cannot be represented and is dropped, as is any
// frame whose sequence number is not exactly the next expected one
// (drop-on-mismatch). A single lost frame therefore stalls the stream until
// the session is reset from outside — the adapter has no retransmission to
// ask for.
type Window struct {
	link   mesh.Link
	buf    []byte
	cursor int
	expect uint16
}

// NewWindow creates a window expecting sequence numbers starting at 0.
func NewWindow(link mesh.Link) *Window {
	return &Window{link: link}
}

// Available returns the number of unconsumed bytes in the window. When the
// window is drained it polls the link once: a packet that decodes to the
// expected sequence number repopulates the window; anything else (foreign
// traffic, wrong sequence) is discarded and 0 is returned for this call.
// No retry is scheduled — the caller polls again on its next tick.
func (w *Window) Available() int {
	if w.cursor < len(w.buf) {
		return len(w.buf) - w.cursor
	}

	if !w.link.Available() {
		return 0
	}
	pkt, ok := w.link.Receive()
	if !ok {
		return 0
	}

	f, err := protocol.Decode(pkt.Payload)
	if err != nil {
		util.Stats.AddDrop()
		util.LogDebug("discarding non-stream packet (%d bytes): %v", len(pkt.Payload), err)
		return 0
	}
	if f.Seq != w.expect {
		util.Stats.AddDrop()
		util.LogDebug("sequence mismatch: got %d, expected %d — frame dropped", f.Seq, w.expect)
		return 0
	}

	w.buf = f.Payload
	w.cursor = 0
	w.expect++ // wraps mod 65536
	return len(w.buf)
}

// Read consumes and returns the next byte, or EndOfData when none is
// available.
func (w *Window) Read() int {
	if w.Available() > 0 {
		b := w.buf[w.cursor]
		w.cursor++
		return int(b)
	}
	return EndOfData
}

// Peek returns the next byte without consuming it, or EndOfData when none
// is available.
func (w *Window) Peek() int {
	if w.Available() > 0 {
		return int(w.buf[w.cursor])
	}
	return EndOfData
}
