// Package stream is the stream-to-packet adapter: it gives a byte-oriented
// transfer protocol the continuous read/write channel it expects, on top of
// a transport that only delivers discrete, size-bounded packets.
//
// The send side accumulates writes into MTU-sized frames tagged with a
// per-direction sequence number; the receive side decodes frames back into
// an ordered byte stream, discarding anything that arrives out of order.
// The adapter deliberately implements no reliability: no acknowledgments,
// no retransmission, no reorder buffering. Loss tolerance is the upper
// protocol's job.
package stream

import (
	"github.com/meshfiles/zmbridge/internal/mesh"
	"github.com/meshfiles/zmbridge/internal/protocol"
)

// Stream binds an Accumulator and a Window to one mesh link, exposing the
// byte-stream contract the stepping engine is driven through. One Stream is
// created per bridge and reused across transfer sessions; its sequence
// counters run for the whole process lifetime.
type Stream struct {
	acc *Accumulator
	win *Window
}

// New creates a Stream on link. maxPacket bounds the encoded frame size;
// values too small to fit a header fall back to the default packet size.
func New(link mesh.Link, maxPacket int) *Stream {
	if maxPacket <= protocol.HeaderSize {
		maxPacket = protocol.DefaultMaxPacketSize
	}
	return &Stream{
		acc: NewAccumulator(link, maxPacket-protocol.HeaderSize),
		win: NewWindow(link),
	}
}

// Available returns the number of stream bytes ready to read.
func (s *Stream) Available() int { return s.win.Available() }

// Read consumes and returns the next stream byte, or EndOfData.
func (s *Stream) Read() int { return s.win.Read() }

// Peek returns the next stream byte without consuming it, or EndOfData.
func (s *Stream) Peek() int { return s.win.Peek() }

// WriteByte appends one byte to the outgoing stream.
func (s *Stream) WriteByte(b byte) { s.acc.WriteByte(b) }

// Write appends p to the outgoing stream.
func (s *Stream) Write(p []byte) { s.acc.Write(p) }

// Flush forces the pending outgoing bytes onto the wire as one frame.
func (s *Stream) Flush() { s.acc.Flush() }
