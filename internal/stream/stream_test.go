package stream

import (
	"bytes"
	"testing"

	"github.com/meshfiles/zmbridge/internal/mesh"
	"github.com/meshfiles/zmbridge/internal/protocol"
)

// recvFrame pops the next raw packet from end and decodes it as a stream
// frame, failing the test when nothing is queued.
func recvFrame(t *testing.T, end *mesh.PairEnd) *protocol.Frame {
	t.Helper()

	pkt, ok := end.Receive()
	if !ok {
		t.Fatal("expected a packet on the peer end, got none")
	}
	f, err := protocol.Decode(pkt.Payload)
	if err != nil {
		t.Fatalf("peer received a non-frame packet: %v", err)
	}
	return f
}

// sendFrame encodes a frame and delivers it into end's receive queue.
func sendFrame(t *testing.T, end *mesh.PairEnd, seq uint16, payload []byte) {
	t.Helper()
	end.Inject(protocol.Encode(&protocol.Frame{Seq: seq, Payload: payload}))
}

// drain reads every available byte out of w.
func drain(w *Window) []byte {
	var out []byte
	for w.Available() > 0 {
		out = append(out, byte(w.Read()))
	}
	return out
}

// ---------------------------------------------------------------------------
// Send side
// ---------------------------------------------------------------------------

// TestAccumulatorImplicitFlush verifies that writing past the payload limit
// splits the data into maximum-sized frames with consecutive sequence
// numbers: 300 bytes through a 230-byte packet limit must come out as a
// 227-byte frame 0 and a 73-byte frame 1.
func TestAccumulatorImplicitFlush(t *testing.T) {
	local, peer := mesh.Pair()
	s := New(local, protocol.DefaultMaxPacketSize)

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}
	s.Write(data)
	s.Flush()

	first := recvFrame(t, peer)
	if first.Seq != 0 || len(first.Payload) != 227 {
		t.Errorf("first frame: got seq %d len %d, want seq 0 len 227", first.Seq, len(first.Payload))
	}

	second := recvFrame(t, peer)
	if second.Seq != 1 || len(second.Payload) != 73 {
		t.Errorf("second frame: got seq %d len %d, want seq 1 len 73", second.Seq, len(second.Payload))
	}

	if got := append(first.Payload, second.Payload...); !bytes.Equal(got, data) {
		t.Error("reassembled payloads do not match the written data")
	}
	if peer.Available() {
		t.Error("unexpected extra frame on the wire")
	}
}

// TestAccumulatorFlushEmpty verifies that flushing with nothing buffered
// emits no frame and does not burn a sequence number.
func TestAccumulatorFlushEmpty(t *testing.T) {
	local, peer := mesh.Pair()
	s := New(local, protocol.DefaultMaxPacketSize)

	s.Flush()
	if peer.Available() {
		t.Fatal("empty flush emitted a frame")
	}

	s.WriteByte('x')
	s.Flush()
	if f := recvFrame(t, peer); f.Seq != 0 {
		t.Errorf("sequence advanced by an empty flush: got %d, want 0", f.Seq)
	}
}

// TestAccumulatorSeqWrap verifies that the outbound sequence number wraps
// from 65535 back to 0.
func TestAccumulatorSeqWrap(t *testing.T) {
	local, peer := mesh.Pair()
	acc := NewAccumulator(local, 16)
	acc.seq = 65535

	acc.WriteByte('a')
	acc.Flush()
	acc.WriteByte('b')
	acc.Flush()

	if f := recvFrame(t, peer); f.Seq != 65535 {
		t.Errorf("first frame seq: got %d, want 65535", f.Seq)
	}
	if f := recvFrame(t, peer); f.Seq != 0 {
		t.Errorf("wrapped frame seq: got %d, want 0", f.Seq)
	}
}

// ---------------------------------------------------------------------------
// Receive side
// ---------------------------------------------------------------------------

// TestWindowInOrderDelivery verifies that in-order frames come out as one
// continuous byte stream.
func TestWindowInOrderDelivery(t *testing.T) {
	local, _ := mesh.Pair()
	w := NewWindow(local)

	sendFrame(t, local, 0, []byte("hello "))
	sendFrame(t, local, 1, []byte("mesh"))

	if got := drain(w); string(got) != "hello mesh" {
		t.Errorf("stream content: got %q, want %q", got, "hello mesh")
	}
	if b := w.Read(); b != EndOfData {
		t.Errorf("Read on empty window: got %d, want EndOfData", b)
	}
}

// TestWindowDropOnMismatch verifies the no-reorder discipline: with frame 4
// expected, an arriving frame 5 is dropped and the expectation does not
// move, so a later frame 4 is still accepted.
func TestWindowDropOnMismatch(t *testing.T) {
	local, _ := mesh.Pair()
	w := NewWindow(local)

	for seq := uint16(0); seq < 4; seq++ {
		sendFrame(t, local, seq, []byte{byte(seq)})
		drain(w)
	}

	sendFrame(t, local, 5, []byte("early"))
	if n := w.Available(); n != 0 {
		t.Fatalf("out-of-order frame was accepted: Available = %d", n)
	}
	if w.expect != 4 {
		t.Fatalf("expectation moved on a dropped frame: got %d, want 4", w.expect)
	}

	sendFrame(t, local, 4, []byte("ok"))
	if got := drain(w); string(got) != "ok" {
		t.Errorf("in-order frame after a drop: got %q, want %q", got, "ok")
	}
}

// TestWindowIgnoresForeignPackets verifies that non-frame traffic on the
// link is discarded without disturbing the stream.
func TestWindowIgnoresForeignPackets(t *testing.T) {
	local, _ := mesh.Pair()
	w := NewWindow(local)

	local.Inject([]byte("OK: some chat message"))
	if n := w.Available(); n != 0 {
		t.Fatalf("foreign packet surfaced as stream data: Available = %d", n)
	}

	sendFrame(t, local, 0, []byte("real"))
	if got := drain(w); string(got) != "real" {
		t.Errorf("stream after foreign packet: got %q, want %q", got, "real")
	}
}

// TestWindowOnePollPerCall verifies that a drained window pulls at most one
// packet per Available call, and that a populated window pulls none.
func TestWindowOnePollPerCall(t *testing.T) {
	local, _ := mesh.Pair()
	w := NewWindow(local)

	sendFrame(t, local, 0, []byte("aa"))
	sendFrame(t, local, 1, []byte("b"))

	if n := w.Available(); n != 2 {
		t.Fatalf("first poll: got %d bytes, want 2", n)
	}
	// Window still holds frame 0 — frame 1 must stay queued on the link.
	if !local.Available() {
		t.Fatal("populated window pulled a second frame from the link")
	}

	drain(w)
	if local.Available() {
		t.Fatal("draining the window left frame 1 on the link")
	}
}

// TestWindowSeqWrap verifies that the expected sequence number wraps from
// 65535 back to 0.
func TestWindowSeqWrap(t *testing.T) {
	local, _ := mesh.Pair()
	w := NewWindow(local)
	w.expect = 65535

	sendFrame(t, local, 65535, []byte("a"))
	sendFrame(t, local, 0, []byte("b"))

	if got := drain(w); string(got) != "ab" {
		t.Errorf("stream across the wrap: got %q, want %q", got, "ab")
	}
}

// TestWindowPeek verifies that Peek exposes the next byte without consuming
// it.
func TestWindowPeek(t *testing.T) {
	local, _ := mesh.Pair()
	w := NewWindow(local)

	sendFrame(t, local, 0, []byte("xy"))

	if b := w.Peek(); b != 'x' {
		t.Errorf("Peek: got %d, want %d", b, 'x')
	}
	if b := w.Read(); b != 'x' {
		t.Errorf("Read after Peek: got %d, want %d", b, 'x')
	}
	if b := w.Read(); b != 'y' {
		t.Errorf("second Read: got %d, want %d", b, 'y')
	}
	if b := w.Peek(); b != EndOfData {
		t.Errorf("Peek on empty window: got %d, want EndOfData", b)
	}
}

// ---------------------------------------------------------------------------
// Both sides together
// ---------------------------------------------------------------------------

// TestStreamRoundTrip pushes a payload through two streams joined by an
// in-memory pair and checks it arrives intact and in order.
func TestStreamRoundTrip(t *testing.T) {
	endA, endB := mesh.Pair()
	sender := New(endA, 32)
	receiver := New(endB, 32)

	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	sender.Write(data)
	sender.Flush()

	var got []byte
	for receiver.Available() > 0 {
		got = append(got, byte(receiver.Read()))
	}

	if !bytes.Equal(got, data) {
		t.Fatalf("round trip corrupted the stream: got %d bytes, want %d", len(got), len(data))
	}
}

// TestStreamTinyPacketSizeFallsBack verifies that a packet size too small
// for the frame header falls back to the default.
func TestStreamTinyPacketSizeFallsBack(t *testing.T) {
	local, peer := mesh.Pair()
	s := New(local, protocol.HeaderSize) // no room for payload

	data := make([]byte, protocol.DefaultMaxPacketSize-protocol.HeaderSize)
	s.Write(data)

	f := recvFrame(t, peer)
	if len(f.Payload) != len(data) {
		t.Errorf("fallback frame payload: got %d bytes, want %d", len(f.Payload), len(data))
	}
}
