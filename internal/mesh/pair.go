package mesh

import (
	"errors"
	"sync"

	"github.com/meshfiles/zmbridge/internal/util"
)

// pairQueueSize bounds each direction of an in-memory pair. A full queue
// drops packets, which is exactly what a lossy radio does.
const pairQueueSize = 64

// PairEnd is one side of an in-memory mesh link.
type PairEnd struct {
	name string
	rx   chan *Packet
	peer *PairEnd

	mu     sync.Mutex
	closed bool
}

// Pair returns two linked in-memory ends: packets sent on one are received
// on the other. Used for loopback mode and for end-to-end tests without a
// radio.
func Pair() (*PairEnd, *PairEnd) {
	a := &PairEnd{name: "a", rx: make(chan *Packet, pairQueueSize)}
	b := &PairEnd{name: "b", rx: make(chan *Packet, pairQueueSize)}
	a.peer = b
	b.peer = a
	return a, b
}

// Available reports whether a packet is queued for this end.
func (p *PairEnd) Available() bool {
	return len(p.rx) > 0
}

// Receive pops the next queued packet without blocking.
func (p *PairEnd) Receive() (*Packet, bool) {
	select {
	case pkt := <-p.rx:
		return pkt, true
	default:
		return nil, false
	}
}

// Send delivers a copy of payload to the peer end. When the peer's queue is
// full the packet is silently dropped, mimicking radio loss.
func (p *PairEnd) Send(payload []byte) error {
	p.peer.mu.Lock()
	closed := p.peer.closed
	p.peer.mu.Unlock()
	if closed {
		return errors.New("mesh pair: peer closed")
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case p.peer.rx <- &Packet{From: p.name, Payload: buf}:
	default:
		util.LogDebug("mesh pair: %s→%s queue full, dropping %d-byte packet", p.name, p.peer.name, len(payload))
	}
	return nil
}

// Inject delivers a payload directly into this end's own receive queue, as
// if the mesh had delivered it. Used by the loopback demo and by tests to
// play the role of a remote peer.
func (p *PairEnd) Inject(payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case p.rx <- &Packet{From: "local", Payload: buf}:
	default:
		util.LogDebug("mesh pair: %s inject dropped, queue full", p.name)
	}
}

// Close marks this end closed. The peer's subsequent sends fail.
func (p *PairEnd) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
