// Package meshrtc provides a point-to-point virtual mesh link over a WebRTC
// DataChannel, with WebSocket signaling. It exists so two bridges can be
// linked across the internet for testing without a radio on either end; the
// bridge sees the same packet semantics a real mesh would give it.
package meshrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/meshfiles/zmbridge/internal/mesh"
	"github.com/meshfiles/zmbridge/internal/util"
)

const (
	highWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
	queueSize     = 64         // rx/tx channel capacity
)

// Link wraps a PeerConnection + DataChannel pair as a mesh.Link.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time. The PeerConnection state is logged but does not
// drive open/close decisions.
type Link struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	rx          chan *mesh.Packet
	tx          chan []byte
	openSignal  chan struct{}
	drainSignal chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// newLink wires the callbacks and starts the single-writer send loop.
func newLink(ctx context.Context, pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *Link {
	lCtx, lCancel := context.WithCancel(ctx)

	l := &Link{
		pc:          pc,
		dc:          dc,
		rx:          make(chan *mesh.Packet, queueSize),
		tx:          make(chan []byte, queueSize),
		openSignal:  make(chan struct{}),
		drainSignal: make(chan struct{}, 1),
		ctx:         lCtx,
		cancel:      lCancel,
	}

	// DC open gate.
	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(l.openSignal) })
	})

	// DC close → shut the link down.
	dc.OnClose(func() {
		util.LogInfo("mesh DataChannel closed")
		lCancel()
	})

	// Record PC state (informational only).
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
	})

	// Inbound messages → packet queue. Full queue drops, like a radio.
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		payload := make([]byte, len(msg.Data))
		copy(payload, msg.Data)
		util.Stats.AddRecv(len(payload))

		select {
		case l.rx <- &mesh.Packet{Payload: payload}:
		default:
			util.LogDebug("meshrtc: receive queue full, dropping %d-byte packet", len(payload))
		}
	})

	// Backpressure: resume signal when the SCTP buffer drains.
	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case l.drainSignal <- struct{}{}:
		default:
		}
	})

	go l.sendLoop()

	return l
}

// sendLoop is the single-writer goroutine: waits for the DataChannel to
// open, then drains tx with backpressure awareness.
func (l *Link) sendLoop() {
	select {
	case <-l.openSignal:
	case <-l.ctx.Done():
		return
	}

	for {
		select {
		case payload := <-l.tx:
			if l.dc.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-l.drainSignal:
				case <-l.ctx.Done():
					return
				}
			}
			if err := l.dc.Send(payload); err != nil {
				util.LogError("meshrtc: send failed: %v", err)
				l.cancel()
				return
			}
			util.Stats.AddSent(len(payload))

		case <-l.ctx.Done():
			return
		}
	}
}

// Available reports whether an inbound packet is waiting.
func (l *Link) Available() bool {
	return len(l.rx) > 0
}

// Receive pops the next inbound packet without blocking.
func (l *Link) Receive() (*mesh.Packet, bool) {
	select {
	case pkt := <-l.rx:
		return pkt, true
	default:
		return nil, false
	}
}

// Send enqueues a payload for the writer goroutine, fire-and-forget.
func (l *Link) Send(payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case <-l.ctx.Done():
		return errors.New("meshrtc: link closed")
	default:
	}

	select {
	case l.tx <- buf:
		return nil
	default:
		return fmt.Errorf("meshrtc: send queue full, dropping %d-byte packet", len(payload))
	}
}

// Close shuts down the DataChannel and PeerConnection.
func (l *Link) Close() error {
	l.cancel()
	return errors.Join(l.dc.Close(), l.pc.Close())
}

// Ready returns a channel closed when the DataChannel is open.
func (l *Link) Ready() <-chan struct{} {
	return l.openSignal
}

// Done returns a channel closed when the link has shut down.
func (l *Link) Done() <-chan struct{} {
	return l.ctx.Done()
}
