package mesh

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/meshfiles/zmbridge/internal/util"
)

// Radio stream framing: every packet crossing the TCP socket is wrapped in
// a 4-byte header so packet boundaries survive the byte stream.
const (
	start1 = 0x94
	start2 = 0xC3

	tcpQueueSize  = 64
	maxWirePacket = 512 // sanity bound on the length field
)

// TCPLink talks to a mesh radio attached over a TCP socket. A reader
// goroutine reassembles packets into a bounded queue; a single writer
// goroutine serializes all sends, so Send never blocks the tick loop.
type TCPLink struct {
	conn   net.Conn
	rx     chan *Packet
	tx     chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

// DialTCP connects to a radio at addr (host:port) and starts the reader and
// writer goroutines. The link shuts down when ctx is cancelled or the
// socket fails.
func DialTCP(ctx context.Context, addr string) (*TCPLink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to radio at %s: %w", addr, err)
	}

	lCtx, lCancel := context.WithCancel(ctx)
	l := &TCPLink{
		conn:   conn,
		rx:     make(chan *Packet, tcpQueueSize),
		tx:     make(chan []byte, tcpQueueSize),
		ctx:    lCtx,
		cancel: lCancel,
	}

	go l.readLoop()
	go l.writeLoop()
	go func() {
		<-lCtx.Done()
		conn.Close()
	}()

	return l, nil
}

// Available reports whether a packet has been reassembled and is waiting.
func (l *TCPLink) Available() bool {
	return len(l.rx) > 0
}

// Receive pops the next reassembled packet without blocking.
func (l *TCPLink) Receive() (*Packet, bool) {
	select {
	case pkt := <-l.rx:
		return pkt, true
	default:
		return nil, false
	}
}

// Send enqueues a payload for the writer goroutine. A full queue or a dead
// link returns an error; the payload is not retried.
func (l *TCPLink) Send(payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case <-l.ctx.Done():
		return fmt.Errorf("radio link closed")
	default:
	}

	select {
	case l.tx <- buf:
		return nil
	default:
		return fmt.Errorf("radio send queue full, dropping %d-byte packet", len(payload))
	}
}

// Close shuts the link down.
func (l *TCPLink) Close() error {
	l.cancel()
	return nil
}

// Done returns a channel closed when the link has shut down.
func (l *TCPLink) Done() <-chan struct{} {
	return l.ctx.Done()
}

// readLoop reassembles length-prefixed packets from the socket into rx.
// It scans byte-by-byte for the start marker pair, so a corrupted length
// field only costs the bytes until the next marker, not the whole stream.
// A full rx queue drops the packet — the stream adapter treats that the
// same as radio loss.
func (l *TCPLink) readLoop() {
	defer l.cancel()

	r := bufio.NewReader(l.conn)
	lenBuf := make([]byte, 2)

	for {
		b, err := r.ReadByte()
		if err != nil {
			l.logReadError(err)
			return
		}
		if b != start1 {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			l.logReadError(err)
			return
		}
		if b != start2 {
			continue
		}

		if _, err := io.ReadFull(r, lenBuf); err != nil {
			l.logReadError(err)
			return
		}
		n := int(binary.BigEndian.Uint16(lenBuf))
		if n == 0 || n > maxWirePacket {
			util.LogWarning("radio link: bogus packet length %d, resyncing", n)
			continue
		}

		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			l.logReadError(err)
			return
		}
		util.Stats.AddRecv(4 + n)

		select {
		case l.rx <- &Packet{Payload: payload}:
		default:
			util.LogDebug("radio link: receive queue full, dropping %d-byte packet", n)
		}
	}
}

// writeLoop is the single-writer goroutine. All socket writes go through it
// so concurrent Send calls never interleave partial frames.
func (l *TCPLink) writeLoop() {
	defer l.cancel()

	for {
		select {
		case payload := <-l.tx:
			frame := make([]byte, 4+len(payload))
			frame[0] = start1
			frame[1] = start2
			binary.BigEndian.PutUint16(frame[2:4], uint16(len(payload)))
			copy(frame[4:], payload)

			if _, err := l.conn.Write(frame); err != nil {
				util.LogError("radio link: write failed: %v", err)
				return
			}
			util.Stats.AddSent(len(frame))

		case <-l.ctx.Done():
			return
		}
	}
}

func (l *TCPLink) logReadError(err error) {
	select {
	case <-l.ctx.Done():
		// Already shutting down — no need to log.
	default:
		util.LogError("radio link: read failed: %v", err)
	}
}
