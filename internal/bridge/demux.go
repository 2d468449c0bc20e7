package bridge

import (
	"github.com/meshfiles/zmbridge/internal/mesh"
	"github.com/meshfiles/zmbridge/internal/protocol"
	"github.com/meshfiles/zmbridge/internal/util"
)

// demuxQueueSize bounds each routed queue. Overflow is dropped — the same
// fate a lossy radio would hand the packet.
const demuxQueueSize = 8

// demux routes raw mesh packets by their first byte: stream frames (marker
// 0xFF) go to the adapter's side, everything else (control text) to the
// bridge's side. Both sides pull at most one raw packet per poll, so one
// shared receive queue serves two consumers without either starving the
// other or stealing its traffic.
type demux struct {
	raw    mesh.Link
	frames []*mesh.Packet
	cmds   []*mesh.Packet
}

func newDemux(raw mesh.Link) *demux {
	return &demux{raw: raw}
}

// pullOne moves at most one packet from the raw link into the routed
// queues.
func (d *demux) pullOne() {
	if !d.raw.Available() {
		return
	}
	pkt, ok := d.raw.Receive()
	if !ok {
		return
	}

	if len(pkt.Payload) > 0 && pkt.Payload[0] == protocol.Marker {
		d.frames = push(d.frames, pkt, "frame")
	} else {
		d.cmds = push(d.cmds, pkt, "control")
	}
}

func push(q []*mesh.Packet, pkt *mesh.Packet, kind string) []*mesh.Packet {
	if len(q) >= demuxQueueSize {
		util.LogDebug("%s queue full, dropping %d-byte packet", kind, len(pkt.Payload))
		util.Stats.AddDrop()
		return q
	}
	return append(q, pkt)
}

// pollCommand returns the next pending control packet, polling the raw link
// once when the queue is empty.
func (d *demux) pollCommand() (*mesh.Packet, bool) {
	if len(d.cmds) == 0 {
		d.pullOne()
	}
	if len(d.cmds) == 0 {
		return nil, false
	}
	pkt := d.cmds[0]
	d.cmds = d.cmds[1:]
	return pkt, true
}

// frameSide is the mesh.Link view handed to the stream adapter: it only
// ever yields stream frames. Sends pass straight through to the raw link.
type frameSide struct {
	d *demux
}

func (d *demux) frameLink() mesh.Link { return &frameSide{d: d} }

func (f *frameSide) Available() bool {
	if len(f.d.frames) == 0 {
		f.d.pullOne()
	}
	return len(f.d.frames) > 0
}

func (f *frameSide) Receive() (*mesh.Packet, bool) {
	if len(f.d.frames) == 0 {
		return nil, false
	}
	pkt := f.d.frames[0]
	f.d.frames = f.d.frames[1:]
	return pkt, true
}

func (f *frameSide) Send(payload []byte) error { return f.d.raw.Send(payload) }
func (f *frameSide) Close() error              { return f.d.raw.Close() }
