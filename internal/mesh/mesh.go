// Package mesh defines the packet transport boundary the bridge runs on,
// plus the built-in link implementations (in-memory pair, TCP-attached
// radio). Routing, addressing and delivery are the mesh's problem — a Link
// only hands the bridge discrete, size-bounded packets with no delivery
// confirmation and no ordering guarantee across loss.
package mesh

// Packet is one datagram delivered by the mesh.
type Packet struct {
	From    string // sender node id, empty when the link cannot tell
	Payload []byte
}

// Link is the send/receive primitive consumed by the bridge and the stream
// adapter. All methods must return immediately — the bridge is a
// single-threaded tick loop with no suspension mechanism.
type Link interface {
	// Available reports whether a packet is waiting to be received.
	Available() bool

	// Receive pops the next pending packet. Returns false when none is
	// waiting.
	Receive() (*Packet, bool)

	// Send transmits a packet payload, fire-and-forget. An error means the
	// payload was not accepted locally (link down, queue full); delivery
	// itself is never confirmed.
	Send(payload []byte) error

	// Close releases the link's resources.
	Close() error
}
