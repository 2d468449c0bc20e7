// Package protocol defines the wire format used to carry a byte stream over
// the mesh: the binary frame layout and the plain-text control commands.
package protocol

// Marker is the first byte of every stream frame. It distinguishes transfer
// traffic from other text messages sharing the same mesh channel.
const Marker byte = 0xFF

// HeaderSize is the fixed frame header size: Marker(1) + Seq(2).
const HeaderSize = 3

// DefaultMaxPacketSize is the largest mesh packet the bridge emits by
// default. It matches the usable payload limit of a LoRa mesh radio.
const DefaultMaxPacketSize = 230

// Frame is one mesh packet's worth of the byte stream.
type Frame struct {
	Seq     uint16 // per-direction sequence number, wraps mod 65536
	Payload []byte
}
