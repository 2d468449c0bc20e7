package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotFrame reports that a packet does not start with the stream marker.
// Such packets belong to other traffic on the channel and are not an error
// worth surfacing beyond a counter.
var ErrNotFrame = errors.New("not a stream frame")

// Encode serializes a Frame into a byte slice for mesh transmission.
// The caller is responsible for keeping len(f.Payload) within the packet
// size limit; Encode itself places no bound on it.
func Encode(f *Frame) []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = Marker
	binary.BigEndian.PutUint16(buf[1:3], f.Seq)
	if len(f.Payload) > 0 {
		copy(buf[HeaderSize:], f.Payload)
	}
	return buf
}

// Decode deserializes a raw mesh packet into a Frame.
// Returns ErrNotFrame when the marker byte is missing.
func Decode(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("frame too short: %d bytes (need at least %d)", len(data), HeaderSize)
	}
	if data[0] != Marker {
		return nil, ErrNotFrame
	}
	f := &Frame{
		Seq: binary.BigEndian.Uint16(data[1:3]),
	}
	if len(data) > HeaderSize {
		f.Payload = make([]byte, len(data)-HeaderSize)
		copy(f.Payload, data[HeaderSize:])
	}
	return f, nil
}
