// Package engine defines the stepping-engine boundary: the byte-stream
// transfer protocol the bridge advances one step per tick. The protocol
// itself (handshake, checksums, retries on the wire) is the engine's own
// business — the bridge only opens the file, arms the engine, and reacts to
// its terminal results.
package engine

import (
	"time"

	"github.com/meshfiles/zmbridge/internal/storage"
)

// Result is what one engine step reports back to the bridge.
type Result int

const (
	InProgress Result = iota
	Complete
	Error
)

func (r Result) String() string {
	switch r {
	case InProgress:
		return "in progress"
	case Complete:
		return "complete"
	case Error:
		return "error"
	}
	return "unknown"
}

// Stream is the byte channel an engine is driven through. It is the
// adapter's contract: non-blocking, sentinel-on-empty reads and
// never-failing writes.
type Stream interface {
	// Available returns the number of bytes ready to read.
	Available() int

	// Read consumes the next byte, or returns a negative sentinel when the
	// stream is empty.
	Read() int

	// Peek is Read without consuming.
	Peek() int

	// WriteByte appends a byte to the outgoing stream. It never blocks and
	// never fails.
	WriteByte(b byte)

	// Flush forces buffered outgoing bytes onto the wire.
	Flush()
}

// Engine is a transfer protocol advanced cooperatively by the tick loop.
// Implementations must never block in Step: all stream and file operations
// return immediately.
type Engine interface {
	// BeginReceive arms the engine to receive into file. timeout bounds
	// inactivity, not total duration — LoRa transfers are slow but should
	// never be silent for that long.
	BeginReceive(file storage.File, timeout time.Duration)

	// BeginSend arms the engine to send file.
	BeginSend(file storage.File, timeout time.Duration)

	// Step advances the protocol by one bounded unit of work.
	Step() Result

	// Abort cancels the active transfer. The engine returns to its idle
	// state; the file handle remains the caller's to close.
	Abort()

	// Progress reports bytes moved so far and the total expected, 0 when
	// the total is not yet known.
	Progress() (transferred, total int64)
}
