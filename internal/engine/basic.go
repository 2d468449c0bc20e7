package engine

import (
	"errors"
	"io"
	"time"

	"github.com/meshfiles/zmbridge/internal/storage"
	"github.com/meshfiles/zmbridge/internal/util"
)

// Basic is the built-in transfer engine: a minimal length-prefixed protocol
// (4-byte big-endian size header, then the raw file bytes). It exists so
// the bridge works end-to-end out of the box; a real ZMODEM engine plugs in
// through the same Engine interface and replaces it.
//
// Basic inherits the adapter's limitation wholesale: it has no
// acknowledgments, so a lost frame stalls the transfer until the
// inactivity timeout fires.
type Basic struct {
	stream Stream

	state        basicState
	file         storage.File
	timeout      time.Duration
	lastActivity time.Time
	transferred  int64
	total        int64
	sizeBuf      [4]byte
	sizeGot      int
}

type basicState int

const (
	basicIdle basicState = iota
	basicSendSize
	basicSendData
	basicRecvSize
	basicRecvData
)

// stepBudget bounds the bytes moved per Step so one tick never hogs the
// loop.
const stepBudget = 64

// NewBasic creates a Basic engine driven through stream.
func NewBasic(stream Stream) *Basic {
	return &Basic{stream: stream}
}

// BeginReceive arms the engine to receive into file.
func (e *Basic) BeginReceive(file storage.File, timeout time.Duration) {
	e.reset()
	e.state = basicRecvSize
	e.file = file
	e.timeout = timeout
	e.touch()
}

// BeginSend arms the engine to send file.
func (e *Basic) BeginSend(file storage.File, timeout time.Duration) {
	e.reset()
	e.state = basicSendSize
	e.file = file
	e.timeout = timeout
	e.total = file.Size()
	e.touch()
}

// Abort cancels the active transfer.
func (e *Basic) Abort() {
	e.reset()
}

// Progress reports bytes moved and the expected total.
func (e *Basic) Progress() (transferred, total int64) {
	return e.transferred, e.total
}

// Step advances the transfer by at most stepBudget bytes.
func (e *Basic) Step() Result {
	switch e.state {
	case basicIdle:
		return InProgress

	case basicSendSize:
		return e.stepSendSize()
	case basicSendData:
		return e.stepSendData()

	case basicRecvSize:
		return e.stepRecvSize()
	case basicRecvData:
		return e.stepRecvData()
	}
	return Error
}

// ---------------------------------------------------------------------------
// Sender states
// ---------------------------------------------------------------------------

func (e *Basic) stepSendSize() Result {
	size := uint32(e.total)
	e.stream.WriteByte(byte(size >> 24))
	e.stream.WriteByte(byte(size >> 16))
	e.stream.WriteByte(byte(size >> 8))
	e.stream.WriteByte(byte(size))
	e.state = basicSendData
	e.touch()
	return InProgress
}

func (e *Basic) stepSendData() Result {
	for i := 0; i < stepBudget; i++ {
		if e.transferred >= e.total {
			e.stream.Flush()
			e.state = basicIdle
			return Complete
		}
		b, err := e.file.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				util.LogError("send engine: file read failed: %v", err)
			}
			// EOF before the advertised size means the file shrank under us.
			e.state = basicIdle
			return Error
		}
		e.stream.WriteByte(b)
		e.transferred++
	}
	e.touch()
	return InProgress
}

// ---------------------------------------------------------------------------
// Receiver states
// ---------------------------------------------------------------------------

func (e *Basic) stepRecvSize() Result {
	for e.sizeGot < len(e.sizeBuf) {
		b := e.stream.Read()
		if b < 0 {
			return e.checkTimeout()
		}
		e.sizeBuf[e.sizeGot] = byte(b)
		e.sizeGot++
		e.touch()
	}

	e.total = int64(e.sizeBuf[0])<<24 | int64(e.sizeBuf[1])<<16 | int64(e.sizeBuf[2])<<8 | int64(e.sizeBuf[3])
	e.state = basicRecvData

	if e.total == 0 {
		e.state = basicIdle
		return Complete
	}
	return InProgress
}

func (e *Basic) stepRecvData() Result {
	for i := 0; i < stepBudget; i++ {
		b := e.stream.Read()
		if b < 0 {
			return e.checkTimeout()
		}
		if err := e.file.WriteByte(byte(b)); err != nil {
			util.LogError("receive engine: file write failed: %v", err)
			e.state = basicIdle
			return Error
		}
		e.transferred++
		e.touch()

		if e.transferred >= e.total {
			e.state = basicIdle
			return Complete
		}
	}
	return InProgress
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (e *Basic) reset() {
	e.state = basicIdle
	e.file = nil
	e.transferred = 0
	e.total = 0
	e.sizeGot = 0
}

func (e *Basic) touch() {
	e.lastActivity = time.Now()
}

func (e *Basic) checkTimeout() Result {
	if e.timeout > 0 && time.Since(e.lastActivity) > e.timeout {
		util.LogWarning("transfer engine: no activity for %v, giving up", e.timeout)
		e.state = basicIdle
		return Error
	}
	return InProgress
}
