// Package session tracks the lifecycle of a single file transfer: its
// direction, the exclusively-owned file handle, and the retry budget.
package session

import (
	"time"

	"github.com/meshfiles/zmbridge/internal/storage"
	"github.com/meshfiles/zmbridge/internal/util"
)

// State is the transfer direction, or Idle between transfers.
type State int

const (
	Idle State = iota
	Receiving
	Sending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Receiving:
		return "RECEIVING"
	case Sending:
		return "SENDING"
	}
	return "UNKNOWN"
}

// Session is an explicit context object for one transfer, created by the
// bridge and passed by reference — no hidden global state, so multiple
// bridges can coexist in one process (and in tests). A bridge holds exactly
// one Session and reuses it across transfers; only one transfer is active
// at a time.
type Session struct {
	state     State
	filename  string
	file      storage.File
	peer      string
	retries   int
	startedAt time.Time
}

// New creates an idle session.
func New() *Session {
	return &Session{}
}

// Begin records a new active transfer. The session takes ownership of file.
func (s *Session) Begin(state State, filename string, file storage.File, peer string) {
	s.state = state
	s.filename = filename
	s.file = file
	s.peer = peer
	s.retries = 0
	s.startedAt = time.Now()
}

// Reset closes the file handle and returns the session to Idle. Called on
// Complete and on Error alike — a partially written file stays on disk
// as-is.
func (s *Session) Reset() {
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			util.LogWarning("failed to close %s: %v", s.filename, err)
		}
		s.file = nil
	}
	s.state = Idle
	s.filename = ""
	s.peer = ""
	s.retries = 0
}

// Retry increments the retry counter and returns the new count.
func (s *Session) Retry() int {
	s.retries++
	return s.retries
}

// Active reports whether a transfer is in flight.
func (s *Session) Active() bool { return s.state != Idle }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Filename returns the name of the file being transferred.
func (s *Session) Filename() string { return s.filename }

// File returns the file handle owned by this session, nil when idle.
func (s *Session) File() storage.File { return s.file }

// Peer returns the node id that requested the transfer, when known.
func (s *Session) Peer() string { return s.peer }

// Elapsed returns how long the current transfer has been running.
func (s *Session) Elapsed() time.Duration { return time.Since(s.startedAt) }
