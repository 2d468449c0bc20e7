// Package storage abstracts the file store a bridge transfers against.
// The bridge only ever holds one open file at a time and accesses it byte
// by byte, the way the stepping engine drives it.
package storage

// Mode selects the direction a file is opened for.
type Mode int

const (
	Read Mode = iota
	Write
)

// File is an open file handle. Reads return io.EOF at end of file.
type File interface {
	ReadByte() (byte, error)
	WriteByte(b byte) error

	// Size returns the file size in bytes. For a file open for writing it
	// is the number of bytes written so far, which doubles as transfer
	// progress on the receiving side.
	Size() int64

	Close() error
}

// Store opens files by name. Open failures must be immediate — the tick
// loop has no way to wait.
type Store interface {
	Open(name string, mode Mode) (File, error)
}
