package storage

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DirStore serves files from a single flat directory. Names arrive off the
// mesh and may not escape the root.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at dir. The directory is created if it
// does not exist yet.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}
	return &DirStore{root: dir}, nil
}

// Open opens name for reading or writing. Write mode truncates.
func (d *DirStore) Open(name string, mode Mode) (File, error) {
	clean := filepath.Clean("/" + name) // force-anchor, then strip the anchor
	path := filepath.Join(d.root, clean)

	switch mode {
	case Read:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		return &dirReadFile{f: f, r: bufio.NewReader(f), size: info.Size()}, nil

	case Write:
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		return &dirWriteFile{f: f, w: bufio.NewWriter(f)}, nil
	}
	return nil, errors.New("storage: unknown open mode")
}

type dirReadFile struct {
	f    *os.File
	r    *bufio.Reader
	size int64
}

func (d *dirReadFile) ReadByte() (byte, error) { return d.r.ReadByte() }
func (d *dirReadFile) WriteByte(byte) error    { return errors.New("storage: file open for reading") }
func (d *dirReadFile) Size() int64             { return d.size }
func (d *dirReadFile) Close() error            { return d.f.Close() }

type dirWriteFile struct {
	f       *os.File
	w       *bufio.Writer
	written int64
}

func (d *dirWriteFile) ReadByte() (byte, error) { return 0, errors.New("storage: file open for writing") }

func (d *dirWriteFile) WriteByte(b byte) error {
	if err := d.w.WriteByte(b); err != nil {
		return err
	}
	d.written++
	return nil
}

func (d *dirWriteFile) Size() int64 { return d.written }

func (d *dirWriteFile) Close() error {
	if err := d.w.Flush(); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}
