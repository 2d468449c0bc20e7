package storage

import (
	"errors"
	"io"
	"sync"
)

// MemStore is an in-memory Store. It backs tests and the loopback demo
// mode, where two bridges in one process transfer between two stores.
type MemStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string][]byte)}
}

// Put stores content under name, replacing any previous content.
func (m *MemStore) Put(name string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(content))
	copy(buf, content)
	m.files[name] = buf
}

// Get returns the content stored under name.
func (m *MemStore) Get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[name]
	return content, ok
}

// Open opens name for reading (must exist) or writing (created empty; the
// content becomes visible via Get once the handle is closed).
func (m *MemStore) Open(name string, mode Mode) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch mode {
	case Read:
		content, ok := m.files[name]
		if !ok {
			return nil, errors.New("storage: file not found: " + name)
		}
		return &memReadFile{content: content}, nil

	case Write:
		return &memWriteFile{store: m, name: name}, nil
	}
	return nil, errors.New("storage: unknown open mode")
}

type memReadFile struct {
	content []byte
	off     int
}

func (f *memReadFile) ReadByte() (byte, error) {
	if f.off >= len(f.content) {
		return 0, io.EOF
	}
	b := f.content[f.off]
	f.off++
	return b, nil
}

func (f *memReadFile) WriteByte(byte) error { return errors.New("storage: file open for reading") }
func (f *memReadFile) Size() int64          { return int64(len(f.content)) }
func (f *memReadFile) Close() error         { return nil }

type memWriteFile struct {
	store *MemStore
	name  string
	buf   []byte
}

func (f *memWriteFile) ReadByte() (byte, error) { return 0, errors.New("storage: file open for writing") }

func (f *memWriteFile) WriteByte(b byte) error {
	f.buf = append(f.buf, b)
	return nil
}

func (f *memWriteFile) Size() int64 { return int64(len(f.buf)) }

func (f *memWriteFile) Close() error {
	f.store.mu.Lock()
	f.store.files[f.name] = f.buf
	f.store.mu.Unlock()
	return nil
}
