// Package storage provides uniform byte-granular access to the backends a
// pyramid can live on: a local filesystem, a Ceph pool, an S3 bucket or a
// Swift container. All contexts expose the same read/write contract so the
// slab layer never has to know where its bytes come from.
package storage

import (
	"errors"
	"fmt"
	"sync"
)

// ContextType identifies a storage backend family.
type ContextType int

const (
	TypeFile ContextType = iota
	TypeCeph
	TypeS3
	TypeSwift
)

func (t ContextType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeCeph:
		return "ceph"
	case TypeS3:
		return "s3"
	case TypeSwift:
		return "swift"
	}
	return "unknown"
}

var (
	// ErrNotFound reports a missing object or file. It is never retried.
	ErrNotFound = errors.New("storage: object not found")

	// ErrTimeout reports a transient timeout; reads are retried on it.
	ErrTimeout = errors.New("storage: operation timed out")

	// ErrNotConnected reports use of a context before Connect succeeded.
	ErrNotConnected = errors.New("storage: context not connected")
)

// Context is the abstraction over a storage backend.
//
// Read returns the bytes actually available: a read that runs past the end
// of an object returns the shorter slice without error. The slab layer
// relies on this to detect symbolic slabs, whose whole payload is smaller
// than a regular header.
//
// Writes between OpenToWrite and CloseToWrite target a per-object staging
// buffer on object stores (full-object PUT on close) and the file itself on
// a filesystem context. A context must be Connect()ed before use.
type Context interface {
	Connect() error
	Connected() bool

	Read(offset, size int, name string) ([]byte, error)
	Write(data []byte, offset int, name string) error
	WriteFull(data []byte, name string) error

	OpenToWrite(name string) error
	CloseToWrite(name string) error

	Exists(name string) bool

	Type() ContextType
	// Tray is the bucket, pool, container or root directory of the context.
	Tray() string
}

// Book owns one connected context per (type, tray) pair, shared read-only
// across requests once initialised.
type Book struct {
	mu       sync.Mutex
	contexts map[string]Context
}

func NewBook() *Book {
	return &Book{contexts: make(map[string]Context)}
}

// Get returns the already-registered context for the pair, or nil.
func (b *Book) Get(t ContextType, tray string) Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contexts[bookKey(t, tray)]
}

// Add registers and connects a context for its (type, tray) pair. If a
// context is already registered for the pair, the existing one is returned
// and the argument is discarded, so callers can blindly Add.
func (b *Book) Add(c Context) (Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := bookKey(c.Type(), c.Tray())
	if existing, ok := b.contexts[key]; ok {
		return existing, nil
	}
	if err := c.Connect(); err != nil {
		return nil, fmt.Errorf("connecting %s context on tray %q: %w", c.Type(), c.Tray(), err)
	}
	b.contexts[key] = c
	return c, nil
}

func bookKey(t ContextType, tray string) string {
	return t.String() + "/" + tray
}
