package storage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStoreIO wraps every failure reported by a storage backend
var ErrStoreIO = errors.New("store i/o error")

// Backend names accepted by Open
const (
	BackendPebble = "pebble"
	BackendBadger = "badger"
)

// Store is a key/value store scoped to one namespace
type Store interface {
	Init() error
	// Get returns nil, nil when the key is absent
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// Iterate visits the keys starting with prefix in byte order
	Iterate(prefix string, fn func(key string, value []byte) error) error
	// Update applies every write made by fn atomically
	Update(fn func(b Batch) error) error
	// Clear removes every key of the namespace atomically
	Clear() error
	Close() error
}

// Batch collects writes applied by Store.Update
type Batch interface {
	Put(key string, value []byte) error
	Delete(key string) error
}

// Backend is a database partitioned into namespaces
type Backend interface {
	Namespace(name string) Store
	Close() error
}

// Open opens the named backend at path. An empty path keeps the data in
// memory.
func Open(backend, path string) (Backend, error) {
	switch strings.ToLower(backend) {
	case "", BackendPebble:
		if path == "" {
			return NewInMemoryPebbleDB()
		}
		return NewPebbleDB(path)
	case BackendBadger:
		return NewBadgerDB(path)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}

func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreIO, op, err)
}

// namespacePrefix emulates a column family per namespace
func namespacePrefix(name string) []byte {
	return []byte("ns:" + name + "/")
}
