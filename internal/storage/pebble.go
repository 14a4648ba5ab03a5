package storage

import (
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// PebbleDB wraps the Pebble database
type PebbleDB struct {
	db *pebble.DB
}

// NewPebbleDB opens (or creates) a Pebble database at path
func NewPebbleDB(path string) (*PebbleDB, error) {
	// Ensure directory exists
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MaxOpenFiles: 500,
	}
	return openPebble(path, opts)
}

// NewInMemoryPebbleDB opens a Pebble database backed by an in-memory FS
func NewInMemoryPebbleDB() (*PebbleDB, error) {
	return openPebble("", &pebble.Options{FS: vfs.NewMem()})
}

func openPebble(path string, opts *pebble.Options) (*PebbleDB, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, ioError("open", err)
	}
	return &PebbleDB{db: db}, nil
}

// Close closes the database
func (p *PebbleDB) Close() error {
	if err := p.db.Close(); err != nil {
		return ioError("close", err)
	}
	return nil
}

// Namespace returns a Store whose keys live under the namespace prefix
func (p *PebbleDB) Namespace(name string) Store {
	return &pebbleNamespace{db: p.db, prefix: namespacePrefix(name)}
}

type pebbleNamespace struct {
	db     *pebble.DB
	prefix []byte
}

func (n *pebbleNamespace) key(key string) []byte {
	out := make([]byte, 0, len(n.prefix)+len(key))
	out = append(out, n.prefix...)
	return append(out, key...)
}

// Init is a no-op, the namespace shares the database lifecycle
func (n *pebbleNamespace) Init() error { return nil }

// Close is a no-op, the database is closed by its owner
func (n *pebbleNamespace) Close() error { return nil }

func (n *pebbleNamespace) Get(key string) ([]byte, error) {
	value, closer, err := n.db.Get(n.key(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, ioError("get "+key, err)
	}
	defer closer.Close()

	// Copy the value since it's only valid until closer.Close()
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (n *pebbleNamespace) Put(key string, value []byte) error {
	if err := n.db.Set(n.key(key), value, pebble.Sync); err != nil {
		return ioError("put "+key, err)
	}
	return nil
}

func (n *pebbleNamespace) Delete(key string) error {
	if err := n.db.Delete(n.key(key), pebble.Sync); err != nil {
		return ioError("delete "+key, err)
	}
	return nil
}

func (n *pebbleNamespace) Iterate(prefix string, fn func(key string, value []byte) error) error {
	full := n.key(prefix)
	iter, err := n.db.NewIter(&pebble.IterOptions{
		LowerBound: full,
		UpperBound: prefixUpperBound(full),
	})
	if err != nil {
		return ioError("iterate "+prefix, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key()[len(n.prefix):])
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		if err := fn(key, value); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return ioError("iterate "+prefix, err)
	}
	return nil
}

type pebbleBatch struct {
	ns    *pebbleNamespace
	batch *pebble.Batch
}

func (b *pebbleBatch) Put(key string, value []byte) error {
	return b.batch.Set(b.ns.key(key), value, nil)
}

func (b *pebbleBatch) Delete(key string) error {
	return b.batch.Delete(b.ns.key(key), nil)
}

func (n *pebbleNamespace) Update(fn func(b Batch) error) error {
	batch := n.db.NewBatch()
	defer batch.Close()

	if err := fn(&pebbleBatch{ns: n, batch: batch}); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return ioError("commit", err)
	}
	return nil
}

func (n *pebbleNamespace) Clear() error {
	batch := n.db.NewBatch()
	defer batch.Close()

	if err := batch.DeleteRange(n.prefix, prefixUpperBound(n.prefix), nil); err != nil {
		return ioError("clear", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return ioError("clear", err)
	}
	return nil
}

// prefixUpperBound returns the upper bound for prefix iteration
func prefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
