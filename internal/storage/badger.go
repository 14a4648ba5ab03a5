package storage

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
)

// BadgerDB wraps a Badger database
type BadgerDB struct {
	db *badger.DB
}

// NewBadgerDB opens a Badger database at path, or in memory when path is
// empty
func NewBadgerDB(path string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(log.StandardLogger()).WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, ioError("open", err)
	}
	return &BadgerDB{db: db}, nil
}

// Close closes the database
func (b *BadgerDB) Close() error {
	if err := b.db.Close(); err != nil {
		return ioError("close", err)
	}
	return nil
}

// Namespace returns a Store whose keys live under the namespace prefix
func (b *BadgerDB) Namespace(name string) Store {
	return &badgerNamespace{db: b.db, prefix: namespacePrefix(name)}
}

type badgerNamespace struct {
	db     *badger.DB
	prefix []byte
}

func (n *badgerNamespace) key(key string) []byte {
	out := make([]byte, 0, len(n.prefix)+len(key))
	out = append(out, n.prefix...)
	return append(out, key...)
}

func (n *badgerNamespace) Init() error  { return nil }
func (n *badgerNamespace) Close() error { return nil }

func (n *badgerNamespace) Get(key string) ([]byte, error) {
	var value []byte
	err := n.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(n.key(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, ioError("get "+key, err)
	}
	return value, nil
}

func (n *badgerNamespace) Put(key string, value []byte) error {
	err := n.db.Update(func(txn *badger.Txn) error {
		return txn.Set(n.key(key), value)
	})
	if err != nil {
		return ioError("put "+key, err)
	}
	return nil
}

func (n *badgerNamespace) Delete(key string) error {
	err := n.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(n.key(key))
	})
	if err != nil {
		return ioError("delete "+key, err)
	}
	return nil
}

func (n *badgerNamespace) Iterate(prefix string, fn func(key string, value []byte) error) error {
	var fnErr error
	err := n.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = n.key(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if fnErr = fn(string(item.Key()[len(n.prefix):]), value); fnErr != nil {
				return fnErr
			}
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return ioError("iterate "+prefix, err)
	}
	return nil
}

type badgerBatch struct {
	ns  *badgerNamespace
	txn *badger.Txn
}

func (b *badgerBatch) Put(key string, value []byte) error {
	return b.txn.Set(b.ns.key(key), value)
}

func (b *badgerBatch) Delete(key string) error {
	return b.txn.Delete(b.ns.key(key))
}

func (n *badgerNamespace) Update(fn func(b Batch) error) error {
	var fnErr error
	err := n.db.Update(func(txn *badger.Txn) error {
		fnErr = fn(&badgerBatch{ns: n, txn: txn})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return ioError("commit", err)
	}
	return nil
}

// Clear deletes the namespace keys in a single transaction
func (n *badgerNamespace) Clear() error {
	err := n.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = n.prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ioError("clear", err)
	}
	return nil
}
