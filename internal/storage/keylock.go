package storage

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// KeyLocks serializes work per key with a fixed set of striped mutexes.
// Distinct keys may share a stripe; the same key always does.
type KeyLocks struct {
	stripes [lockStripes]sync.Mutex
}

// Lock locks key and returns the matching unlock func
func (k *KeyLocks) Lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &k.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}
