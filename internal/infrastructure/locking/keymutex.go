// Package locking provides in-process per-key mutual exclusion. The state
// store has no transactions, so every read-modify-write on a record key is
// serialized here before the versioned compare-and-set.
package locking

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 64

// KeyMutex is a striped lock: keys hash onto a fixed set of mutexes.
// Acquisition blocks until the stripe is free; there is no timeout.
type KeyMutex struct {
	stripes []sync.Mutex
}

func NewKeyMutex() *KeyMutex {
	return &KeyMutex{stripes: make([]sync.Mutex, defaultStripes)}
}

func (m *KeyMutex) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.stripes[h.Sum32()%uint32(len(m.stripes))]
}

func (m *KeyMutex) Lock(key string) {
	m.stripe(key).Lock()
}

func (m *KeyMutex) Unlock(key string) {
	m.stripe(key).Unlock()
}
