// Package locks provides per-key mutexes. The ledgers serialize mutations
// per entity (pool, position, proposal) rather than per engine, so
// operations on unrelated entities proceed concurrently.
package locks

import "sync"

// KeyedMutex hands out one mutex per key. Zero value is ready to use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
