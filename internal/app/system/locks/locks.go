// internal/app/system/locks/locks.go

// Package locks provides a mutex keyed by string id. The lifecycle and
// ledger services take the lock for a membership id around state
// transitions so a batch run and an interactive validation racing on the
// same membership cannot interleave their load-mutate-save cycles.
package locks

import "sync"

type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock acquires the mutex for key and returns the matching unlock func.
// Entries are reference-counted and removed when the last holder releases,
// so the map does not grow with the id space.
func (k *Keyed) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
