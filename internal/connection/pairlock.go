package connection

import "sync"

// pairLock hands out one mutex per key and frees it when the last holder
// releases. Together with the unique pair_key index it serializes writes for
// an unordered user pair within this process, so racing sends and accepts
// observe each other's writes instead of both passing the existence check.
type pairLock struct {
	mu    sync.Mutex
	locks map[string]*pairLockEntry
}

type pairLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newPairLock() *pairLock {
	return &pairLock{locks: make(map[string]*pairLockEntry)}
}

// lock acquires the mutex for key and returns the unlock func.
func (p *pairLock) lock(key string) func() {
	p.mu.Lock()
	entry, ok := p.locks[key]
	if !ok {
		entry = &pairLockEntry{}
		p.locks[key] = entry
	}
	entry.refs++
	p.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		p.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}
