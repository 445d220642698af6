package bridge

import (
	"sync"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
)

// borrowFlag tracks outstanding borrows of one value. Conflicting borrows
// fail instead of blocking: the host context is single-threaded, so a
// conflict is always re-entrancy, never contention worth waiting for.
type borrowFlag struct {
	mu        sync.Mutex
	shared    int
	exclusive bool
}

func (b *borrowFlag) acquireShared() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exclusive {
		return errors.BorrowConflict("shared", "exclusive")
	}
	b.shared++
	return nil
}

func (b *borrowFlag) releaseShared() {
	b.mu.Lock()
	b.shared--
	b.mu.Unlock()
}

func (b *borrowFlag) acquireExclusive() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exclusive {
		return errors.BorrowConflict("exclusive", "exclusive")
	}
	if b.shared > 0 {
		return errors.BorrowConflict("exclusive", "shared")
	}
	b.exclusive = true
	return nil
}

func (b *borrowFlag) releaseExclusive() {
	b.mu.Lock()
	b.exclusive = false
	b.mu.Unlock()
}

// dropValue runs the Dropper of v, trying the pointer receiver first.
func dropValue[T any](v *T) {
	if d, ok := any(v).(resource.Dropper); ok {
		d.Drop()
		return
	}
	if d, ok := any(*v).(resource.Dropper); ok {
		d.Drop()
	}
}
