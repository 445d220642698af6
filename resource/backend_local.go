package resource

import (
	"errors"
	"sync"

	"fortio.org/safecast"
)

var (
	ErrClosed            = errors.New("slot backend closed")
	ErrOutstandingBorrow = errors.New("cannot drop slot with outstanding borrows")
	ErrExhausted         = errors.New("slot space exhausted")
)

// LocalBackend is an in-memory slot backend with borrow tracking.
type LocalBackend struct {
	entries  []entry
	freeList []Slot
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value       any
	class       string
	borrowCount uint32
	valid       bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]Slot, 0, 16),
	}
}

// Create stores a value and returns its slot.
func (b *LocalBackend) Create(class string, value any) (Slot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	e := entry{
		class: class,
		value: value,
		valid: true,
	}

	if len(b.freeList) > 0 {
		slot := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		b.entries[slot-1] = e
		return slot, nil
	}

	n, err := safecast.Conv[uint32](len(b.entries) + 1)
	if err != nil {
		return 0, ErrExhausted
	}
	b.entries = append(b.entries, e)
	return Slot(n), nil
}

// lookup returns the entry for slot. Caller holds b.mu.
func (b *LocalBackend) lookup(slot Slot) *entry {
	if slot == 0 {
		return nil
	}
	idx := int(slot) - 1
	if idx >= len(b.entries) {
		return nil
	}
	e := &b.entries[idx]
	if !e.valid {
		return nil
	}
	return e
}

// Get retrieves a value by slot.
func (b *LocalBackend) Get(slot Slot) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(slot)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// Class returns the class for a slot.
func (b *LocalBackend) Class(slot Slot) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(slot)
	if e == nil {
		return "", false
	}
	return e.class, true
}

// Drop removes a value and returns (value, true) if the destructor should run.
func (b *LocalBackend) Drop(slot Slot) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(slot)
	if e == nil || e.borrowCount > 0 {
		return nil, false
	}

	value := e.value
	*e = entry{}
	b.freeList = append(b.freeList, slot)

	return value, true
}

// Borrow increments the borrow count for a slot.
func (b *LocalBackend) Borrow(slot Slot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(slot)
	if e == nil {
		return false
	}
	e.borrowCount++
	return true
}

// ReturnBorrow decrements the borrow count for a slot.
func (b *LocalBackend) ReturnBorrow(slot Slot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(slot)
	if e == nil || e.borrowCount == 0 {
		return false
	}
	e.borrowCount--
	return true
}

// Len returns the number of live slots.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, e := range b.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over all live slots.
func (b *LocalBackend) Each(fn func(Slot, string, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if !e.valid {
			continue
		}
		if !fn(Slot(i+1), e.class, e.value) {
			break
		}
	}
}

// Close releases all values. Dropper values are dropped outside the lock.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	var droppers []Dropper
	for i := range b.entries {
		if d, ok := b.entries[i].value.(Dropper); ok && b.entries[i].valid {
			droppers = append(droppers, d)
		}
	}
	b.entries = nil
	b.freeList = nil
	b.mu.Unlock()

	for _, d := range droppers {
		d.Drop()
	}
	return nil
}
