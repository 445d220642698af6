package resource

import (
	"sync"
)

// Table manages slots with class information and observer support.
type Table struct {
	backend   Backend
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a new table with a LocalBackend.
func NewTable() *Table {
	return &Table{backend: NewLocalBackend()}
}

// Insert adds a value and returns its slot.
func (t *Table) Insert(class string, value any) (Slot, error) {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return 0, ErrClosed
	}
	t.closeMu.RUnlock()

	slot, err := t.backend.Create(class, value)
	if err != nil {
		return 0, err
	}

	t.notify(Event{
		Type:  EventCreated,
		Slot:  slot,
		Class: class,
		Value: value,
	})

	return slot, nil
}

// Get retrieves a value by slot.
func (t *Table) Get(slot Slot) (any, bool) {
	return t.backend.Get(slot)
}

// Class returns the class a slot was created with.
func (t *Table) Class(slot Slot) (string, bool) {
	return t.backend.Class(slot)
}

// Detach removes a slot without running its Dropper.
// Wrapped storage destroys itself and then detaches.
func (t *Table) Detach(slot Slot) (any, bool) {
	class, _ := t.backend.Class(slot)
	value, ok := t.backend.Drop(slot)
	if !ok {
		return nil, false
	}

	t.notify(Event{
		Type:  EventDropped,
		Slot:  slot,
		Class: class,
		Value: value,
	})
	return value, true
}

// Borrow marks a slot as lent out. Returns false for invalid slots.
func (t *Table) Borrow(slot Slot) bool {
	if !t.backend.Borrow(slot) {
		return false
	}
	class, _ := t.backend.Class(slot)
	t.notify(Event{Type: EventBorrowed, Slot: slot, Class: class})
	return true
}

// ReturnBorrow ends one Borrow.
func (t *Table) ReturnBorrow(slot Slot) bool {
	if !t.backend.ReturnBorrow(slot) {
		return false
	}
	class, _ := t.backend.Class(slot)
	t.notify(Event{Type: EventBorrowReturned, Slot: slot, Class: class})
	return true
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of live slots.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Each iterates over live slots until fn returns false.
func (t *Table) Each(fn func(Slot, string, any) bool) {
	t.backend.Each(fn)
}

// Close releases all values and stops accepting inserts.
func (t *Table) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	return t.backend.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnSlotEvent(e)
	}
}
