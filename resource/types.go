package resource

// Slot is an opaque reference to a value in a table.
// Slot 0 is reserved and always invalid.
type Slot uint32

// Event types for slot lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventBorrowed
	EventBorrowReturned
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	case EventBorrowed:
		return "borrowed"
	case EventBorrowReturned:
		return "borrow-returned"
	default:
		return "unknown"
	}
}

// Event represents a slot lifecycle event.
type Event struct {
	Value any
	Class string
	Slot  Slot
	Type  EventType
}

// Observer receives notifications about slot lifecycle events.
type Observer interface {
	OnSlotEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnSlotEvent(e Event) { f(e) }

// Backend provides the underlying storage mechanism for slots.
type Backend interface {
	// Create stores a value and returns its slot.
	Create(class string, value any) (Slot, error)

	// Get retrieves a value by slot.
	Get(slot Slot) (any, bool)

	// Class returns the class a slot was created with.
	Class(slot Slot) (string, bool)

	// Drop removes a value and returns (value, true) if the destructor should run.
	// Returns (nil, false) if the slot is invalid or has outstanding borrows.
	Drop(slot Slot) (any, bool)

	// Borrow increments the borrow count for a slot.
	Borrow(slot Slot) bool

	// ReturnBorrow decrements the borrow count for a slot.
	ReturnBorrow(slot Slot) bool

	// Len returns the number of live slots.
	Len() int

	// Each iterates over live slots until fn returns false.
	Each(fn func(Slot, string, any) bool)

	// Close releases all values held by the backend.
	Close() error
}

// Dropper is optionally implemented by values that need cleanup.
type Dropper interface {
	Drop()
}
