// Package resource provides the wrapper slot table behind host-visible objects.
//
// Every native value exposed to the host runtime lives in a slot. The host
// wrapper object stores only the slot number in its native field; the Go
// value stays in this table until the bridge destroys it.
//
// # Slot Table
//
// The Table maps integer slots to Go values:
//
//	table := resource.NewTable()
//
//	// Insert a value, get a slot
//	slot, err := table.Insert("JsRepo", storage)
//
//	// Retrieve value by slot
//	value, ok := table.Get(slot)
//
//	// Forget a slot whose value already cleaned up after itself
//	value, ok := table.Detach(slot)
//
// Slot 0 is reserved and never valid, so a zeroed host field can not alias a
// live value. Freed slots are reused.
//
// # Classes
//
// Slots are tagged with the host class they were created for:
//
//	class, ok := table.Class(slot) // "Repo", true
//
// Each walks live slots with their classes.
//
// # Borrows
//
// Borrow marks a slot as lent out for the duration of a scoped access.
// Detach refuses a slot with outstanding borrows.
//
// # Observers
//
// Register observers to track slot lifecycle events:
//
//	table.Subscribe(resource.NewLogObserver(logger))
//
// # Memory Management
//
// Values that implement Dropper have Drop called when the table is closed.
// Detach never runs Drop.
package resource
