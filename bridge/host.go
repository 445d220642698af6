package bridge

import "github.com/wippyai/hostbridge/resource"

// Finalizer is invoked by the host once it determines that no host-side
// reference to a wrapper remains. It may run on any goroutine.
type Finalizer func(slot resource.Slot)

// Host is the garbage-collected runtime that holds wrapper objects.
//
// Implementations must be safe for concurrent use and must not invoke a
// Finalizer from inside Root or Unroot.
type Host interface {
	// Allocate creates the wrapper object whose native slot is slot.
	Allocate(slot resource.Slot, class string, fin Finalizer) error

	// Root marks the wrapper as referenced from native code; a rooted
	// wrapper is never finalized. When Root fails right after Allocate the
	// slot stays reserved until the wrapper's Finalizer runs.
	Root(slot resource.Slot) error

	// Unroot removes the native root. The wrapper becomes collectable once
	// the host itself holds no reference to it.
	Unroot(slot resource.Slot) error
}
