// Package heap is an in-process garbage-collected host for the bridge.
//
// It models what the bridge needs from a real host runtime: wrapper objects,
// native roots, references held by host code, and finalizers that run
// eventually on a goroutine of their own.
//
//	h := heap.New()
//	defer h.Close()
//	rt := bridge.New(h)
//
//	h.Retain(slot)  // host code stores the wrapper in a variable
//	h.Release(slot) // ... and lets it go
//	h.Collect()     // unreachable wrappers are queued for finalization
//	h.Drain()       // wait for queued finalizers
package heap
