// Package wasmhost runs the host side of the bridge inside a wazero
// runtime. A wasm guest owns the wrapper objects and their garbage
// collection; it talks to native storage through the "hostbridge" import
// module:
//
//	finalize(slot i32) -> i32   1 finalized, 0 still rooted, -1 unknown slot
//	is_rooted(slot i32) -> i32  1 while native code holds a reference
//	live() -> i32               wrappers not yet finalized
//
// A guest collector calls finalize for each wrapper it finds unreachable.
// Rooted wrappers are refused, so a value never disappears under a native
// handle.
//
//	h, err := wasmhost.New(ctx, nil)
//	rt := bridge.New(h)
//	guest, err := h.Instantiate(ctx, "guest", wasm)
package wasmhost
