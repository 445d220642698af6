// Package bridge ties the lifetime of native Go values to wrapper objects
// owned by a garbage-collected host runtime.
//
// # Environment
//
// Every operation that talks to the host takes an *Env. An Env exists only
// for the duration of one host call:
//
//	err := rt.Call(ctx, func(env *bridge.Env) error {
//	    repo, err := bridge.Wrap(env, "JsRepo", Repo{Dir: "."})
//	    ...
//	})
//
// Using an Env after its call returned, or with handles of another Runtime,
// fails with EnvironmentExpired.
// Calls are serialized; async work runs through Go and re-enters with
// Attach to obtain a fresh Env.
//
// # References
//
// Wrap moves a value into refcounted storage and allocates its host wrapper.
// The value is destroyed only when every Reference has been dropped AND the
// host has finalized the wrapper. Destruction is eventual: it happens on the
// host's schedule, possibly on another goroutine.
//
//	clone, _ := repo.Clone(env)
//	repo.Drop()
//	clone.With(func(r *Repo) error { ... })
//	clone.Drop()
//
// # Shared References
//
// Derive computes a value that borrows from an owner and keeps the owner
// alive for as long as the derived value exists:
//
//	remote, err := bridge.Derive(env, repo, func(r *Repo) (Remote, error) {
//	    return r.Remote(), nil
//	})
//
// A SharedReference is itself an Owner, so chains retain every ancestor.
//
// # Cells
//
// Cell is shared ownership without a borrowing relationship: peers each hold
// a clone and observe each other's writes. Conflicting borrows fail with
// BorrowConflict instead of blocking.
//
// # Thread Safety
//
// Counts are guarded per value, and the destruction path tolerates a host
// finalizer racing an explicit Drop. Handles are safe to Drop from any
// goroutine; an Env is not.
package bridge
