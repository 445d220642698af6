// Package hostbridge lets a garbage-collected host hold native Go values
// through wrapper objects, with reference-counted lifetimes that follow both
// sides.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	hostbridge/
//	├── bridge/      Env, Reference, SharedReference, Cell and the Runtime
//	├── ir/          Binding descriptors, validation, codecs and WIT mapping
//	├── binding/     IR-driven dispatch of host calls to Go handlers
//	├── resource/    Slot table backing every wrapped value
//	├── heap/        In-process garbage-collected host
//	├── wasmhost/    wazero-backed host exposing finalization to a guest
//	├── errors/      Structured error types
//	└── cmd/         hostbridge CLI
//
// # Quick Start
//
// Wrap a value for the host and hand its slot out:
//
//	h := heap.New()
//	defer h.Close()
//	rt := bridge.New(h)
//	defer rt.Close()
//
//	err := rt.Call(ctx, func(env *bridge.Env) error {
//	    ref, err := bridge.Wrap(env, "Repo", Repository{dir: "/src"})
//	    if err != nil {
//	        return err
//	    }
//	    defer ref.Drop()
//	    slot = ref.Slot()
//	    return nil
//	})
//
// The value is destroyed once every Go handle is dropped and the host has
// finalized its wrapper, in whichever order that happens.
//
// # Derived values
//
// A SharedReference borrows from its owner and keeps it alive:
//
//	remote, err := bridge.Derive(env, repo, func(r *Repository) (Remote, error) {
//	    return r.Remote("origin"), nil
//	})
//
// Dropping the owner's last direct handle does not destroy it while remote
// is alive. Chains of derived values retain every ancestor.
//
// # Thread Safety
//
// An Env is valid only inside the Call or Attach that produced it; calls are
// serialized the way a single-threaded host context would be. References,
// SharedReferences and Cells may be dropped from any goroutine. Async work
// runs through bridge.Go and re-enters the host context to deliver results.
package hostbridge
