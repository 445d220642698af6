// Package binding dispatches host calls to native Go handlers, driven by an
// ir.Module.
//
// Each descriptor of the module gets a handler. Ordinary methods, getters
// and setters are looked up by host name and accessor role, so a getter and
// a setter can share a property name:
//
//	b := binding.New(rt, m)
//	b.Register("Counter", "new", ir.FnConstructor, newCounter)
//	b.Register("Counter", "value", ir.FnGetter, binding.Method(func(c *binding.Call, n *Counter) (any, error) {
//		return n.value, nil
//	}))
//	slot, _ := b.Construct(ctx, "Counter", int32(1))
//	v, _ := b.Get(ctx, "Counter", "value", slot)
//
// Handlers that return a bridge.Reference hand its wrapper to the host: the
// caller receives the slot. Async descriptors run on a worker goroutine and
// return a *Promise.
package binding
