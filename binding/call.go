package binding

import (
	"context"
	"sync"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/ir"
	"github.com/wippyai/hostbridge/resource"
)

// Call is one invocation of a bound descriptor.
type Call struct {
	Env  *bridge.Env
	Fn   ir.Function
	This resource.Slot
	Args []any
}

// Arg returns argument i converted to T.
func Arg[T any](c *Call, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(c.Args) {
		return zero, errors.InvalidInput(errors.PhaseCall, "argument index out of range")
	}
	v, ok := c.Args[i].(T)
	if !ok {
		return zero, errors.TypeMismatch(errors.PhaseCall, []string{c.Fn.HostName, c.Fn.Args[i].Name}, typeName[T](), typeOf(c.Args[i]))
	}
	return v, nil
}

// Handler is the native side of a descriptor.
type Handler func(c *Call) (any, error)

// AsyncHandler is the native side of an async descriptor. It runs on a
// worker goroutine without an Env; its result is delivered back through the
// host context.
type AsyncHandler func(ctx context.Context, args []any) (any, error)

// Method adapts fn to a Handler that borrows the receiver: shared for
// value and ref receivers, exclusive for mut-ref.
func Method[T any](fn func(c *Call, this *T) (any, error)) Handler {
	return func(c *Call) (any, error) {
		ref, err := bridge.FromSlot[T](c.Env, c.This)
		if err != nil {
			return nil, err
		}
		defer ref.Drop()

		var out any
		body := func(v *T) error {
			var err error
			out, err = fn(c, v)
			return err
		}
		if c.Fn.Self == ir.SelfMutRef {
			err = ref.Update(body)
		} else {
			err = ref.With(body)
		}
		return out, err
	}
}

// Receiver adapts fn to a Handler that gets a handle to the receiver, for
// methods that derive from it. The handle is dropped when fn returns;
// anything derived keeps its own reference.
func Receiver[T any](fn func(c *Call, this *bridge.Reference[T]) (any, error)) Handler {
	return func(c *Call) (any, error) {
		ref, err := bridge.FromSlot[T](c.Env, c.This)
		if err != nil {
			return nil, err
		}
		defer ref.Drop()
		return fn(c, ref)
	}
}

// Promise is the pending result of an async descriptor.
type Promise struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

func (p *Promise) settle(v any, err error) {
	p.once.Do(func() {
		p.value, p.err = v, err
		close(p.done)
	})
}

// Await blocks until the result is delivered or ctx is done.
func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the result is delivered.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}
