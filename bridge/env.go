package bridge

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/hostbridge/errors"
)

// Env is the capability for the host call currently in progress.
// It is valid only until the function passed to Runtime.Call returns and
// must not be stored or handed to another goroutine.
type Env struct {
	rt      *Runtime
	ctx     context.Context
	id      uint64
	expired atomic.Bool
}

// Context returns the context of the host call.
func (e *Env) Context() context.Context {
	if e == nil || e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// Runtime returns the runtime the call belongs to.
func (e *Env) Runtime() *Runtime {
	if e == nil {
		return nil
	}
	return e.rt
}

// ID identifies the host call; ids increase monotonically per runtime.
func (e *Env) ID() uint64 {
	if e == nil {
		return 0
	}
	return e.id
}

// Valid reports whether the Env may still be used.
func (e *Env) Valid() bool {
	return e.check("valid", nil) == nil
}

// check fails unless the Env is live and, when owner is set, was issued by
// owner. Storage of one runtime is never touched through another's Env.
func (e *Env) check(op string, owner *Runtime) error {
	if e == nil || e.rt == nil || e.expired.Load() {
		return errors.EnvironmentExpired(op)
	}
	if owner != nil && owner != e.rt {
		return errors.New(errors.PhaseEnv, errors.KindEnvironmentExpired).
			Detail("%s called with the environment of another runtime", op).
			Build()
	}
	return nil
}

func (e *Env) expire() {
	e.expired.Store(true)
}
