package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
)

// Runtime binds native storage to one host. All host calls are serialized:
// at most one Env is live at a time.
type Runtime struct {
	host   Host
	table  *resource.Table
	sem    chan struct{}
	calls  atomic.Uint64
	closed atomic.Bool

	tasksMu sync.Mutex
	tasks   *errgroup.Group
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithTable uses t as the slot table instead of a fresh one.
func WithTable(t *resource.Table) Option {
	return func(r *Runtime) {
		r.table = t
	}
}

// New creates a runtime for host.
func New(host Host, opts ...Option) *Runtime {
	r := &Runtime{
		host:  host,
		sem:   make(chan struct{}, 1),
		tasks: new(errgroup.Group),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.table == nil {
		r.table = resource.NewTable()
	}
	return r
}

// Host returns the host the runtime is bound to.
func (r *Runtime) Host() Host {
	return r.host
}

// Table returns the slot table holding wrapped storage.
func (r *Runtime) Table() *resource.Table {
	return r.table
}

// Live returns the number of wrapped values not yet destroyed.
func (r *Runtime) Live() int {
	return r.table.Len()
}

// Census counts the wrapped values not yet destroyed, per class.
func (r *Runtime) Census() map[string]int {
	out := make(map[string]int)
	r.table.Each(func(_ resource.Slot, class string, _ any) bool {
		out[class]++
		return true
	})
	return out
}

// Call enters the host context and runs fn with a fresh Env.
// The Env expires when fn returns. Calls from other goroutines wait;
// a nested Call from inside fn deadlocks, so pass the existing Env instead.
func (r *Runtime) Call(ctx context.Context, fn func(env *Env) error) error {
	return r.enter(ctx, "call", fn)
}

// Attach is Call for goroutines that are not the host's own, typically
// async work delivering its result. Waiting honors ctx cancellation.
func (r *Runtime) Attach(ctx context.Context, fn func(env *Env) error) error {
	return r.enter(ctx, "attach", fn)
}

func (r *Runtime) enter(ctx context.Context, how string, fn func(env *Env) error) error {
	if r.closed.Load() {
		return errors.Closed(errors.PhaseEnv, "runtime")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return errors.Wrap(errors.PhaseEnv, errors.KindEnvironmentExpired, ctx.Err(), how+" abandoned before entering host context")
	}
	defer func() { <-r.sem }()

	env := &Env{rt: r, ctx: ctx, id: r.calls.Add(1)}
	defer env.expire()

	Logger().Debug("host "+how, zap.Uint64("env", env.id))
	return fn(env)
}

// Go runs work on a worker goroutine without an Env, then re-enters the host
// context through Attach and hands the outcome to complete.
func Go[R any](r *Runtime, ctx context.Context, work func(context.Context) (R, error), complete func(env *Env, result R, err error) error) {
	r.tasksMu.Lock()
	g := r.tasks
	r.tasksMu.Unlock()

	g.Go(func() error {
		result, err := work(ctx)
		return r.Attach(ctx, func(env *Env) error {
			return complete(env, result, err)
		})
	})
}

// Wait blocks until every task started with Go has delivered its result and
// returns the first error from a completion.
func (r *Runtime) Wait() error {
	r.tasksMu.Lock()
	g := r.tasks
	r.tasks = new(errgroup.Group)
	r.tasksMu.Unlock()
	return g.Wait()
}

// Close waits for outstanding tasks and destroys every value still held,
// regardless of host state.
func (r *Runtime) Close() error {
	if r.closed.Load() {
		return nil
	}
	werr := r.Wait()
	if r.closed.Swap(true) {
		return nil
	}
	if err := r.table.Close(); err != nil {
		return err
	}
	return werr
}

// finalize is the Finalizer handed to the host for every wrapper.
func (r *Runtime) finalize(slot resource.Slot) {
	v, ok := r.table.Get(slot)
	if !ok {
		Logger().Debug("finalize of unknown slot", zap.Uint32("slot", uint32(slot)))
		return
	}
	if f, ok := v.(finalizable); ok {
		f.finalize()
	}
}

type finalizable interface {
	finalize()
}
