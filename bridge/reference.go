package bridge

import (
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
)

// storage is the refcounted home of one wrapped value. It lives in the
// runtime's slot table until it is destroyed.
type storage[T any] struct {
	rt    *Runtime
	class string
	slot  resource.Slot

	borrows borrowFlag
	value   T

	mu        sync.Mutex
	refs      int
	finalized bool
	destroyed bool
}

// retain adds a strong reference. Re-roots the wrapper on 0 -> 1.
func (s *storage[T]) retain() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed || s.finalized {
		return errors.UseAfterRelease(errors.PhaseAccess, s.class)
	}
	s.refs++
	if s.refs == 1 {
		if err := s.rt.host.Root(s.slot); err != nil {
			s.refs--
			return errors.Wrap(errors.PhaseHost, errors.KindHostAllocation, err, "root wrapper")
		}
	}
	return nil
}

// release drops a strong reference. On 1 -> 0 the wrapper is unrooted and
// the value is destroyed if the host has already finalized it.
func (s *storage[T]) release() {
	s.mu.Lock()
	if s.refs == 0 {
		s.mu.Unlock()
		return
	}
	s.refs--
	if s.refs > 0 {
		s.mu.Unlock()
		return
	}
	if !s.finalized {
		if err := s.rt.host.Unroot(s.slot); err != nil {
			Logger().Warn("unroot wrapper", zap.Uint32("slot", uint32(s.slot)), zap.String("class", s.class), zap.Error(err))
		}
	}
	destroy := s.finalized && !s.destroyed
	if destroy {
		s.destroyed = true
	}
	s.mu.Unlock()

	if destroy {
		s.destroy()
	}
}

// finalize records that the host released its wrapper.
func (s *storage[T]) finalize() {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	destroy := s.refs == 0 && !s.destroyed
	if destroy {
		s.destroyed = true
	}
	s.mu.Unlock()

	Logger().Debug("wrapper finalized", zap.Uint32("slot", uint32(s.slot)), zap.String("class", s.class), zap.Bool("destroy", destroy))
	if destroy {
		s.destroy()
	}
}

// Drop is called by the slot table when the runtime closes.
func (s *storage[T]) Drop() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.mu.Unlock()
	s.destroy()
}

// destroy runs exactly once, after destroyed was set under s.mu.
func (s *storage[T]) destroy() {
	dropValue(&s.value)
	var zero T
	s.value = zero
	s.rt.table.Detach(s.slot)
	Logger().Debug("value destroyed", zap.Uint32("slot", uint32(s.slot)), zap.String("class", s.class))
}

func (s *storage[T]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

func (s *storage[T]) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// access pins the storage for the duration of fn so a concurrent drop or
// finalizer can not destroy the value mid-borrow.
func (s *storage[T]) access(exclusive bool, fn func(*T) error) error {
	if err := s.retain(); err != nil {
		return err
	}
	defer s.release()

	if exclusive {
		if err := s.borrows.acquireExclusive(); err != nil {
			return err
		}
		defer s.borrows.releaseExclusive()
	} else {
		if err := s.borrows.acquireShared(); err != nil {
			return err
		}
		defer s.borrows.releaseShared()
	}

	s.rt.table.Borrow(s.slot)
	defer s.rt.table.ReturnBorrow(s.slot)

	return fn(&s.value)
}

type link[T any] struct {
	st atomic.Pointer[storage[T]]
}

// Reference is an owned, refcounted handle to a wrapped native value.
// Every handle must be dropped exactly once; handles the program loses track
// of are released by the garbage collector and logged as leaks.
type Reference[T any] struct {
	link *link[T]
}

// Wrap moves value into refcounted storage and allocates its host wrapper.
// The returned handle holds the first strong reference.
func Wrap[T any](env *Env, class string, value T) (*Reference[T], error) {
	if err := env.check("wrap", nil); err != nil {
		return nil, err
	}
	rt := env.rt

	st := &storage[T]{rt: rt, class: class, value: value, refs: 1}
	slot, err := rt.table.Insert(class, st)
	if err != nil {
		return nil, errors.HostAllocation(class, err)
	}
	st.slot = slot

	if err := rt.host.Allocate(slot, class, rt.finalize); err != nil {
		rt.table.Detach(slot)
		return nil, errors.HostAllocation(class, err)
	}
	if err := rt.host.Root(slot); err != nil {
		// The wrapper exists and will be finalized, so the slot stays taken
		// until then. The finalizer destroys the value.
		st.mu.Lock()
		st.refs = 0
		destroy := st.finalized && !st.destroyed
		if destroy {
			st.destroyed = true
		}
		st.mu.Unlock()
		if destroy {
			st.destroy()
		}
		return nil, errors.HostAllocation(class, err)
	}

	Logger().Debug("value wrapped", zap.Uint32("slot", uint32(slot)), zap.String("class", class), zap.Uint64("env", env.id))
	return newReference(st), nil
}

// FromSlot acquires a new handle to the value behind a host wrapper, as a
// method does with its receiver.
func FromSlot[T any](env *Env, slot resource.Slot) (*Reference[T], error) {
	if err := env.check("from slot", nil); err != nil {
		return nil, err
	}
	v, ok := env.rt.table.Get(slot)
	if !ok {
		return nil, errors.UseAfterRelease(errors.PhaseAccess, "")
	}
	st, ok := v.(*storage[T])
	if !ok {
		class, _ := env.rt.table.Class(slot)
		return nil, errors.New(errors.PhaseAccess, errors.KindTypeMismatch).
			GoType(typeName[T]()).
			HostType(class).
			Detail("slot %d holds another type", slot).
			Build()
	}
	if err := st.retain(); err != nil {
		return nil, err
	}
	return newReference(st), nil
}

type pinnable interface {
	retain() error
	release()
}

type pin struct {
	once sync.Once
	p    pinnable
}

func (p *pin) Drop() {
	p.once.Do(p.p.release)
}

// Pin holds a strong reference to the value behind slot without knowing its
// type. The value stays alive and its wrapper rooted until Drop.
func Pin(env *Env, slot resource.Slot) (Releaser, error) {
	if err := env.check("pin", nil); err != nil {
		return nil, err
	}
	v, ok := env.rt.table.Get(slot)
	if !ok {
		return nil, errors.UseAfterRelease(errors.PhaseAccess, "")
	}
	p, ok := v.(pinnable)
	if !ok {
		return nil, errors.New(errors.PhaseAccess, errors.KindInvalidInput).
			Detail("slot %d holds no wrapped value", slot).
			Build()
	}
	if err := p.retain(); err != nil {
		return nil, err
	}
	return &pin{p: p}, nil
}

func newReference[T any](st *storage[T]) *Reference[T] {
	r := &Reference[T]{link: &link[T]{}}
	r.link.st.Store(st)
	runtime.AddCleanup(r, releaseLeaked[T], r.link)
	return r
}

func releaseLeaked[T any](l *link[T]) {
	st := l.st.Swap(nil)
	if st == nil {
		return
	}
	Logger().Warn("reference leaked, released by garbage collector", zap.Uint32("slot", uint32(st.slot)), zap.String("class", st.class))
	st.release()
}

func (r *Reference[T]) load() (*storage[T], error) {
	if r == nil || r.link == nil {
		return nil, errors.UseAfterRelease(errors.PhaseAccess, "")
	}
	st := r.link.st.Load()
	if st == nil {
		return nil, errors.UseAfterRelease(errors.PhaseAccess, "")
	}
	return st, nil
}

// Clone returns an independent handle to the same value.
func (r *Reference[T]) Clone(env *Env) (*Reference[T], error) {
	st, err := r.load()
	if err != nil {
		return nil, err
	}
	if err := env.check("clone", st.rt); err != nil {
		return nil, err
	}
	if err := st.retain(); err != nil {
		return nil, err
	}
	return newReference(st), nil
}

// With runs fn with a shared borrow of the value.
func (r *Reference[T]) With(fn func(*T) error) error {
	st, err := r.load()
	if err != nil {
		return err
	}
	return st.access(false, fn)
}

// Update runs fn with an exclusive borrow of the value.
func (r *Reference[T]) Update(fn func(*T) error) error {
	st, err := r.load()
	if err != nil {
		return err
	}
	return st.access(true, fn)
}

// Drop releases this handle. Further use of the handle fails with
// UseAfterRelease; dropping twice is a no-op.
func (r *Reference[T]) Drop() {
	if r == nil || r.link == nil {
		return
	}
	if st := r.link.st.Swap(nil); st != nil {
		st.release()
	}
}

// Slot returns the slot of the host wrapper, or 0 once dropped.
func (r *Reference[T]) Slot() resource.Slot {
	st, err := r.load()
	if err != nil {
		return 0
	}
	return st.slot
}

// Class returns the host class name, or "" once dropped.
func (r *Reference[T]) Class() string {
	st, err := r.load()
	if err != nil {
		return ""
	}
	return st.class
}

// Count returns the number of strong references, including in-flight borrows.
func (r *Reference[T]) Count() int {
	st, err := r.load()
	if err != nil {
		return 0
	}
	return st.count()
}

// Alive reports whether this handle has not been dropped.
func (r *Reference[T]) Alive() bool {
	_, err := r.load()
	return err == nil
}

func (r *Reference[T]) borrow(fn func(*T) error) error {
	return r.With(fn)
}

func (r *Reference[T]) anchor(env *Env) (Releaser, error) {
	c, err := r.Clone(env)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Reference[T]) className() string {
	return r.Class()
}

func (r *Reference[T]) runtime() *Runtime {
	st, err := r.load()
	if err != nil {
		return nil
	}
	return st.rt
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}
