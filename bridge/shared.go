package bridge

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
)

// Releaser is a retained reference that Drop gives back.
type Releaser interface {
	Drop()
}

// Owner is a live handle that a SharedReference can be derived from.
// *Reference[T] and *SharedReference[_, T] are the only implementations.
type Owner[T any] interface {
	borrow(fn func(*T) error) error
	anchor(env *Env) (Releaser, error)
	className() string
	runtime() *Runtime
}

type sharedState[U any] struct {
	rt     *Runtime
	class  string
	anchor Releaser

	borrows borrowFlag
	value   U

	mu       sync.Mutex
	refs     int
	released bool
}

func (s *sharedState[U]) retain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return errors.UseAfterRelease(errors.PhaseAccess, s.class)
	}
	s.refs++
	return nil
}

// release drops one count; the last one drops the derived value and then the
// retained owner, in that order, so the value never outlives what it borrows.
func (s *sharedState[U]) release() {
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
	s.released = true
	anchor := s.anchor
	s.anchor = nil
	s.mu.Unlock()

	dropValue(&s.value)
	var zero U
	s.value = zero
	if anchor != nil {
		anchor.Drop()
	}
	Logger().Debug("shared reference released", zap.String("owner", s.class))
}

func (s *sharedState[U]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

func (s *sharedState[U]) access(fn func(*U) error) error {
	if err := s.retain(); err != nil {
		return err
	}
	defer s.release()

	if err := s.borrows.acquireShared(); err != nil {
		return err
	}
	defer s.borrows.releaseShared()

	return fn(&s.value)
}

type sharedLink[U any] struct {
	st atomic.Pointer[sharedState[U]]
}

// SharedReference holds a value of type U derived from, and possibly
// pointing into, an owner of type T. It retains a strong reference to the
// owner for its entire lifetime, so the owner can not be destroyed while any
// SharedReference into it exists.
type SharedReference[T, U any] struct {
	link *sharedLink[U]
}

// Derive borrows owner, computes the derived value with f and, on success,
// retains a clone of owner for the lifetime of the result. A failing f leaves
// the owner's count untouched and its error is returned as DeriveFailure.
//
// owner may itself be a SharedReference; the new reference then retains it,
// and through it every ancestor.
func Derive[T, U any](env *Env, owner Owner[T], f func(*T) (U, error)) (*SharedReference[T, U], error) {
	if owner == nil {
		return nil, errors.InvalidInput(errors.PhaseDerive, "nil owner")
	}
	if err := env.check("derive", owner.runtime()); err != nil {
		return nil, err
	}

	var sr *SharedReference[T, U]
	err := owner.borrow(func(v *T) error {
		u, err := f(v)
		if err != nil {
			return errors.DeriveFailure(owner.className(), err)
		}
		a, err := owner.anchor(env)
		if err != nil {
			dropValue(&u)
			return err
		}
		sr = newShared[T](&sharedState[U]{rt: env.rt, class: owner.className(), anchor: a, value: u, refs: 1})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sr, nil
}

func newShared[T, U any](st *sharedState[U]) *SharedReference[T, U] {
	r := &SharedReference[T, U]{link: &sharedLink[U]{}}
	r.link.st.Store(st)
	runtime.AddCleanup(r, releaseLeakedShared[U], r.link)
	return r
}

func releaseLeakedShared[U any](l *sharedLink[U]) {
	st := l.st.Swap(nil)
	if st == nil {
		return
	}
	Logger().Warn("shared reference leaked, released by garbage collector", zap.String("owner", st.class))
	st.release()
}

func (r *SharedReference[T, U]) load() (*sharedState[U], error) {
	if r == nil || r.link == nil {
		return nil, errors.UseAfterRelease(errors.PhaseAccess, "")
	}
	st := r.link.st.Load()
	if st == nil {
		return nil, errors.UseAfterRelease(errors.PhaseAccess, "")
	}
	return st, nil
}

// With runs fn with a borrow of the derived value.
func (r *SharedReference[T, U]) With(fn func(*U) error) error {
	st, err := r.load()
	if err != nil {
		return err
	}
	return st.access(fn)
}

// Value returns a copy of the derived value.
func (r *SharedReference[T, U]) Value() (U, error) {
	var out U
	err := r.With(func(u *U) error {
		out = *u
		return nil
	})
	return out, err
}

// Clone returns an independent handle to the same derived value.
func (r *SharedReference[T, U]) Clone(env *Env) (*SharedReference[T, U], error) {
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
	return newShared[T](st), nil
}

// Drop releases this handle. The last handle releases the owner.
func (r *SharedReference[T, U]) Drop() {
	if r == nil || r.link == nil {
		return
	}
	if st := r.link.st.Swap(nil); st != nil {
		st.release()
	}
}

// Count returns the number of handles to the derived value, including
// in-flight borrows and SharedReferences derived from it.
func (r *SharedReference[T, U]) Count() int {
	st, err := r.load()
	if err != nil {
		return 0
	}
	return st.count()
}

// Alive reports whether this handle has not been dropped.
func (r *SharedReference[T, U]) Alive() bool {
	_, err := r.load()
	return err == nil
}

func (r *SharedReference[T, U]) borrow(fn func(*U) error) error {
	return r.With(fn)
}

func (r *SharedReference[T, U]) anchor(env *Env) (Releaser, error) {
	c, err := r.Clone(env)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *SharedReference[T, U]) className() string {
	st, err := r.load()
	if err != nil {
		return ""
	}
	return st.class
}

func (r *SharedReference[T, U]) runtime() *Runtime {
	st, err := r.load()
	if err != nil {
		return nil
	}
	return st.rt
}
