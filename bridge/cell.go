package bridge

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/wippyai/hostbridge/errors"
)

type cellState[T any] struct {
	borrows borrowFlag
	value   T

	mu      sync.Mutex
	refs    int
	dropped bool
}

func (c *cellState[T]) retain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped {
		return errors.UseAfterRelease(errors.PhaseAccess, "cell")
	}
	c.refs++
	return nil
}

func (c *cellState[T]) release() {
	c.mu.Lock()
	if c.refs == 0 {
		c.mu.Unlock()
		return
	}
	c.refs--
	if c.refs > 0 {
		c.mu.Unlock()
		return
	}
	c.dropped = true
	c.mu.Unlock()

	dropValue(&c.value)
	var zero T
	c.value = zero
}

type cellLink[T any] struct {
	st atomic.Pointer[cellState[T]]
}

// Cell is shared ownership of one mutable value with runtime-checked
// borrowing. Peers that must observe the same state each hold their own
// clone; the value lives until the last clone is dropped. No Env is needed:
// a Cell never talks to the host.
type Cell[T any] struct {
	link *cellLink[T]
}

// NewCell returns the first handle to value.
func NewCell[T any](value T) *Cell[T] {
	return newCell(&cellState[T]{value: value, refs: 1})
}

func newCell[T any](st *cellState[T]) *Cell[T] {
	c := &Cell[T]{link: &cellLink[T]{}}
	c.link.st.Store(st)
	runtime.AddCleanup(c, releaseLeakedCell[T], c.link)
	return c
}

func releaseLeakedCell[T any](l *cellLink[T]) {
	if st := l.st.Swap(nil); st != nil {
		st.release()
	}
}

func (c *Cell[T]) load() (*cellState[T], error) {
	if c == nil || c.link == nil {
		return nil, errors.UseAfterRelease(errors.PhaseAccess, "cell")
	}
	st := c.link.st.Load()
	if st == nil {
		return nil, errors.UseAfterRelease(errors.PhaseAccess, "cell")
	}
	return st, nil
}

// Clone returns another handle to the same value.
func (c *Cell[T]) Clone() (*Cell[T], error) {
	st, err := c.load()
	if err != nil {
		return nil, err
	}
	if err := st.retain(); err != nil {
		return nil, err
	}
	return newCell(st), nil
}

// Borrow runs fn with a shared view of the value. It fails with
// BorrowConflict while a BorrowMut is active.
func (c *Cell[T]) Borrow(fn func(T)) error {
	st, err := c.pin()
	if err != nil {
		return err
	}
	defer st.release()

	if err := st.borrows.acquireShared(); err != nil {
		return err
	}
	defer st.borrows.releaseShared()

	fn(st.value)
	return nil
}

// BorrowMut runs fn with exclusive access to the value. It fails with
// BorrowConflict while any other borrow is active.
func (c *Cell[T]) BorrowMut(fn func(*T)) error {
	st, err := c.pin()
	if err != nil {
		return err
	}
	defer st.release()

	if err := st.borrows.acquireExclusive(); err != nil {
		return err
	}
	defer st.borrows.releaseExclusive()

	fn(&st.value)
	return nil
}

func (c *Cell[T]) pin() (*cellState[T], error) {
	st, err := c.load()
	if err != nil {
		return nil, err
	}
	if err := st.retain(); err != nil {
		return nil, err
	}
	return st, nil
}

// Drop releases this handle; dropping twice is a no-op.
func (c *Cell[T]) Drop() {
	if c == nil || c.link == nil {
		return
	}
	if st := c.link.st.Swap(nil); st != nil {
		st.release()
	}
}

// Count returns the number of live handles, including in-flight borrows.
func (c *Cell[T]) Count() int {
	st, err := c.load()
	if err != nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.refs
}
