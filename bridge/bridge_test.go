package bridge_test

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/heap"
	"github.com/wippyai/hostbridge/resource"
)

type tracked struct {
	drops *atomic.Int32
	name  string
}

func (t *tracked) Drop() {
	t.drops.Add(1)
}

func newTracked(name string) (tracked, *atomic.Int32) {
	drops := new(atomic.Int32)
	return tracked{name: name, drops: drops}, drops
}

func newRuntime(t *testing.T, opts ...heap.Option) (*bridge.Runtime, *heap.Heap) {
	t.Helper()
	h := heap.New(opts...)
	rt := bridge.New(h)
	t.Cleanup(func() {
		rt.Close()
		h.Close()
	})
	return rt, h
}

// call runs fn in a host call and fails the test on error.
func call(t *testing.T, rt *bridge.Runtime, fn func(env *bridge.Env) error) {
	t.Helper()
	if err := rt.Call(context.Background(), fn); err != nil {
		t.Fatalf("host call failed: %v", err)
	}
}

func TestEnv_ExpiresAfterCall(t *testing.T) {
	rt, _ := newRuntime(t)

	var saved *bridge.Env
	call(t, rt, func(env *bridge.Env) error {
		if !env.Valid() {
			t.Fatal("env should be valid inside the call")
		}
		saved = env
		return nil
	})

	if saved.Valid() {
		t.Fatal("env should expire when the call returns")
	}
	v, _ := newTracked("late")
	if _, err := bridge.Wrap(saved, "Late", v); !stderrors.Is(err, errors.ErrEnvironmentExpired) {
		t.Fatalf("Wrap with expired env: %v, want EnvironmentExpired", err)
	}
	if _, err := bridge.Wrap[int](nil, "Nil", 1); !stderrors.Is(err, errors.ErrEnvironmentExpired) {
		t.Fatalf("Wrap with nil env: %v, want EnvironmentExpired", err)
	}
}

func TestEnv_IDsIncrease(t *testing.T) {
	rt, _ := newRuntime(t)
	var ids []uint64
	for i := 0; i < 3; i++ {
		call(t, rt, func(env *bridge.Env) error {
			ids = append(ids, env.ID())
			return nil
		})
	}
	if !(ids[0] < ids[1] && ids[1] < ids[2]) {
		t.Fatalf("ids not increasing: %v", ids)
	}
}

func TestReference_CloneAndDrop(t *testing.T) {
	rt, h := newRuntime(t)
	v, drops := newTracked("repo")

	call(t, rt, func(env *bridge.Env) error {
		ref, err := bridge.Wrap(env, "JsRepo", v)
		if err != nil {
			return err
		}

		const n = 5
		clones := make([]*bridge.Reference[tracked], 0, n)
		for i := 0; i < n; i++ {
			c, err := ref.Clone(env)
			if err != nil {
				return err
			}
			clones = append(clones, c)
		}
		if got := ref.Count(); got != n+1 {
			t.Fatalf("Count() = %d, want %d", got, n+1)
		}

		ref.Drop()
		for _, c := range clones[:n-1] {
			c.Drop()
		}
		last := clones[n-1]
		if got := last.Count(); got != 1 {
			t.Fatalf("Count() = %d, want 1", got)
		}
		err = last.With(func(tr *tracked) error {
			if tr.name != "repo" {
				t.Fatalf("value changed: %q", tr.name)
			}
			return nil
		})
		if err != nil {
			return err
		}

		if h.GC() != 0 {
			t.Fatal("rooted wrapper must not be collected")
		}
		if drops.Load() != 0 {
			t.Fatal("value destroyed while a handle is alive")
		}

		last.Drop()
		return nil
	})

	h.GC()
	if drops.Load() != 1 {
		t.Fatalf("value dropped %d times, want 1", drops.Load())
	}
	if rt.Live() != 0 {
		t.Fatalf("Live() = %d, want 0", rt.Live())
	}
}

func TestReference_DestructionWaitsForHost(t *testing.T) {
	rt, h := newRuntime(t)
	v, drops := newTracked("held")

	var ref *bridge.Reference[tracked]
	call(t, rt, func(env *bridge.Env) error {
		var err error
		ref, err = bridge.Wrap(env, "JsRepo", v)
		return err
	})
	slot := ref.Slot()

	// Host code keeps the wrapper in a variable.
	if err := h.Retain(slot); err != nil {
		t.Fatal(err)
	}
	ref.Drop()
	h.GC()
	if drops.Load() != 0 {
		t.Fatal("value destroyed while host still references the wrapper")
	}

	// A method call on the wrapper re-acquires the value.
	call(t, rt, func(env *bridge.Env) error {
		this, err := bridge.FromSlot[tracked](env, slot)
		if err != nil {
			return err
		}
		defer this.Drop()
		if !h.Rooted(slot) {
			t.Fatal("FromSlot should re-root the wrapper")
		}
		return this.With(func(tr *tracked) error {
			if tr.name != "held" {
				t.Fatalf("name = %q", tr.name)
			}
			return nil
		})
	})

	if err := h.Release(slot); err != nil {
		t.Fatal(err)
	}
	h.GC()
	if drops.Load() != 1 {
		t.Fatalf("value dropped %d times, want 1", drops.Load())
	}

	err := rt.Call(context.Background(), func(env *bridge.Env) error {
		_, err := bridge.FromSlot[tracked](env, slot)
		return err
	})
	if !stderrors.Is(err, errors.ErrUseAfterRelease) {
		t.Fatalf("FromSlot after finalization: %v, want UseAfterRelease", err)
	}
}

func TestReference_UseAfterDrop(t *testing.T) {
	rt, _ := newRuntime(t)

	call(t, rt, func(env *bridge.Env) error {
		ref, err := bridge.Wrap(env, "Counter", 41)
		if err != nil {
			return err
		}
		keep, err := ref.Clone(env)
		if err != nil {
			return err
		}
		defer keep.Drop()

		ref.Drop()
		ref.Drop()

		if ref.Alive() {
			t.Fatal("dropped handle reports alive")
		}
		if ref.Slot() != 0 {
			t.Fatal("dropped handle still exposes its slot")
		}
		if err := ref.With(func(*int) error { return nil }); !stderrors.Is(err, errors.ErrUseAfterRelease) {
			t.Fatalf("With after Drop: %v", err)
		}
		if _, err := ref.Clone(env); !stderrors.Is(err, errors.ErrUseAfterRelease) {
			t.Fatalf("Clone after Drop: %v", err)
		}
		if keep.Count() != 1 {
			t.Fatalf("double drop changed the count: %d", keep.Count())
		}
		return nil
	})
}

func TestReference_Update(t *testing.T) {
	rt, _ := newRuntime(t)

	call(t, rt, func(env *bridge.Env) error {
		ref, err := bridge.Wrap(env, "Counter", 1)
		if err != nil {
			return err
		}
		defer ref.Drop()
		other, err := ref.Clone(env)
		if err != nil {
			return err
		}
		defer other.Drop()

		if err := ref.Update(func(n *int) error { *n = 2; return nil }); err != nil {
			return err
		}
		return other.With(func(n *int) error {
			if *n != 2 {
				t.Fatalf("clone sees %d, want 2", *n)
			}
			return nil
		})
	})
}

func TestReference_BorrowConflict(t *testing.T) {
	rt, _ := newRuntime(t)

	call(t, rt, func(env *bridge.Env) error {
		ref, err := bridge.Wrap(env, "Counter", 0)
		if err != nil {
			return err
		}
		defer ref.Drop()

		err = ref.With(func(*int) error {
			return ref.Update(func(*int) error { return nil })
		})
		if !stderrors.Is(err, errors.ErrBorrowConflict) {
			t.Fatalf("Update inside With: %v, want BorrowConflict", err)
		}
		err = ref.With(func(*int) error {
			return ref.With(func(*int) error { return nil })
		})
		if err != nil {
			t.Fatalf("nested shared borrows should succeed: %v", err)
		}
		return nil
	})
}

func TestReference_HostAllocationError(t *testing.T) {
	rt, h := newRuntime(t, heap.WithCapacity(1))

	call(t, rt, func(env *bridge.Env) error {
		first, err := bridge.Wrap(env, "A", 1)
		if err != nil {
			return err
		}
		defer first.Drop()

		_, err = bridge.Wrap(env, "B", 2)
		if !stderrors.Is(err, errors.ErrHostAllocation) {
			t.Fatalf("Wrap beyond capacity: %v, want HostAllocation", err)
		}
		return nil
	})

	if rt.Live() != 1 || h.Len() != 1 {
		t.Fatalf("failed wrap left state behind: live=%d heap=%d", rt.Live(), h.Len())
	}
}

type refusingRoot struct {
	*heap.Heap
	refuse atomic.Bool
}

func (h *refusingRoot) Root(slot resource.Slot) error {
	if h.refuse.Load() {
		return stderrors.New("root refused")
	}
	return h.Heap.Root(slot)
}

func TestReference_RootFailureKeepsSlotUntilFinalized(t *testing.T) {
	h := heap.New()
	host := &refusingRoot{Heap: h}
	rt := bridge.New(host)
	t.Cleanup(func() {
		rt.Close()
		h.Close()
	})
	v, drops := newTracked("broken")

	host.refuse.Store(true)
	call(t, rt, func(env *bridge.Env) error {
		if _, err := bridge.Wrap(env, "Broken", v); !stderrors.Is(err, errors.ErrHostAllocation) {
			t.Fatalf("Wrap with refused root: %v, want HostAllocation", err)
		}
		return nil
	})
	var broken resource.Slot
	rt.Table().Each(func(slot resource.Slot, class string, _ any) bool {
		if class == "Broken" {
			broken = slot
		}
		return true
	})
	if broken == 0 || !h.Contains(broken) {
		t.Fatalf("slot of the unrooted wrapper was released early (slot %d)", broken)
	}

	host.refuse.Store(false)
	var fine *bridge.Reference[int]
	call(t, rt, func(env *bridge.Env) error {
		var err error
		fine, err = bridge.Wrap(env, "Fine", 1)
		return err
	})
	defer fine.Drop()
	if fine.Slot() == broken {
		t.Fatalf("slot %d reused while the host still holds its wrapper", broken)
	}

	h.GC()
	if drops.Load() != 1 {
		t.Fatalf("value dropped %d times after finalization, want 1", drops.Load())
	}
	if got := rt.Census(); len(got) != 1 || got["Fine"] != 1 {
		t.Fatalf("Census() = %v", got)
	}
}

func TestReference_EnvOfAnotherRuntime(t *testing.T) {
	rtA, _ := newRuntime(t)
	rtB, _ := newRuntime(t)

	var ref *bridge.Reference[int]
	call(t, rtB, func(env *bridge.Env) error {
		var err error
		ref, err = bridge.Wrap(env, "Counter", 3)
		return err
	})
	defer ref.Drop()

	call(t, rtA, func(env *bridge.Env) error {
		if _, err := ref.Clone(env); !stderrors.Is(err, errors.ErrEnvironmentExpired) {
			t.Fatalf("Clone across runtimes: %v, want EnvironmentExpired", err)
		}
		return nil
	})
	if ref.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", ref.Count())
	}
}

func TestPin_KeepsValueAlive(t *testing.T) {
	rt, h := newRuntime(t)
	v, drops := newTracked("pinned")

	var pin bridge.Releaser
	call(t, rt, func(env *bridge.Env) error {
		ref, err := bridge.Wrap(env, "Pinned", v)
		if err != nil {
			return err
		}
		pin, err = bridge.Pin(env, ref.Slot())
		ref.Drop()
		return err
	})

	if h.GC() != 0 || drops.Load() != 0 {
		t.Fatal("pinned value collected")
	}
	pin.Drop()
	pin.Drop()
	h.GC()
	if drops.Load() != 1 || rt.Live() != 0 {
		t.Fatalf("after unpin: drops=%d live=%d", drops.Load(), rt.Live())
	}
}

func TestReference_FromSlotTypeMismatch(t *testing.T) {
	rt, _ := newRuntime(t)

	call(t, rt, func(env *bridge.Env) error {
		ref, err := bridge.Wrap(env, "Counter", 7)
		if err != nil {
			return err
		}
		defer ref.Drop()

		_, err = bridge.FromSlot[string](env, ref.Slot())
		var be *errors.Error
		if !stderrors.As(err, &be) || be.Kind != errors.KindTypeMismatch {
			t.Fatalf("FromSlot with wrong type: %v", err)
		}
		if ref.Count() != 1 {
			t.Fatalf("failed FromSlot changed count to %d", ref.Count())
		}
		return nil
	})
}

func TestReference_ConcurrentFinalizeAndDrop(t *testing.T) {
	rt, h := newRuntime(t)
	const n = 64

	drops := new(atomic.Int32)
	refs := make([]*bridge.Reference[tracked], n)
	call(t, rt, func(env *bridge.Env) error {
		for i := range refs {
			ref, err := bridge.Wrap(env, "Item", tracked{name: "item", drops: drops})
			if err != nil {
				return err
			}
			refs[i] = ref
		}
		return nil
	})

	var wg sync.WaitGroup
	for _, ref := range refs {
		wg.Add(1)
		go func(r *bridge.Reference[tracked]) {
			defer wg.Done()
			r.Drop()
		}(ref)
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Collect()
		}()
	}
	wg.Wait()
	h.GC()

	if got := drops.Load(); got != n {
		t.Fatalf("values dropped %d times, want %d", got, n)
	}
	if rt.Live() != 0 {
		t.Fatalf("Live() = %d, want 0", rt.Live())
	}
}

func TestRuntime_CloseDestroysRemaining(t *testing.T) {
	h := heap.New()
	defer h.Close()
	rt := bridge.New(h)

	v, drops := newTracked("leftover")
	var ref *bridge.Reference[tracked]
	if err := rt.Call(context.Background(), func(env *bridge.Env) error {
		var err error
		ref, err = bridge.Wrap(env, "Leftover", v)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if census := rt.Census(); len(census) != 1 || census["Leftover"] != 1 {
		t.Fatalf("Census() = %v, want Leftover:1", census)
	}

	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if drops.Load() != 1 {
		t.Fatalf("Close dropped %d values, want 1", drops.Load())
	}
	if census := rt.Census(); len(census) != 0 {
		t.Fatalf("Census() after Close = %v", census)
	}
	ref.Drop()
	if drops.Load() != 1 {
		t.Fatal("Drop after Close destroyed the value again")
	}
	if err := rt.Call(context.Background(), func(*bridge.Env) error { return nil }); !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("Call after Close: %v, want Closed", err)
	}
}
