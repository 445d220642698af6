package wasmhost

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
)

// guestWasm imports finalize, is_rooted and live from hostbridge and
// re-exports them as collect, alive and count.
var guestWasm = concat(
	[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
	// types: (i32) -> i32, () -> i32
	[]byte{0x01, 0x0a, 0x02, 0x60, 0x01, 0x7f, 0x01, 0x7f, 0x60, 0x00, 0x01, 0x7f},
	[]byte{0x02, 0x40, 0x03},
	importEntry("finalize", 0),
	importEntry("is_rooted", 0),
	importEntry("live", 1),
	[]byte{0x03, 0x04, 0x03, 0x00, 0x00, 0x01},
	[]byte{0x07, 0x1b, 0x03},
	exportEntry("collect", 3),
	exportEntry("alive", 4),
	exportEntry("count", 5),
	[]byte{0x0a, 0x14, 0x03,
		0x06, 0x00, 0x20, 0x00, 0x10, 0x00, 0x0b, // local.get 0; call finalize
		0x06, 0x00, 0x20, 0x00, 0x10, 0x01, 0x0b, // local.get 0; call is_rooted
		0x04, 0x00, 0x10, 0x02, 0x0b, // call live
	},
)

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func importEntry(name string, typeIdx byte) []byte {
	b := []byte{byte(len(ModuleName))}
	b = append(b, ModuleName...)
	b = append(b, byte(len(name)))
	b = append(b, name...)
	return append(b, 0x00, typeIdx)
}

func exportEntry(name string, funcIdx byte) []byte {
	b := []byte{byte(len(name))}
	b = append(b, name...)
	return append(b, 0x00, funcIdx)
}

type guest struct {
	t   *testing.T
	mod api.Module
}

func (g guest) call(name string, args ...uint64) int32 {
	g.t.Helper()
	res, err := g.mod.ExportedFunction(name).Call(context.Background(), args...)
	if err != nil {
		g.t.Fatalf("%s: %v", name, err)
	}
	return api.DecodeI32(res[0])
}

func setup(t *testing.T) (*Host, *bridge.Runtime, guest) {
	t.Helper()
	ctx := context.Background()

	h, err := New(ctx, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mod, err := h.Instantiate(ctx, "guest", guestWasm)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	rt := bridge.New(h)
	t.Cleanup(func() {
		rt.Close()
		h.Close(ctx)
	})
	return h, rt, guest{t: t, mod: mod}
}

type sheet struct {
	drops *atomic.Int32
}

func (s *sheet) Drop() {
	s.drops.Add(1)
}

func TestGuestCollectsUnrootedWrapper(t *testing.T) {
	h, rt, g := setup(t)
	drops := new(atomic.Int32)

	var ref *bridge.Reference[sheet]
	err := rt.Call(context.Background(), func(env *bridge.Env) error {
		var err error
		ref, err = bridge.Wrap(env, "StyleSheet", sheet{drops: drops})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	slot := uint64(ref.Slot())

	if got := g.call("alive", slot); got != 1 {
		t.Fatalf("alive = %d, want 1 while a handle is held", got)
	}
	if got := g.call("collect", slot); got != FinalizeRooted {
		t.Fatalf("collect = %d, want rooted", got)
	}
	if drops.Load() != 0 {
		t.Fatal("rooted value destroyed")
	}

	ref.Drop()
	if got := g.call("alive", slot); got != 0 {
		t.Fatalf("alive = %d after drop, want 0", got)
	}
	if got := g.call("count"); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	if got := g.call("collect", slot); got != FinalizeDone {
		t.Fatalf("collect = %d, want done", got)
	}
	if drops.Load() != 1 {
		t.Fatalf("value dropped %d times, want 1", drops.Load())
	}
	if got := g.call("collect", slot); got != FinalizeUnknown {
		t.Fatalf("second collect = %d, want unknown", got)
	}
	if h.Live() != 0 || rt.Live() != 0 {
		t.Fatalf("live: host %d, runtime %d", h.Live(), rt.Live())
	}
}

func TestGuestFinalizeThenFromSlot(t *testing.T) {
	_, rt, g := setup(t)
	drops := new(atomic.Int32)

	var slot resource.Slot
	err := rt.Call(context.Background(), func(env *bridge.Env) error {
		ref, err := bridge.Wrap(env, "StyleSheet", sheet{drops: drops})
		if err != nil {
			return err
		}
		slot = ref.Slot()
		ref.Drop()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	g.call("collect", uint64(slot))

	err = rt.Call(context.Background(), func(env *bridge.Env) error {
		_, err := bridge.FromSlot[sheet](env, slot)
		return err
	})
	if !stderrors.Is(err, errors.ErrUseAfterRelease) {
		t.Fatalf("FromSlot after guest finalize: %v", err)
	}
}

func TestGuestRejectsBadSlots(t *testing.T) {
	_, _, g := setup(t)

	for _, v := range []uint64{0, api.EncodeI32(-5), 999} {
		if got := g.call("collect", v); got != FinalizeUnknown {
			t.Fatalf("collect(%d) = %d, want unknown", v, got)
		}
		if got := g.call("alive", v); got != 0 {
			t.Fatalf("alive(%d) = %d, want 0", v, got)
		}
	}
}

func TestHostErrors(t *testing.T) {
	ctx := context.Background()
	h, err := New(ctx, &Config{MemoryLimitPages: 16})
	if err != nil {
		t.Fatal(err)
	}
	nop := func(resource.Slot) {}

	if err := h.Allocate(1, "A", nop); err != nil {
		t.Fatal(err)
	}
	if err := h.Allocate(1, "A", nop); err == nil {
		t.Fatal("duplicate slot accepted")
	}
	if err := h.Allocate(1<<31, "A", nop); !stderrors.Is(err, errors.ErrHostAllocation) {
		t.Fatalf("oversized slot: %v", err)
	}
	if err := h.Root(2); !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("Root unknown: %v", err)
	}
	if err := h.Unroot(1); err == nil {
		t.Fatal("unroot of unrooted wrapper accepted")
	}

	if err := h.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.Allocate(3, "A", nop); !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("Allocate after Close: %v", err)
	}
}
