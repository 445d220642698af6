package binding

import (
	"context"
	stderrors "errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/heap"
	"github.com/wippyai/hostbridge/ir"
	"github.com/wippyai/hostbridge/resource"
)

type counter struct {
	value int32
	drops *atomic.Int32
}

func (c *counter) Drop() {
	if c.drops != nil {
		c.drops.Add(1)
	}
}

type label struct {
	text string
}

func counterModule(t *testing.T) *ir.Module {
	t.Helper()
	m, err := ir.NewBuilder("counter").
		Struct(ir.Struct{Name: "Counter", Kind: ir.StructConstructor}).
		Struct(ir.Struct{Name: "Label"}).
		Impl(ir.Impl{Name: "Counter", Items: []ir.Function{
			{Name: "new", Kind: ir.FnConstructor, Args: []ir.Arg{{Name: "start", Type: "s32"}}},
			{Name: "add", Self: ir.SelfMutRef, Args: []ir.Arg{{Name: "n", Type: "s32"}}, Ret: "s32"},
			{Name: "value", Self: ir.SelfRef, Kind: ir.FnGetter, Ret: "s32"},
			{Name: "value", Self: ir.SelfMutRef, Kind: ir.FnSetter, Args: []ir.Arg{{Name: "v", Type: "s32"}}},
			{Name: "label", Self: ir.SelfRef, Ret: "Label"},
			{Name: "each", Self: ir.SelfRef, Args: []ir.Arg{{Name: "cb", Kind: ir.ArgCallback, CallbackArgs: []ir.TypeRef{"s32"}}}},
			{Name: "doubled", Self: ir.SelfRef, Async: true, Ret: "s32"},
		}}).
		Impl(ir.Impl{Name: "Label", Items: []ir.Function{
			{Name: "text", Self: ir.SelfRef, Kind: ir.FnGetter, Ret: "string"},
		}}).
		Function(ir.Function{Name: "version", Ret: "string"}).
		Build()
	if err != nil {
		t.Fatalf("build module: %v", err)
	}
	return m
}

type fixture struct {
	b     *Module
	h     *heap.Heap
	rt    *bridge.Runtime
	drops *atomic.Int32
	gate  chan struct{}
}

func setup(t *testing.T) *fixture {
	t.Helper()
	h := heap.New()
	rt := bridge.New(h)
	t.Cleanup(func() {
		rt.Close()
		h.Close()
	})

	f := &fixture{b: New(rt, counterModule(t)), h: h, rt: rt, drops: new(atomic.Int32)}
	f.bind(t)
	return f
}

func (f *fixture) bind(t *testing.T) {
	t.Helper()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}

	must(f.b.Register("Counter", "new", ir.FnConstructor, func(c *Call) (any, error) {
		start, err := Arg[int32](c, 0)
		if err != nil {
			return nil, err
		}
		return bridge.Wrap(c.Env, "Counter", counter{value: start, drops: f.drops})
	}))
	must(f.b.Register("Counter", "add", ir.FnNormal, Method(func(c *Call, n *counter) (any, error) {
		d, err := Arg[int32](c, 0)
		if err != nil {
			return nil, err
		}
		n.value += d
		return n.value, nil
	})))
	must(f.b.Register("Counter", "value", ir.FnGetter, Method(func(_ *Call, n *counter) (any, error) {
		return n.value, nil
	})))
	must(f.b.Register("Counter", "value", ir.FnSetter, Method(func(c *Call, n *counter) (any, error) {
		v, err := Arg[int32](c, 0)
		n.value = v
		return nil, err
	})))
	must(f.b.Register("Counter", "label", ir.FnNormal, Receiver(func(c *Call, this *bridge.Reference[counter]) (any, error) {
		sr, err := bridge.Derive(c.Env, this, func(n *counter) (label, error) {
			return label{text: "counter"}, nil
		})
		if err != nil {
			return nil, err
		}
		return bridge.Wrap(c.Env, "Label", sr)
	})))
	must(f.b.Register("Counter", "each", ir.FnNormal, Method(func(c *Call, n *counter) (any, error) {
		cb, err := Arg[func(int32)](c, 0)
		if err != nil {
			return nil, err
		}
		for i := int32(0); i < n.value; i++ {
			cb(i)
		}
		return nil, nil
	})))
	must(f.b.RegisterAsync("Counter", "doubled", func(ctx context.Context, _ []any) (any, error) {
		slot, ok := This(ctx)
		if !ok {
			return nil, stderrors.New("no receiver")
		}
		if f.gate != nil {
			<-f.gate
		}
		var out int32
		err := f.rt.Attach(ctx, func(env *bridge.Env) error {
			ref, err := bridge.FromSlot[counter](env, slot)
			if err != nil {
				return err
			}
			defer ref.Drop()
			return ref.With(func(n *counter) error {
				out = n.value * 2
				return nil
			})
		})
		return out, err
	}))
	must(f.b.Register("Label", "text", ir.FnGetter, Method(func(_ *Call, sr **bridge.SharedReference[counter, label]) (any, error) {
		l, err := (*sr).Value()
		return l.text, err
	})))
	must(f.b.RegisterFunc("version", func(*Call) (any, error) { return "1.0", nil }))
}

func TestModule_ConstructAndAccessors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	slot, err := f.b.Construct(ctx, "Counter", int32(5))
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}

	v, err := f.b.Invoke(ctx, "Counter", "add", slot, int32(3))
	if err != nil || v != int32(8) {
		t.Fatalf("add = %v, %v", v, err)
	}
	if err := f.b.Set(ctx, "Counter", "value", slot, int32(42)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err = f.b.Get(ctx, "Counter", "value", slot)
	if err != nil || v != int32(42) {
		t.Fatalf("value = %v, %v", v, err)
	}

	v, err = f.b.Call(ctx, "version")
	if err != nil || v != "1.0" {
		t.Fatalf("version = %v, %v", v, err)
	}
}

func TestModule_WrapperLifetimeFollowsHost(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	slot, err := f.b.Construct(ctx, "Counter", int32(1))
	if err != nil {
		t.Fatal(err)
	}
	if !f.h.Contains(slot) || f.h.Rooted(slot) {
		t.Fatal("constructed wrapper should be held by the caller, not rooted")
	}

	f.h.GC()
	if f.drops.Load() != 0 {
		t.Fatal("wrapper collected while the caller holds it")
	}

	if err := f.h.Release(slot); err != nil {
		t.Fatal(err)
	}
	f.h.GC()
	if f.drops.Load() != 1 {
		t.Fatalf("value dropped %d times, want 1", f.drops.Load())
	}

	_, err = f.b.Get(ctx, "Counter", "value", slot)
	if !stderrors.Is(err, errors.ErrUseAfterRelease) {
		t.Fatalf("Get on finalized wrapper: %v", err)
	}
}

func TestModule_DerivedWrapperKeepsOwner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	counterSlot, err := f.b.Construct(ctx, "Counter", int32(1))
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.b.Invoke(ctx, "Counter", "label", counterSlot)
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	labelSlot := v.(resource.Slot)

	// The host drops the counter but keeps the label.
	if err := f.h.Release(counterSlot); err != nil {
		t.Fatal(err)
	}
	f.h.GC()
	if f.drops.Load() != 0 {
		t.Fatal("counter destroyed while its label is alive")
	}

	text, err := f.b.Get(ctx, "Label", "text", labelSlot)
	if err != nil || text != "counter" {
		t.Fatalf("text = %v, %v", text, err)
	}

	if err := f.h.Release(labelSlot); err != nil {
		t.Fatal(err)
	}
	f.h.GC()
	f.h.GC()
	if f.drops.Load() != 1 {
		t.Fatalf("counter dropped %d times, want 1", f.drops.Load())
	}
	if f.rt.Live() != 0 {
		t.Fatalf("Live() = %d, want 0", f.rt.Live())
	}
}

func TestModule_Callback(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	slot, err := f.b.Construct(ctx, "Counter", int32(3))
	if err != nil {
		t.Fatal(err)
	}
	var seen []int32
	if _, err := f.b.Invoke(ctx, "Counter", "each", slot, func(i int32) { seen = append(seen, i) }); err != nil {
		t.Fatalf("each: %v", err)
	}
	if len(seen) != 3 || seen[2] != 2 {
		t.Fatalf("callback saw %v", seen)
	}
}

func TestModule_Async(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	slot, err := f.b.Construct(ctx, "Counter", int32(21))
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.b.Invoke(ctx, "Counter", "doubled", slot)
	if err != nil {
		t.Fatalf("doubled: %v", err)
	}
	p, ok := v.(*Promise)
	if !ok {
		t.Fatalf("async call returned %T", v)
	}

	actx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := p.Await(actx)
	if err != nil || out != int32(42) {
		t.Fatalf("Await = %v, %v", out, err)
	}
	if err := f.rt.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestModule_AsyncPinsReceiver(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	slot, err := f.b.Construct(ctx, "Counter", int32(21))
	if err != nil {
		t.Fatal(err)
	}
	f.gate = make(chan struct{})
	v, err := f.b.Invoke(ctx, "Counter", "doubled", slot)
	if err != nil {
		t.Fatalf("doubled: %v", err)
	}

	// The host lets go of the receiver while the task is still running.
	if err := f.h.Release(slot); err != nil {
		t.Fatal(err)
	}
	if n := f.h.GC(); n != 0 {
		t.Fatalf("collected %d wrappers while the task held the receiver", n)
	}
	close(f.gate)

	actx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := v.(*Promise).Await(actx)
	if err != nil || out != int32(42) {
		t.Fatalf("Await = %v, %v", out, err)
	}
	if err := f.rt.Wait(); err != nil {
		t.Fatal(err)
	}

	f.h.GC()
	if f.drops.Load() != 1 || f.rt.Live() != 0 {
		t.Fatalf("after completion: drops=%d live=%d", f.drops.Load(), f.rt.Live())
	}
}

func TestModule_AsyncReleasedReceiver(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	slot, err := f.b.Construct(ctx, "Counter", int32(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.h.Release(slot); err != nil {
		t.Fatal(err)
	}
	f.h.GC()

	_, err = f.b.Invoke(ctx, "Counter", "doubled", slot)
	if !stderrors.Is(err, errors.ErrUseAfterRelease) {
		t.Fatalf("doubled on a collected receiver: %v, want UseAfterRelease", err)
	}
}

func TestModule_CallErrors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	slot, err := f.b.Construct(ctx, "Counter", int32(0))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		call func() error
		kind errors.Kind
	}{
		{"unknown method", func() error {
			_, err := f.b.Invoke(ctx, "Counter", "missing", slot)
			return err
		}, errors.KindNotFound},
		{"missing receiver", func() error {
			_, err := f.b.Invoke(ctx, "Counter", "add", 0, int32(1))
			return err
		}, errors.KindInvalidInput},
		{"wrong arity", func() error {
			_, err := f.b.Invoke(ctx, "Counter", "add", slot)
			return err
		}, errors.KindInvalidInput},
		{"wrong argument type", func() error {
			_, err := f.b.Invoke(ctx, "Counter", "add", slot, "one")
			return err
		}, errors.KindTypeMismatch},
		{"argument out of range", func() error {
			_, err := f.b.Invoke(ctx, "Counter", "add", slot, int64(1)<<40)
			return err
		}, errors.KindTypeMismatch},
		{"callback expected", func() error {
			_, err := f.b.Invoke(ctx, "Counter", "each", slot, 7)
			return err
		}, errors.KindTypeMismatch},
		{"receiver of another class", func() error {
			label, err := f.b.Invoke(ctx, "Counter", "label", slot)
			if err != nil {
				return err
			}
			_, err = f.b.Get(ctx, "Counter", "value", label.(resource.Slot))
			return err
		}, errors.KindTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("error = %v, want *errors.Error", err)
			}
			if e.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s (%v)", e.Kind, tt.kind, err)
			}
		})
	}
}

func TestModule_RegisterErrors(t *testing.T) {
	f := setup(t)
	nop := func(*Call) (any, error) { return nil, nil }

	if err := f.b.Register("Counter", "add", ir.FnNormal, nop); !stderrors.Is(err, errors.ErrDuplicateName) {
		t.Fatalf("duplicate register: %v", err)
	}
	if err := f.b.Register("Counter", "nope", ir.FnNormal, nop); !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("unknown descriptor: %v", err)
	}
	if err := f.b.Register("Counter", "doubled", ir.FnNormal, nop); err == nil {
		t.Fatal("sync handler accepted for async descriptor")
	}
}

type counterImpl struct{}

func (counterImpl) New(c *Call) (any, error) {
	return bridge.Wrap(c.Env, "Counter", counter{value: 7})
}

func (counterImpl) GetValue(c *Call) (any, error) {
	return Method(func(_ *Call, n *counter) (any, error) { return n.value, nil })(c)
}

func (counterImpl) Helper() string { return "not a handler" }

func TestModule_RegisterType(t *testing.T) {
	h := heap.New()
	defer h.Close()
	rt := bridge.New(h)
	defer rt.Close()

	b := New(rt, counterModule(t))
	if err := b.RegisterType("Counter", counterImpl{}); err != nil {
		t.Fatalf("RegisterType: %v", err)
	}

	missing := strings.Join(b.Missing(), ",")
	if strings.Contains(missing, "get Counter.value") || strings.Contains(missing, "Counter.new") {
		t.Fatalf("bound methods reported missing: %s", missing)
	}
	if !strings.Contains(missing, "set Counter.value") || !strings.Contains(missing, "version") {
		t.Fatalf("unbound methods not reported: %s", missing)
	}

	ctx := context.Background()
	slot, err := b.Construct(ctx, "Counter")
	if err == nil {
		t.Fatal("constructor called with missing argument")
	}
	slot, err = b.Construct(ctx, "Counter", int32(0))
	if err != nil {
		t.Fatal(err)
	}
	v, err := b.Get(ctx, "Counter", "value", slot)
	if err != nil || v != int32(7) {
		t.Fatalf("value = %v, %v", v, err)
	}
}
