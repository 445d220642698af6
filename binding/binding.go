package binding

import (
	"context"
	stderrors "errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/ir"
	"github.com/wippyai/hostbridge/resource"
)

// Retainer is implemented by hosts that track references held by host code.
// Wrappers returned to the host are retained for the caller, who releases
// them when done.
type Retainer interface {
	Retain(slot resource.Slot) error
}

// wrapper is what Wrap returns: a handle the host can own.
type wrapper interface {
	Slot() resource.Slot
	Drop()
}

type key struct {
	typ  string
	name string
	role string
}

func (k key) String() string {
	s := k.name
	if k.typ != "" {
		s = k.typ + "." + s
	}
	if k.role != "" {
		s = k.role + " " + s
	}
	return s
}

type entry struct {
	fn      ir.Function
	handler Handler
	async   AsyncHandler
}

// Module dispatches host calls to native handlers according to an IR
// module. Every handler is registered against a descriptor; Invoke acquires
// an Env, checks arguments and hands wrapped results back as slots.
type Module struct {
	ir *ir.Module
	rt *bridge.Runtime

	mu       sync.RWMutex
	handlers map[key]*entry
}

// New binds m to rt.
func New(rt *bridge.Runtime, m *ir.Module) *Module {
	return &Module{ir: m, rt: rt, handlers: make(map[key]*entry)}
}

// IR returns the module's descriptors.
func (m *Module) IR() *ir.Module {
	return m.ir
}

// Runtime returns the runtime calls run in.
func (m *Module) Runtime() *bridge.Runtime {
	return m.rt
}

func role(k ir.FnKind) string {
	switch k {
	case ir.FnGetter:
		return "get"
	case ir.FnSetter:
		return "set"
	default:
		return ""
	}
}

func (m *Module) lookup(typeName, hostName string, kind ir.FnKind) (ir.Function, key, error) {
	k := key{typ: typeName, name: hostName, role: role(kind)}
	var fn ir.Function
	var ok bool
	if typeName == "" {
		fn, ok = m.ir.Function(hostName)
	} else {
		fn, ok = m.ir.Method(typeName, hostName, kind)
	}
	if !ok {
		return ir.Function{}, k, errors.NotFound(errors.PhaseCall, "descriptor", k.String())
	}
	return fn, k, nil
}

func (m *Module) register(typeName, hostName string, kind ir.FnKind, e *entry) error {
	fn, k, err := m.lookup(typeName, hostName, kind)
	if err != nil {
		return errors.Registration(errors.PhaseCall, m.ir.Name(), k.String(), err)
	}
	if fn.Async != (e.async != nil) {
		return errors.Registration(errors.PhaseCall, m.ir.Name(), k.String(),
			errors.InvalidInput(errors.PhaseCall, "async descriptors take an AsyncHandler, others a Handler"))
	}
	e.fn = fn

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.handlers[k]; dup {
		return errors.Registration(errors.PhaseCall, m.ir.Name(), k.String(), errors.DuplicateName([]string{k.String()}, hostName))
	}
	m.handlers[k] = e
	return nil
}

// RegisterFunc binds a free function.
func (m *Module) RegisterFunc(hostName string, h Handler) error {
	return m.register("", hostName, ir.FnNormal, &entry{handler: h})
}

// Register binds a method, constructor, factory or accessor of typeName.
// kind selects the accessor role; any non-accessor kind addresses ordinary
// methods, constructors and factories by host name.
func (m *Module) Register(typeName, hostName string, kind ir.FnKind, h Handler) error {
	return m.register(typeName, hostName, kind, &entry{handler: h})
}

// RegisterAsync binds an async method or free function.
func (m *Module) RegisterAsync(typeName, hostName string, h AsyncHandler) error {
	return m.register(typeName, hostName, ir.FnNormal, &entry{async: h})
}

// RegisterType binds the exported methods of impl to the methods of
// typeName. A Go method named like the host method with its first letter
// upper-cased is an ordinary method; Get and Set prefixes select accessors.
// Methods must have the Handler signature; others are ignored.
func (m *Module) RegisterType(typeName string, impl any) error {
	rv := reflect.ValueOf(impl)
	handlerType := reflect.TypeOf(Handler(nil))

	var errs []string
	for i := 0; i < rv.NumMethod(); i++ {
		method := rv.Type().Method(i)
		bound := rv.Method(i)
		if !bound.Type().ConvertibleTo(handlerType) {
			continue
		}
		h := bound.Convert(handlerType).Interface().(Handler)

		name, kind := method.Name, ir.FnNormal
		if rest, ok := strings.CutPrefix(name, "Get"); ok && rest != "" {
			if _, found := m.ir.Method(typeName, lowerFirst(rest), ir.FnGetter); found {
				name, kind = rest, ir.FnGetter
			}
		} else if rest, ok := strings.CutPrefix(name, "Set"); ok && rest != "" {
			if _, found := m.ir.Method(typeName, lowerFirst(rest), ir.FnSetter); found {
				name, kind = rest, ir.FnSetter
			}
		}
		if err := m.Register(typeName, lowerFirst(name), kind, h); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(errors.PhaseCall, errors.KindRegistration).
			GoType(rv.Type().String()).
			Detail("%s", strings.Join(errs, "; ")).
			Build()
	}
	return nil
}

// Missing lists descriptors with no handler, sorted.
func (m *Module) Missing() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for _, fn := range m.ir.Functions() {
		if k := (key{name: fn.HostName}); m.handlers[k] == nil {
			out = append(out, k.String())
		}
	}
	for _, s := range m.ir.Structs() {
		for _, fn := range m.ir.Methods(s.Name) {
			if k := (key{typ: s.Name, name: fn.HostName, role: role(fn.Kind)}); m.handlers[k] == nil {
				out = append(out, k.String())
			}
		}
	}
	sort.Strings(out)
	return out
}

func (m *Module) entry(typeName, hostName string, kind ir.FnKind) (*entry, error) {
	_, k, err := m.lookup(typeName, hostName, kind)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	e := m.handlers[k]
	m.mu.RUnlock()
	if e == nil {
		return nil, errors.New(errors.PhaseCall, errors.KindNotFound).
			Path(k.String()).
			Detail("no handler bound").
			Build()
	}
	return e, nil
}

// Call invokes a free function.
func (m *Module) Call(ctx context.Context, hostName string, args ...any) (any, error) {
	return m.invoke(ctx, "", hostName, ir.FnNormal, 0, args)
}

// Invoke calls a method of typeName on the wrapper in this. Constructors
// and factories take no receiver; pass 0.
func (m *Module) Invoke(ctx context.Context, typeName, hostName string, this resource.Slot, args ...any) (any, error) {
	return m.invoke(ctx, typeName, hostName, ir.FnNormal, this, args)
}

// Construct runs the constructor of typeName and returns the new wrapper.
func (m *Module) Construct(ctx context.Context, typeName string, args ...any) (resource.Slot, error) {
	var ctor *ir.Function
	for _, fn := range m.ir.Methods(typeName) {
		if fn.Kind == ir.FnConstructor {
			ctor = &fn
			break
		}
	}
	if ctor == nil {
		return 0, errors.NotFound(errors.PhaseCall, "constructor", typeName)
	}
	v, err := m.invoke(ctx, typeName, ctor.HostName, ir.FnConstructor, 0, args)
	if err != nil {
		return 0, err
	}
	return v.(resource.Slot), nil
}

// Get reads a property through its getter.
func (m *Module) Get(ctx context.Context, typeName, prop string, this resource.Slot) (any, error) {
	return m.invoke(ctx, typeName, prop, ir.FnGetter, this, nil)
}

// Set writes a property through its setter.
func (m *Module) Set(ctx context.Context, typeName, prop string, this resource.Slot, value any) error {
	_, err := m.invoke(ctx, typeName, prop, ir.FnSetter, this, []any{value})
	return err
}

func (m *Module) invoke(ctx context.Context, typeName, hostName string, kind ir.FnKind, this resource.Slot, args []any) (any, error) {
	e, err := m.entry(typeName, hostName, kind)
	if err != nil {
		return nil, err
	}
	fn := e.fn
	if err := m.checkCall(fn, this, args); err != nil {
		return nil, err
	}

	var out any
	err = m.rt.Call(ctx, func(env *bridge.Env) error {
		if e.async != nil {
			p, err := m.spawn(env, e, this, args)
			out = p
			return err
		}
		v, err := e.handler(&Call{Env: env, Fn: fn, This: this, Args: args})
		if err != nil {
			return m.callError(fn, err)
		}
		out, err = m.export(fn, v)
		return err
	})
	if err != nil {
		return nil, err
	}
	Logger().Debug("invoked", zap.String("fn", fn.HostName), zap.String("type", typeName))
	return out, nil
}

// spawn starts an async handler. A receiver is pinned until the result is
// delivered, so the host can not collect it while the task runs.
func (m *Module) spawn(env *bridge.Env, e *entry, this resource.Slot, args []any) (*Promise, error) {
	fn := e.fn
	ctx := env.Context()
	var pin bridge.Releaser
	if this != 0 {
		var err error
		if pin, err = bridge.Pin(env, this); err != nil {
			return nil, m.callError(fn, err)
		}
		ctx = context.WithValue(ctx, thisKey{}, this)
	}
	p := newPromise()
	work := func(context.Context) (any, error) {
		return e.async(ctx, args)
	}
	// The result must be delivered even if the caller's context ends first.
	bridge.Go(m.rt, context.WithoutCancel(ctx), work, func(env *bridge.Env, v any, err error) error {
		if pin != nil {
			defer pin.Drop()
		}
		if err != nil {
			p.settle(nil, m.callError(fn, err))
			return nil
		}
		out, err := m.export(fn, v)
		p.settle(out, err)
		return nil
	})
	return p, nil
}

type thisKey struct{}

// This returns the receiver slot of the async method running with ctx.
func This(ctx context.Context) (resource.Slot, bool) {
	s, ok := ctx.Value(thisKey{}).(resource.Slot)
	return s, ok
}

func (m *Module) callError(fn ir.Function, err error) error {
	var be *errors.Error
	if stderrors.As(err, &be) {
		return err
	}
	return errors.New(errors.PhaseCall, errors.KindInvalidData).
		Path(fn.HostName).
		Cause(err).
		Detail("handler failed").
		Build()
}

// export turns a handler result into what the host receives. Wrapped values
// become slots, retained for the caller when the host tracks references.
func (m *Module) export(fn ir.Function, v any) (any, error) {
	w, ok := v.(wrapper)
	if !ok {
		if fn.Kind == ir.FnConstructor || fn.Kind == ir.FnFactory {
			return nil, errors.TypeMismatch(errors.PhaseCall, []string{fn.HostName}, typeOf(v), "wrapped "+fn.Parent)
		}
		return v, nil
	}

	slot := w.Slot()
	if slot == 0 {
		return nil, errors.UseAfterRelease(errors.PhaseCall, fn.Parent)
	}
	if r, ok := m.rt.Host().(Retainer); ok {
		if err := r.Retain(slot); err != nil {
			w.Drop()
			return nil, errors.Wrap(errors.PhaseCall, errors.KindHostAllocation, err, "retain result")
		}
	}
	w.Drop()
	return slot, nil
}

func (m *Module) checkCall(fn ir.Function, this resource.Slot, args []any) error {
	if fn.Self.IsMethod() && this == 0 {
		return errors.InvalidInput(errors.PhaseCall, fn.HostName+" needs a receiver")
	}
	if !fn.Self.IsMethod() && this != 0 {
		return errors.InvalidInput(errors.PhaseCall, fn.HostName+" takes no receiver")
	}
	if len(args) != len(fn.Args) {
		return errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Path(fn.HostName).
			Detail("expected %d arguments, got %d", len(fn.Args), len(args)).
			Build()
	}
	for i, a := range fn.Args {
		if err := checkArg(fn.HostName, a, args[i]); err != nil {
			return err
		}
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
