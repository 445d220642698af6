package wasmhost

import (
	"context"
	"strconv"
	"sync"

	"fortio.org/safecast"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
)

// ModuleName is the import module guests use for wrapper functions.
const ModuleName = "hostbridge"

// Results of the finalize host function.
const (
	FinalizeUnknown int32 = -1
	FinalizeRooted  int32 = 0
	FinalizeDone    int32 = 1
)

// Config holds configuration for host creation.
type Config struct {
	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// Runtime, when set, is used instead of a new wazero runtime. The host
	// does not close a runtime it did not create.
	Runtime wazero.Runtime
}

type object struct {
	fin   bridge.Finalizer
	class string
	roots int
}

// Host is a bridge.Host whose garbage collector lives in a wasm guest.
// Wrappers are plain slots on the guest side; when the guest collects one it
// calls hostbridge.finalize, which succeeds only if native code no longer
// roots the wrapper.
type Host struct {
	runtime wazero.Runtime
	owned   bool
	module  api.Module

	mu      sync.Mutex
	objects map[resource.Slot]*object
	closed  bool
}

// hostFunc is one export of the hostbridge module.
type hostFunc struct {
	name    string
	fn      api.GoModuleFunc
	params  []api.ValueType
	results []api.ValueType
}

// New creates a host and instantiates the hostbridge module into its
// runtime.
func New(ctx context.Context, cfg *Config) (*Host, error) {
	h := &Host{objects: make(map[resource.Slot]*object)}

	if cfg != nil && cfg.Runtime != nil {
		h.runtime = cfg.Runtime
	} else {
		rc := wazero.NewRuntimeConfig()
		if cfg != nil && cfg.MemoryLimitPages > 0 {
			rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		h.runtime = wazero.NewRuntimeWithConfig(ctx, rc)
		h.owned = true
	}

	b := h.runtime.NewHostModuleBuilder(ModuleName)
	for _, f := range h.funcs() {
		b.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.params, f.results).
			Export(f.name)
	}
	mod, err := b.Instantiate(ctx)
	if err != nil {
		if h.owned {
			_ = h.runtime.Close(ctx)
		}
		return nil, errors.Registration(errors.PhaseHost, ModuleName, "", err)
	}
	h.module = mod
	return h, nil
}

func (h *Host) funcs() []hostFunc {
	i32 := api.ValueTypeI32
	return []hostFunc{
		{name: "finalize", fn: h.finalizeFn, params: []api.ValueType{i32}, results: []api.ValueType{i32}},
		{name: "is_rooted", fn: h.isRootedFn, params: []api.ValueType{i32}, results: []api.ValueType{i32}},
		{name: "live", fn: h.liveFn, results: []api.ValueType{i32}},
	}
}

// Runtime returns the wazero runtime guests are instantiated into.
func (h *Host) Runtime() wazero.Runtime {
	return h.runtime
}

// Instantiate compiles and instantiates a guest module that may import
// hostbridge functions.
func (h *Host) Instantiate(ctx context.Context, name string, wasm []byte) (api.Module, error) {
	mod, err := h.runtime.InstantiateWithConfig(ctx, wasm, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidData, err, "instantiate guest "+name)
	}
	return mod, nil
}

// Allocate implements bridge.Host.
func (h *Host) Allocate(slot resource.Slot, class string, fin bridge.Finalizer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errors.Closed(errors.PhaseHost, "wasm host")
	}
	if _, err := safecast.Conv[int32](uint32(slot)); err != nil {
		return errors.New(errors.PhaseHost, errors.KindHostAllocation).
			HostType(class).
			Detail("slot %d does not fit a guest i32", slot).
			Cause(err).
			Build()
	}
	if _, ok := h.objects[slot]; ok {
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			HostType(class).
			Detail("slot %d already has a wrapper", slot).
			Build()
	}
	h.objects[slot] = &object{fin: fin, class: class}
	return nil
}

// Root implements bridge.Host.
func (h *Host) Root(slot resource.Slot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.objects[slot]
	if !ok {
		return errors.NotFound(errors.PhaseHost, "wrapper", slotName(slot))
	}
	o.roots++
	return nil
}

// Unroot implements bridge.Host.
func (h *Host) Unroot(slot resource.Slot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.objects[slot]
	if !ok {
		return errors.NotFound(errors.PhaseHost, "wrapper", slotName(slot))
	}
	if o.roots == 0 {
		return errors.InvalidInput(errors.PhaseHost, "unroot of unrooted wrapper")
	}
	o.roots--
	return nil
}

// Finalize is what the guest's collector does through hostbridge.finalize.
func (h *Host) Finalize(slot resource.Slot) int32 {
	h.mu.Lock()
	o, ok := h.objects[slot]
	if !ok {
		h.mu.Unlock()
		return FinalizeUnknown
	}
	if o.roots > 0 {
		h.mu.Unlock()
		return FinalizeRooted
	}
	delete(h.objects, slot)
	h.mu.Unlock()

	Logger().Debug("guest finalized wrapper", zap.Uint32("slot", uint32(slot)), zap.String("class", o.class))
	if o.fin != nil {
		o.fin(slot)
	}
	return FinalizeDone
}

// Rooted reports whether native code roots the wrapper for slot.
func (h *Host) Rooted(slot resource.Slot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.objects[slot]
	return ok && o.roots > 0
}

// Live returns the number of wrappers the guest has not finalized.
func (h *Host) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}

// Close closes the hostbridge module, and the runtime if the host created
// it. Wrappers still live are abandoned.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	if h.owned {
		return h.runtime.Close(ctx)
	}
	return h.module.Close(ctx)
}

func (h *Host) finalizeFn(_ context.Context, _ api.Module, stack []uint64) {
	slot, ok := slotArg(stack[0])
	if !ok {
		stack[0] = api.EncodeI32(FinalizeUnknown)
		return
	}
	stack[0] = api.EncodeI32(h.Finalize(slot))
}

func (h *Host) isRootedFn(_ context.Context, _ api.Module, stack []uint64) {
	slot, ok := slotArg(stack[0])
	if ok && h.Rooted(slot) {
		stack[0] = api.EncodeI32(1)
		return
	}
	stack[0] = api.EncodeI32(0)
}

func (h *Host) liveFn(_ context.Context, _ api.Module, stack []uint64) {
	n, err := safecast.Conv[int32](h.Live())
	if err != nil {
		n = -1
	}
	stack[0] = api.EncodeI32(n)
}

// slotArg decodes a guest i32 slot; negative and zero values are invalid.
func slotArg(v uint64) (resource.Slot, bool) {
	s, err := safecast.Conv[uint32](api.DecodeI32(v))
	if err != nil || s == 0 {
		return 0, false
	}
	return resource.Slot(s), true
}

func slotName(slot resource.Slot) string {
	return "#" + strconv.FormatUint(uint64(slot), 10)
}
