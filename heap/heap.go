package heap

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
)

type object struct {
	fin   bridge.Finalizer
	class string
	roots int
	refs  int
}

type finalization struct {
	fin  bridge.Finalizer
	slot resource.Slot
}

// Heap is a garbage-collected host. Wrappers are reachable while rooted by
// native code or retained by host code; Collect finalizes the rest.
type Heap struct {
	objects  map[resource.Slot]*object
	queue    chan finalization
	done     chan struct{}
	stop     chan struct{}
	logger   *zap.Logger
	capacity int
	interval time.Duration
	pending  sync.WaitGroup
	mu       sync.Mutex
	stats    Stats
	closed   bool
}

// Stats counts heap activity.
type Stats struct {
	Allocated int
	Finalized int
	Collected int
}

// Option configures a Heap.
type Option func(*Heap)

// WithCapacity limits the number of live wrappers; 0 means unlimited.
func WithCapacity(n int) Option {
	return func(h *Heap) {
		h.capacity = n
	}
}

// WithAutoCollect runs Collect every interval.
func WithAutoCollect(interval time.Duration) Option {
	return func(h *Heap) {
		h.interval = interval
	}
}

// WithLogger sets the heap logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Heap) {
		h.logger = l
	}
}

// New creates a heap and starts its finalizer goroutine.
func New(opts ...Option) *Heap {
	h := &Heap{
		objects: make(map[resource.Slot]*object),
		queue:   make(chan finalization, 64),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	go h.finalizeLoop()
	if h.interval > 0 {
		go h.collectLoop()
	}
	return h
}

func (h *Heap) finalizeLoop() {
	defer close(h.done)
	for f := range h.queue {
		f.fin(f.slot)
		h.mu.Lock()
		h.stats.Finalized++
		h.mu.Unlock()
		h.pending.Done()
	}
}

func (h *Heap) collectLoop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.Collect()
		case <-h.stop:
			return
		}
	}
}

// Allocate creates a wrapper object for slot.
func (h *Heap) Allocate(slot resource.Slot, class string, fin bridge.Finalizer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errors.Closed(errors.PhaseHost, "heap")
	}
	if _, ok := h.objects[slot]; ok {
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			HostType(class).
			Detail("slot %d already has a wrapper", slot).
			Build()
	}
	if h.capacity > 0 && len(h.objects) >= h.capacity {
		return errors.New(errors.PhaseHost, errors.KindHostAllocation).
			HostType(class).
			Detail("heap capacity %d reached", h.capacity).
			Build()
	}

	h.objects[slot] = &object{class: class, fin: fin}
	h.stats.Allocated++
	h.logger.Debug("wrapper allocated", zap.Uint32("slot", uint32(slot)), zap.String("class", class))
	return nil
}

func (h *Heap) lookup(slot resource.Slot) (*object, error) {
	o, ok := h.objects[slot]
	if !ok {
		return nil, errors.NotFound(errors.PhaseHost, "wrapper", slotName(slot))
	}
	return o, nil
}

// Root marks a wrapper as referenced from native code.
func (h *Heap) Root(slot resource.Slot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, err := h.lookup(slot)
	if err != nil {
		return err
	}
	o.roots++
	return nil
}

// Unroot removes one native root.
func (h *Heap) Unroot(slot resource.Slot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, err := h.lookup(slot)
	if err != nil {
		return err
	}
	if o.roots == 0 {
		return errors.InvalidInput(errors.PhaseHost, "unroot of unrooted wrapper "+slotName(slot))
	}
	o.roots--
	return nil
}

// Retain records a reference held by host code.
func (h *Heap) Retain(slot resource.Slot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, err := h.lookup(slot)
	if err != nil {
		return err
	}
	o.refs++
	return nil
}

// Release drops a reference held by host code.
func (h *Heap) Release(slot resource.Slot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, err := h.lookup(slot)
	if err != nil {
		return err
	}
	if o.refs == 0 {
		return errors.InvalidInput(errors.PhaseHost, "release of unreferenced wrapper "+slotName(slot))
	}
	o.refs--
	return nil
}

// Collect queues every unreachable wrapper for finalization and returns how
// many were queued. Finalizers run later on the heap's own goroutine.
func (h *Heap) Collect() int {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0
	}
	var batch []finalization
	for slot, o := range h.objects {
		if o.roots > 0 || o.refs > 0 {
			continue
		}
		delete(h.objects, slot)
		batch = append(batch, finalization{fin: o.fin, slot: slot})
	}
	h.stats.Collected += len(batch)
	h.pending.Add(len(batch))
	h.mu.Unlock()

	for _, f := range batch {
		h.queue <- f
	}
	if len(batch) > 0 {
		h.logger.Debug("collected wrappers", zap.Int("count", len(batch)))
	}
	return len(batch)
}

// Drain waits until every queued finalizer has run.
func (h *Heap) Drain() {
	h.pending.Wait()
}

// GC collects and drains in one step.
func (h *Heap) GC() int {
	n := h.Collect()
	h.Drain()
	return n
}

// Contains reports whether slot still has a wrapper.
func (h *Heap) Contains(slot resource.Slot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.objects[slot]
	return ok
}

// Rooted reports whether the wrapper for slot is rooted by native code.
func (h *Heap) Rooted(slot resource.Slot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.objects[slot]
	return ok && o.roots > 0
}

// Len returns the number of live wrappers.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}

// Stats returns a snapshot of heap counters.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Close drains pending finalizers and stops the heap. Remaining wrappers are
// abandoned without finalization; the bridge runtime destroys their values
// when it closes.
func (h *Heap) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	if h.interval > 0 {
		close(h.stop)
	}
	h.pending.Wait()
	close(h.queue)
	<-h.done
	return nil
}

func slotName(slot resource.Slot) string {
	return "#" + strconv.FormatUint(uint64(slot), 10)
}
