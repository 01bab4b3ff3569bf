package engine

import (
	"runtime"
	"sync"
	"weak"
)

// Pointer is a host-side handle to a remote JavaScript object: the five
// fields the original implementation's test suite requires (id, awaitable,
// iterable, repr, and a weak back-reference to the owning engine), even
// though the wire snapshot carries only the first four.
type Pointer struct {
	id        int64
	awaitable bool
	iterable  bool
	repr      string
	engine    weak.Pointer[Engine]
}

// ID returns the pointer's child-assigned object table key.
func (p *Pointer) ID() int64 { return p.id }

// Awaitable reports whether the child reported the wrapped value as
// thenable at the moment the pointer was created.
func (p *Pointer) Awaitable() bool { return p.awaitable }

// Iterable reports whether the child reported the wrapped value as
// iterable (array-like or implementing Symbol.iterator) at creation time.
func (p *Pointer) Iterable() bool { return p.iterable }

// Repr returns the repr string captured when the pointer was created. It
// is not refreshed; call the Repr operation through a proxy for a live
// value.
func (p *Pointer) Repr() string { return p.repr }

// Engine returns the owning engine, or nil if it has since been garbage
// collected — which cannot happen while any of its own proxies or this
// pointer's caller holds a reference to it, since the Engine is reachable
// from every proxy constructed against it.
func (p *Pointer) Engine() *Engine { return p.engine.Value() }

// handleTable interns pointers by id so that two accesses yielding the
// same remote object id are backed by the identical *Pointer, and arranges
// for a "free" request to be sent exactly once, when the last reachable
// reference to that *Pointer is collected.
//
// Entries are held as weak.Pointer so the table itself is never a strong
// reference keeping every pointer alive for the engine's whole lifetime;
// that would turn every remote object into a permanent leak.
type handleTable struct {
	mu   sync.Mutex
	byID map[int64]weak.Pointer[Pointer]
}

func newHandleTable() *handleTable {
	return &handleTable{byID: make(map[int64]weak.Pointer[Pointer])}
}

// intern returns the live *Pointer for id, creating one and registering
// its GC-triggered free callback if none is currently reachable.
func (t *handleTable) intern(e *Engine, id int64, awaitable, iterable bool, repr string) *Pointer {
	t.mu.Lock()
	defer t.mu.Unlock()

	if wp, ok := t.byID[id]; ok {
		if p := wp.Value(); p != nil {
			return p
		}
	}

	p := &Pointer{id: id, awaitable: awaitable, iterable: iterable, repr: repr, engine: weak.Make(e)}
	t.byID[id] = weak.Make(p)
	e.metrics.IncPointerAllocated()

	runtime.AddCleanup(p, func(id int64) {
		e.enqueueFree(id)
	}, id)

	return p
}

// forget drops a dead entry so the map doesn't accumulate stale weak
// pointers for ids that will never be interned again. Called by
// enqueueFree when a Pointer's cleanup runs; the table is never scanned
// proactively since a dead entry costs one map slot, not a live remote
// object.
func (t *handleTable) forget(id int64) {
	t.mu.Lock()
	delete(t.byID, id)
	t.mu.Unlock()
}
