package engine

import (
	"testing"

	"github.com/nodeedge/nodeedge/metrics"
)

func newTestEngine() *Engine {
	return &Engine{
		id:       "test-engine",
		handles:  newHandleTable(),
		metrics:  metrics.NewCollector("test-engine", "sig"),
		requests: make(chan *request, 1),
		stopCh:   make(chan struct{}),
	}
}

func TestHandleTableInternsSameIDToSamePointer(t *testing.T) {
	e := newTestEngine()

	p1 := e.handles.intern(e, 1, false, false, "[object Object]")
	p2 := e.handles.intern(e, 1, false, false, "[object Object]")

	if p1 != p2 {
		t.Fatal("intern(1) twice should return the identical *Pointer while reachable")
	}
	snap := e.metrics.Snapshot()
	if snap.PointersAllocated != 1 {
		t.Fatalf("PointersAllocated = %d, want 1 (second intern should not re-allocate)", snap.PointersAllocated)
	}
}

func TestHandleTableDifferentIDsDistinctPointers(t *testing.T) {
	e := newTestEngine()

	p1 := e.handles.intern(e, 1, false, false, "a")
	p2 := e.handles.intern(e, 2, false, false, "b")

	if p1 == p2 {
		t.Fatal("distinct ids should intern to distinct pointers")
	}
}

func TestHandleTableForgetAllowsReintern(t *testing.T) {
	e := newTestEngine()

	p1 := e.handles.intern(e, 1, false, false, "a")
	e.handles.forget(1)

	p2 := e.handles.intern(e, 1, true, true, "b")
	if p1 == p2 {
		t.Fatal("after forget, intern should mint a fresh *Pointer rather than reuse a stale one")
	}
	if !p2.Awaitable() || !p2.Iterable() || p2.Repr() != "b" {
		t.Fatalf("re-interned pointer has stale fields: %+v", p2)
	}
}

func TestPointerFieldAccessors(t *testing.T) {
	e := newTestEngine()
	p := e.handles.intern(e, 7, true, false, "[Function: f]")

	if p.ID() != 7 {
		t.Fatalf("ID() = %d, want 7", p.ID())
	}
	if !p.Awaitable() {
		t.Fatal("Awaitable() = false, want true")
	}
	if p.Iterable() {
		t.Fatal("Iterable() = true, want false")
	}
	if p.Repr() != "[Function: f]" {
		t.Fatalf("Repr() = %q", p.Repr())
	}
	if p.Engine() != e {
		t.Fatal("Engine() should return the owning engine while it is still reachable")
	}
}
