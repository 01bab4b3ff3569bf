// Package proxy implements the transparent proxy layer: host-side wrappers
// that translate attribute, item, call, length, and iteration access into
// wire requests against a Backend, and materialize results — including new
// wrappers — while preserving reference identity of remote objects.
package proxy

import (
	"context"

	"github.com/nodeedge/nodeedge/types"
)

// ReservedPointerAttr is the only attribute name every proxy intercepts
// locally instead of forwarding to the child.
const ReservedPointerAttr = "__pointer__"

// PointerRef is the minimal view of a remote-object handle the proxy layer
// needs. engine.Pointer implements this; the proxy layer never depends on
// the engine package directly, avoiding an import cycle.
type PointerRef interface {
	ID() int64
	Awaitable() bool
	Iterable() bool
	Repr() string
}

// Backend is the dispatcher-facing surface a proxy calls into. engine.Engine
// implements Backend.
type Backend interface {
	GetAttr(ctx context.Context, ptr PointerRef, name string) (types.Value, error)
	SetAttr(ctx context.Context, ptr PointerRef, name string, value any) error
	DelAttr(ctx context.Context, ptr PointerRef, name string) error
	GetItem(ctx context.Context, ptr PointerRef, key any) (types.Value, error)
	SetItem(ctx context.Context, ptr PointerRef, key, value any) error
	DelItem(ctx context.Context, ptr PointerRef, key any) error
	Call(ctx context.Context, ptr PointerRef, args []any) (types.Value, error)
	// CallMethod resolves name on ptr and calls it with args in one
	// round trip's worth of backend calls, preserving the child's own
	// `this` binding without the proxy layer ever handling a raw
	// PointerRef it didn't receive from a Value.
	CallMethod(ctx context.Context, ptr PointerRef, name string, args []any) (types.Value, error)
	Length(ctx context.Context, ptr PointerRef) (int, error)
	Keys(ctx context.Context, ptr PointerRef) ([]string, error)
	Repr(ctx context.Context, ptr PointerRef) (string, error)

	// Materialize converts a wire Value into a Go value (naive) or a proxy
	// (pointer), registering pointers in the handle table as needed.
	Materialize(v types.Value) (any, error)
}

// Base is embedded by all three proxy flavors: it holds the pointer being
// wrapped and the backend used to act on it.
type Base struct {
	backend Backend
	ptr     PointerRef
}

func newBase(backend Backend, ptr PointerRef) Base {
	return Base{backend: backend, ptr: ptr}
}

// Pointer returns the underlying remote-object handle. It is the only
// attribute not forwarded to the child (ReservedPointerAttr).
func (b *Base) Pointer() PointerRef { return b.ptr }

// String renders "<JavaScriptProxy <child-repr>>", matching the generic
// object proxy's repr() wrapping rule; array/mapping proxies reuse it too
// since the child-provided repr already reflects the object's true kind.
func (b *Base) String() string {
	return "<JavaScriptProxy " + b.ptr.Repr() + ">"
}
