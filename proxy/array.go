package proxy

import (
	"context"

	"github.com/nodeedge/nodeedge/bridgeerr"
)

// Array is the proxy flavor selected when a pointer's metadata reports
// iterable: integer indexing, length, append, and a point-in-time snapshot
// for iteration. Whether the value is array-shaped is not checked, so any
// iterable (a Map, a Set, a generator) also gets this flavor.
type Array struct{ Base }

// NewArray wraps ptr in an array proxy.
func NewArray(backend Backend, ptr PointerRef) *Array {
	return &Array{newBase(backend, ptr)}
}

// GetAttr still resolves attribute-form access (e.g. .length, .push), since
// a JS array is an object too; __pointer__ is intercepted locally.
func (a *Array) GetAttr(ctx context.Context, name string) (any, error) {
	if name == ReservedPointerAttr {
		return a.ptr, nil
	}
	v, err := a.backend.GetAttr(ctx, a.ptr, name)
	if err != nil {
		return nil, bridgeerr.ReclassifyMissing(err, "attr")
	}
	return a.backend.Materialize(v)
}

// GetIndex resolves obj[index], raising ErrIndexOutOfRange for an
// out-of-bounds index rather than forwarding a generic JavaScriptError.
func (a *Array) GetIndex(ctx context.Context, index int) (any, error) {
	v, err := a.backend.GetItem(ctx, a.ptr, index)
	if err != nil {
		return nil, bridgeerr.ReclassifyMissing(err, "item")
	}
	return a.backend.Materialize(v)
}

// SetIndex assigns obj[index] = value.
func (a *Array) SetIndex(ctx context.Context, index int, value any) error {
	return a.backend.SetItem(ctx, a.ptr, index, value)
}

// DelIndex removes the element at index via the child's Array.splice,
// shifting subsequent elements down (JS array semantics, not a sparse
// delete).
func (a *Array) DelIndex(ctx context.Context, index int) error {
	err := a.backend.DelItem(ctx, a.ptr, index)
	return bridgeerr.ReclassifyMissing(err, "item")
}

// Length returns the array's current length.
func (a *Array) Length(ctx context.Context) (int, error) {
	return a.backend.Length(ctx, a.ptr)
}

// Append calls the remote push(value) and returns the new length, mirroring
// JavaScript's own Array.prototype.push return value.
func (a *Array) Append(ctx context.Context, value any) (int, error) {
	result, err := a.backend.CallMethod(ctx, a.ptr, "push", []any{value})
	if err != nil {
		return 0, err
	}
	materialized, err := a.backend.Materialize(result)
	if err != nil {
		return 0, err
	}
	length, ok := toInt(materialized)
	if !ok {
		return 0, bridgeerr.TypeError("append", "push did not return a number")
	}
	return length, nil
}

// Snapshot materializes every element at the current length into a Go
// slice, giving iteration a fixed view independent of concurrent mutation
// on the child side — the same "iterate over a snapshot, not live state"
// rule spec.md gives array proxies.
func (a *Array) Snapshot(ctx context.Context) ([]any, error) {
	length, err := a.Length(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, length)
	for i := 0; i < length; i++ {
		v, err := a.GetIndex(ctx, i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Repr fetches a fresh child-side string representation.
func (a *Array) Repr(ctx context.Context) (string, error) {
	return a.backend.Repr(ctx, a.ptr)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
