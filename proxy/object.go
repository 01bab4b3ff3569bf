package proxy

import (
	"context"

	"github.com/nodeedge/nodeedge/bridgeerr"
)

// Object is the generic proxy flavor: attribute and string-keyed item
// access, calling, and repr, with no assumption about iteration shape.
type Object struct{ Base }

// NewObject wraps ptr in a generic object proxy.
func NewObject(backend Backend, ptr PointerRef) *Object {
	return &Object{newBase(backend, ptr)}
}

// GetAttr resolves a property by attribute-form access. __pointer__ is
// intercepted locally and never reaches the child.
func (o *Object) GetAttr(ctx context.Context, name string) (any, error) {
	if name == ReservedPointerAttr {
		return o.ptr, nil
	}
	v, err := o.backend.GetAttr(ctx, o.ptr, name)
	if err != nil {
		return nil, bridgeerr.ReclassifyMissing(err, "attr")
	}
	return o.backend.Materialize(v)
}

// SetAttr assigns a property by attribute-form access.
func (o *Object) SetAttr(ctx context.Context, name string, value any) error {
	return o.backend.SetAttr(ctx, o.ptr, name, value)
}

// DelAttr deletes a property by attribute-form access.
func (o *Object) DelAttr(ctx context.Context, name string) error {
	err := o.backend.DelAttr(ctx, o.ptr, name)
	return bridgeerr.ReclassifyMissing(err, "attr")
}

// GetItem resolves a property by item-form (string-keyed) access.
func (o *Object) GetItem(ctx context.Context, key string) (any, error) {
	v, err := o.backend.GetItem(ctx, o.ptr, key)
	if err != nil {
		return nil, bridgeerr.ReclassifyMissing(err, "item")
	}
	return o.backend.Materialize(v)
}

// SetItem assigns a property by item-form access.
func (o *Object) SetItem(ctx context.Context, key string, value any) error {
	return o.backend.SetItem(ctx, o.ptr, key, value)
}

// DelItem deletes a property by item-form access.
func (o *Object) DelItem(ctx context.Context, key string) error {
	err := o.backend.DelItem(ctx, o.ptr, key)
	return bridgeerr.ReclassifyMissing(err, "item")
}

// Call invokes the wrapped pointer as a function. A pointer obtained via
// attribute access on its owner already carries that owner as its bound
// `this` (the child binds it before the pointer is created), so Call never
// needs an explicit owner argument.
func (o *Object) Call(ctx context.Context, args ...any) (any, error) {
	v, err := o.backend.Call(ctx, o.ptr, args)
	if err != nil {
		return nil, err
	}
	return o.backend.Materialize(v)
}

// Length reports the child-computed length (Object.keys().length for a
// plain object, .length for an array-like).
func (o *Object) Length(ctx context.Context) (int, error) {
	return o.backend.Length(ctx, o.ptr)
}

// Keys returns the object's own enumerable string keys, in the child's
// insertion order.
func (o *Object) Keys(ctx context.Context) ([]string, error) {
	return o.backend.Keys(ctx, o.ptr)
}

// Repr fetches a fresh child-side string representation.
func (o *Object) Repr(ctx context.Context) (string, error) {
	return o.backend.Repr(ctx, o.ptr)
}
