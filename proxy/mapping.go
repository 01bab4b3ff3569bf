package proxy

import (
	"context"

	"github.com/nodeedge/nodeedge/bridgeerr"
)

// Mapping is the proxy flavor produced by Engine.AsMapping: it exposes
// only string-keyed get/set/delete, len, and an ordered key listing,
// hiding attribute-form access so a JS object used purely as a dictionary
// reads like one.
type Mapping struct{ Base }

// NewMapping wraps ptr in a mapping proxy.
func NewMapping(backend Backend, ptr PointerRef) *Mapping {
	return &Mapping{newBase(backend, ptr)}
}

// Get resolves a key by item-form access, returning ErrKeyMissing if the
// child has no such own or inherited property.
func (m *Mapping) Get(ctx context.Context, key string) (any, error) {
	v, err := m.backend.GetItem(ctx, m.ptr, key)
	if err != nil {
		return nil, bridgeerr.ReclassifyMissing(err, "item")
	}
	return m.backend.Materialize(v)
}

// Set assigns a key by item-form access.
func (m *Mapping) Set(ctx context.Context, key string, value any) error {
	return m.backend.SetItem(ctx, m.ptr, key, value)
}

// Delete removes a key by item-form access.
func (m *Mapping) Delete(ctx context.Context, key string) error {
	err := m.backend.DelItem(ctx, m.ptr, key)
	return bridgeerr.ReclassifyMissing(err, "item")
}

// Len returns the number of own enumerable keys.
func (m *Mapping) Len(ctx context.Context) (int, error) {
	return m.backend.Length(ctx, m.ptr)
}

// Keys returns the object's own enumerable string keys, in the child's
// insertion order.
func (m *Mapping) Keys(ctx context.Context) ([]string, error) {
	return m.backend.Keys(ctx, m.ptr)
}

// Repr fetches a fresh child-side string representation.
func (m *Mapping) Repr(ctx context.Context) (string, error) {
	return m.backend.Repr(ctx, m.ptr)
}
