package proxy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nodeedge/nodeedge/bridgeerr"
	"github.com/nodeedge/nodeedge/types"
)

// fakePointer is a minimal PointerRef for tests, standing in for
// engine.Pointer without depending on the engine package.
type fakePointer struct {
	id        int64
	awaitable bool
	iterable  bool
	repr      string
}

func (p *fakePointer) ID() int64       { return p.id }
func (p *fakePointer) Awaitable() bool { return p.awaitable }
func (p *fakePointer) Iterable() bool  { return p.iterable }
func (p *fakePointer) Repr() string    { return p.repr }

// fakeBackend is a hand-written Backend double recording calls and serving
// scripted responses, in place of a real child connection.
type fakeBackend struct {
	attrs map[string]any
	items map[any]any

	getAttrErr error
	getItemErr error
	delAttrErr error
	delItemErr error

	lastMethod string
	lastArgs   []any
	callResult any
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{attrs: map[string]any{}, items: map[any]any{}}
}

func (b *fakeBackend) naive(v any) types.Value {
	val, err := types.NaiveValue(v)
	if err != nil {
		panic(err)
	}
	return val
}

func (b *fakeBackend) GetAttr(ctx context.Context, ptr PointerRef, name string) (types.Value, error) {
	if b.getAttrErr != nil {
		return types.Value{}, b.getAttrErr
	}
	v, ok := b.attrs[name]
	if !ok {
		return types.Value{}, &bridgeerr.JavaScriptError{Message: fmt.Sprintf("no such property: %s", name)}
	}
	return b.naive(v), nil
}

func (b *fakeBackend) SetAttr(ctx context.Context, ptr PointerRef, name string, value any) error {
	b.attrs[name] = value
	return nil
}

func (b *fakeBackend) DelAttr(ctx context.Context, ptr PointerRef, name string) error {
	if b.delAttrErr != nil {
		return b.delAttrErr
	}
	delete(b.attrs, name)
	return nil
}

func (b *fakeBackend) GetItem(ctx context.Context, ptr PointerRef, key any) (types.Value, error) {
	if b.getItemErr != nil {
		return types.Value{}, b.getItemErr
	}
	v, ok := b.items[key]
	if !ok {
		if _, isInt := key.(int); isInt {
			return types.Value{}, &bridgeerr.JavaScriptError{Message: fmt.Sprintf("index out of range: %v", key)}
		}
		return types.Value{}, &bridgeerr.JavaScriptError{Message: fmt.Sprintf("no such key: %v", key)}
	}
	return b.naive(v), nil
}

func (b *fakeBackend) SetItem(ctx context.Context, ptr PointerRef, key, value any) error {
	b.items[key] = value
	return nil
}

func (b *fakeBackend) DelItem(ctx context.Context, ptr PointerRef, key any) error {
	if b.delItemErr != nil {
		return b.delItemErr
	}
	delete(b.items, key)
	return nil
}

func (b *fakeBackend) Call(ctx context.Context, ptr PointerRef, args []any) (types.Value, error) {
	b.lastArgs = args
	return b.naive(b.callResult), nil
}

func (b *fakeBackend) CallMethod(ctx context.Context, ptr PointerRef, name string, args []any) (types.Value, error) {
	b.lastMethod = name
	b.lastArgs = args
	return b.naive(b.callResult), nil
}

func (b *fakeBackend) Length(ctx context.Context, ptr PointerRef) (int, error) {
	return len(b.items), nil
}

func (b *fakeBackend) Keys(ctx context.Context, ptr PointerRef) ([]string, error) {
	keys := make([]string, 0, len(b.attrs))
	for k := range b.attrs {
		keys = append(keys, k)
	}
	return keys, nil
}

func (b *fakeBackend) Repr(ctx context.Context, ptr PointerRef) (string, error) {
	return ptr.Repr(), nil
}

func (b *fakeBackend) Materialize(v types.Value) (any, error) {
	if v.Type == types.EnvelopePointer {
		return NewObject(b, &fakePointer{id: v.ID, awaitable: v.Awaitable, iterable: v.Iterable, repr: v.Repr}), nil
	}
	var out any
	if err := json.Unmarshal(v.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
