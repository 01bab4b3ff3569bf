package proxy

import (
	"context"
	"errors"
	"testing"

	"github.com/nodeedge/nodeedge/bridgeerr"
)

func TestObjectGetAttrReservedPointer(t *testing.T) {
	backend := newFakeBackend()
	ptr := &fakePointer{id: 1, repr: "[object Object]"}
	obj := NewObject(backend, ptr)

	got, err := obj.GetAttr(context.Background(), ReservedPointerAttr)
	if err != nil {
		t.Fatalf("GetAttr(__pointer__): %v", err)
	}
	if got != PointerRef(ptr) {
		t.Fatalf("GetAttr(__pointer__) = %v, want the wrapped pointer", got)
	}
}

func TestObjectGetAttrMaterializesNaive(t *testing.T) {
	backend := newFakeBackend()
	backend.attrs["name"] = "alice"
	obj := NewObject(backend, &fakePointer{id: 1})

	got, err := obj.GetAttr(context.Background(), "name")
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if got != "alice" {
		t.Fatalf("GetAttr(name) = %v, want alice", got)
	}
}

func TestObjectGetAttrReclassifiesMissing(t *testing.T) {
	backend := newFakeBackend()
	obj := NewObject(backend, &fakePointer{id: 1})

	_, err := obj.GetAttr(context.Background(), "missing")
	if !errors.Is(err, bridgeerr.ErrAttributeMissing) {
		t.Fatalf("GetAttr(missing) err = %v, want ErrAttributeMissing", err)
	}
}

func TestObjectSetAttr(t *testing.T) {
	backend := newFakeBackend()
	obj := NewObject(backend, &fakePointer{id: 1})

	if err := obj.SetAttr(context.Background(), "name", "bob"); err != nil {
		t.Fatalf("SetAttr: %v", err)
	}
	if backend.attrs["name"] != "bob" {
		t.Fatalf("attrs[name] = %v, want bob", backend.attrs["name"])
	}
}

func TestObjectDelAttrReclassifiesMissing(t *testing.T) {
	backend := newFakeBackend()
	backend.delAttrErr = &bridgeerr.JavaScriptError{Message: "no such property: ghost"}
	obj := NewObject(backend, &fakePointer{id: 1})

	err := obj.DelAttr(context.Background(), "ghost")
	if !errors.Is(err, bridgeerr.ErrAttributeMissing) {
		t.Fatalf("DelAttr err = %v, want ErrAttributeMissing", err)
	}
}

func TestObjectGetItemStringKey(t *testing.T) {
	backend := newFakeBackend()
	backend.items["k"] = 42.0
	obj := NewObject(backend, &fakePointer{id: 1})

	got, err := obj.GetItem(context.Background(), "k")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got != 42.0 {
		t.Fatalf("GetItem(k) = %v, want 42", got)
	}
}

func TestObjectGetItemReclassifiesKeyMissing(t *testing.T) {
	backend := newFakeBackend()
	obj := NewObject(backend, &fakePointer{id: 1})

	_, err := obj.GetItem(context.Background(), "absent")
	if !errors.Is(err, bridgeerr.ErrKeyMissing) {
		t.Fatalf("GetItem(absent) err = %v, want ErrKeyMissing", err)
	}
}

func TestObjectCallMaterializesResult(t *testing.T) {
	backend := newFakeBackend()
	backend.callResult = "done"
	obj := NewObject(backend, &fakePointer{id: 1})

	got, err := obj.Call(context.Background(), 1, "two")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "done" {
		t.Fatalf("Call result = %v, want done", got)
	}
	if len(backend.lastArgs) != 2 {
		t.Fatalf("lastArgs = %v, want 2 args", backend.lastArgs)
	}
}

func TestObjectKeysAndLength(t *testing.T) {
	backend := newFakeBackend()
	backend.items["a"] = 1.0
	backend.items["b"] = 2.0
	backend.attrs["x"] = 1
	obj := NewObject(backend, &fakePointer{id: 1})

	n, err := obj.Length(context.Background())
	if err != nil {
		t.Fatalf("Length: %v", err)
	}
	if n != 2 {
		t.Fatalf("Length = %d, want 2", n)
	}

	keys, err := obj.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "x" {
		t.Fatalf("Keys = %v, want [x]", keys)
	}
}

func TestObjectRepr(t *testing.T) {
	backend := newFakeBackend()
	obj := NewObject(backend, &fakePointer{id: 1, repr: "[object Object]"})

	repr, err := obj.Repr(context.Background())
	if err != nil {
		t.Fatalf("Repr: %v", err)
	}
	if repr != "[object Object]" {
		t.Fatalf("Repr = %q, want [object Object]", repr)
	}
}

func TestBaseStringWrapsChildRepr(t *testing.T) {
	backend := newFakeBackend()
	obj := NewObject(backend, &fakePointer{id: 1, repr: "[object Object]"})

	if obj.String() != "<JavaScriptProxy [object Object]>" {
		t.Fatalf("String() = %q", obj.String())
	}
}
