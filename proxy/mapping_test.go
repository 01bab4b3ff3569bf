package proxy

import (
	"context"
	"errors"
	"testing"

	"github.com/nodeedge/nodeedge/bridgeerr"
)

func TestMappingGetSetDelete(t *testing.T) {
	backend := newFakeBackend()
	m := NewMapping(backend, &fakePointer{id: 1})

	if err := m.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := m.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "v" {
		t.Fatalf("Get(k) = %v, want v", got)
	}
	if err := m.Delete(context.Background(), "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := backend.items["k"]; ok {
		t.Fatalf("key k should be gone after Delete")
	}
}

func TestMappingGetReclassifiesKeyMissing(t *testing.T) {
	backend := newFakeBackend()
	m := NewMapping(backend, &fakePointer{id: 1})

	_, err := m.Get(context.Background(), "absent")
	if !errors.Is(err, bridgeerr.ErrKeyMissing) {
		t.Fatalf("Get(absent) err = %v, want ErrKeyMissing", err)
	}
}

func TestMappingLenAndKeys(t *testing.T) {
	backend := newFakeBackend()
	backend.items["a"] = 1.0
	backend.attrs["a"] = 1.0
	m := NewMapping(backend, &fakePointer{id: 1})

	n, err := m.Len(context.Background())
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}

	keys, err := m.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "a" {
		t.Fatalf("Keys = %v, want [a]", keys)
	}
}
