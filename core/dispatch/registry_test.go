package dispatch

import (
	"fmt"
	"sync"
	"testing"

	"github.com/domtech/lifeline/core/model"
)

func TestRegistryRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	first := newFakeSession("u1", model.RoleUser, 0, 0)
	second := newFakeSession("u1", model.RoleUser, 1, 1)

	r.Register("u1", first)
	r.Register("u1", second)

	got, ok := r.Lookup("u1")
	if !ok || got != Session(second) {
		t.Fatal("last registered session must win")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 entry got %d", r.Len())
	}
}

func TestRegistryUnregisterOwnSessionOnly(t *testing.T) {
	r := NewRegistry()
	old := newFakeSession("u1", model.RoleUser, 0, 0)
	fresh := newFakeSession("u1", model.RoleUser, 0, 0)

	r.Register("u1", old)
	r.Register("u1", fresh)

	// The stale close handler for the old session must not evict the
	// reconnected one.
	if r.Unregister("u1", old) {
		t.Fatal("stale session should not unregister the current one")
	}
	if _, ok := r.Lookup("u1"); !ok {
		t.Fatal("current session was evicted by a stale close")
	}

	if !r.Unregister("u1", fresh) {
		t.Fatal("own session should unregister")
	}
	if _, ok := r.Lookup("u1"); ok {
		t.Fatal("session still present after unregister")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i%8)
			s := newFakeSession(id, model.RoleUser, 0, 0)
			r.Register(id, s)
			r.Lookup(id)
			r.Unregister(id, s)
		}(i)
	}
	wg.Wait()
}
