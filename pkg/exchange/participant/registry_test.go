package participant

import (
	"strings"
	"testing"
)

func TestRegisterIsIdempotentByName(t *testing.T) {
	r := NewRegistry()

	first, created := r.Register("alice")
	if !created {
		t.Fatal("first Register must create")
	}
	second, created := r.Register("alice")
	if created {
		t.Fatal("second Register must return the existing participant")
	}
	if first.ID != second.ID || first.APIKey != second.APIKey {
		t.Fatal("idempotent Register returned a different participant")
	}
	if first.Role != RoleUser {
		t.Fatalf("role = %s, want USER", first.Role)
	}
	if !strings.HasPrefix(first.APIKey, "key-") {
		t.Fatalf("api key = %q, want key- prefix", first.APIKey)
	}
}

func TestByKeyLookup(t *testing.T) {
	r := NewRegistry()
	p, _ := r.Register("bob")

	got, ok := r.ByKey(p.APIKey)
	if !ok || got.ID != p.ID {
		t.Fatal("ByKey must resolve the registered key")
	}
	if _, ok := r.ByKey("key-unknown"); ok {
		t.Fatal("unknown key must not resolve")
	}
}

func TestDeleteRemovesAllIndexes(t *testing.T) {
	r := NewRegistry()
	p, _ := r.Register("carol")

	if _, ok := r.Delete(p.ID); !ok {
		t.Fatal("Delete must succeed")
	}
	if _, ok := r.ByID(p.ID); ok {
		t.Fatal("ByID still resolves after Delete")
	}
	if _, ok := r.ByKey(p.APIKey); ok {
		t.Fatal("ByKey still resolves after Delete")
	}
	// Name freed for a fresh registration.
	fresh, created := r.Register("carol")
	if !created || fresh.ID == p.ID {
		t.Fatal("name must be reusable after Delete")
	}
}
