package inventory

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "inventory.yml"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return store
}

func TestOpenCreatesEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yml")

	if _, err := Open(path); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	// The empty document must be persisted immediately.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("backing document not created: %v", err)
	}
	if len(data) == 0 {
		t.Error("backing document is empty")
	}

	store, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if _, ok := store.Get("servers", nil).(map[string]any); !ok {
		t.Error("servers collection missing from empty document")
	}
	if _, ok := store.Get("sites", nil).(map[string]any); !ok {
		t.Error("sites collection missing from empty document")
	}
}

func TestDotPathRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if err := store.Set("servers.web1.port", 22); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	if got := store.Get("servers.web1.port", nil); got != 22 {
		t.Errorf("Get(servers.web1.port) = %v, want 22", got)
	}
	if got := store.Get("servers.web1.missing", "fallback"); got != "fallback" {
		t.Errorf("Get() with absent terminal = %v, want fallback", got)
	}
	if got := store.Get("servers.ghost.port", "fallback"); got != "fallback" {
		t.Errorf("Get() with absent segment = %v, want fallback", got)
	}
}

func TestSetCreatesIntermediateMaps(t *testing.T) {
	store := newTestStore(t)

	if err := store.Set("servers.web1.info.ufw_active", true); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if got := store.Get("servers.web1.info.ufw_active", nil); got != true {
		t.Errorf("Get() = %v, want true", got)
	}

	// Setting through a scalar replaces it with a map.
	if err := store.Set("servers.web1.info", "scalar"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := store.Set("servers.web1.info.distro", "debian"); err != nil {
		t.Fatalf("Set() through scalar failed: %v", err)
	}
	if got := store.Get("servers.web1.info.distro", nil); got != "debian" {
		t.Errorf("Get() = %v, want debian", got)
	}
}

func TestSetIsWriteThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yml")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := store.Set("servers.web1.host", "203.0.113.10"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	// A fresh store over the same file must observe the mutation.
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := reopened.Get("servers.web1.host", nil); got != "203.0.113.10" {
		t.Errorf("reopened Get() = %v, want 203.0.113.10", got)
	}
}

func TestDeleteIsSafeNoOp(t *testing.T) {
	store := newTestStore(t)

	if err := store.Set("servers.web1.port", 22); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	// Deleting under a server that does not exist must not error and must
	// leave the document unchanged.
	if err := store.Delete("servers.ghost.port"); err != nil {
		t.Fatalf("Delete() on absent path failed: %v", err)
	}
	if got := store.Get("servers.web1.port", nil); got != 22 {
		t.Errorf("unrelated record disturbed: Get() = %v, want 22", got)
	}
	if got := store.Get("servers.ghost", nil); got != nil {
		t.Errorf("Delete() materialized absent path: %v", got)
	}

	if err := store.Delete("servers.web1.port"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if got := store.Get("servers.web1.port", "gone"); got != "gone" {
		t.Errorf("Get() after delete = %v, want gone", got)
	}
}
