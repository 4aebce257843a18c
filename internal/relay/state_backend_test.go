package relay

import (
	"path/filepath"
	"testing"
)

func TestInMemoryStateBackendRoundTrip(t *testing.T) {
	backend := NewInMemoryStateBackend()
	state := newPersistedState()
	state.Tokens["tok1"] = TokenMeta{Token: "tok1", Filename: "a.txt"}

	if err := backend.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := backend.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Tokens["tok1"].Filename != "a.txt" {
		t.Fatalf("loaded state mismatch: %+v", loaded.Tokens)
	}
}

func TestInMemoryStateBackendSnapshotIsolation(t *testing.T) {
	backend := NewInMemoryStateBackend()
	state := newPersistedState()
	state.Tokens["tok1"] = TokenMeta{Token: "tok1", Filename: "a.txt"}
	if err := backend.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's copy after Save must not affect what Load returns.
	state.Tokens["tok1"] = TokenMeta{Token: "tok1", Filename: "mutated.txt"}

	loaded, err := backend.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Tokens["tok1"].Filename != "a.txt" {
		t.Fatalf("snapshot was not isolated: %+v", loaded.Tokens["tok1"])
	}
}

func TestInMemoryStateBackendLoadBeforeSaveReturnsNil(t *testing.T) {
	backend := NewInMemoryStateBackend()
	loaded, err := backend.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil state, got %+v", loaded)
	}
}

func TestJSONFileStateBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	backend := NewJSONFileStateBackend(path)

	state := newPersistedState()
	state.Tokens["tok1"] = TokenMeta{Token: "tok1", Filename: "a.txt", Status: StatusReady}
	if err := backend.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened := NewJSONFileStateBackend(path)
	loaded, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil || loaded.Tokens["tok1"].Status != StatusReady {
		t.Fatalf("unexpected reloaded state: %+v", loaded)
	}
}

func TestJSONFileStateBackendLoadMissingFileReturnsNil(t *testing.T) {
	backend := NewJSONFileStateBackend(filepath.Join(t.TempDir(), "missing.json"))
	loaded, err := backend.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil state for missing file, got %+v", loaded)
	}
}

func TestActorPersistsAcrossRestartsViaFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	actor1, err := NewActor(NewJSONFileStateBackend(path), Config{})
	if err != nil {
		t.Fatalf("NewActor: %v", err)
	}
	reserved, err := actor1.Reserve("1.1.1.1", "", "persisted.txt", 5, "")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := actor1.Commit(reserved.Token); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	actor2, err := NewActor(NewJSONFileStateBackend(path), Config{})
	if err != nil {
		t.Fatalf("NewActor (reopen): %v", err)
	}
	claim, err := actor2.Claim(reserved.Token, "persisted.txt")
	if err != nil {
		t.Fatalf("Claim after restart: %v", err)
	}
	if claim.ObjectKey != reserved.ObjectKey {
		t.Fatalf("object key mismatch after restart: got %s want %s", claim.ObjectKey, reserved.ObjectKey)
	}
}
