package persistence

import (
	"path/filepath"
	"testing"
	"time"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		SavedAt: time.Now(),
		Agents: []AgentSnapshot{
			{Role: "backend", Status: "available", Workspace: "/root/agents/x", Branch: "agent/x"},
		},
	}
}

func TestJSONStoreLoadMissingFileReturnsZeroSnapshot(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "nested", "state.json"))

	snap, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !snap.SavedAt.IsZero() || len(snap.Agents) != 0 {
		t.Errorf("expected zero Snapshot for a missing file, got %+v", snap)
	}
}

func TestJSONStoreSaveAndFlushRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewJSONStore(path)

	want := sampleSnapshot()
	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Agents) != 1 || got.Agents[0].Role != "backend" {
		t.Errorf("round-tripped snapshot = %+v, want agents from %+v", got, want)
	}
}

func TestJSONStoreFlushCancelsPendingDebounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewJSONStore(path)

	if err := store.Save(sampleSnapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// Flush should write immediately without waiting out saveDebounce.
	if err := store.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Agents) != 1 {
		t.Fatalf("expected the flushed snapshot to already be on disk, got %+v", got)
	}
}
