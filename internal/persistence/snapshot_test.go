package persistence

import (
	"testing"

	"github.com/ccswarm/ccswarm/internal/events"
	"github.com/ccswarm/ccswarm/internal/pool"
	"github.com/ccswarm/ccswarm/internal/role"
	"github.com/ccswarm/ccswarm/internal/tasks"
)

func TestBuildSnapshotIncludesQueueAndRoster(t *testing.T) {
	q := tasks.NewQueue()
	task := tasks.NewTask("write a handler", "", tasks.Medium, tasks.Development)
	q.Add(*task)

	p := pool.New(t.TempDir(), "agent", events.NewBus(nil))
	if _, err := p.Spawn(role.Backend); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	snap := BuildSnapshot(q, p)

	if snap.SavedAt.IsZero() {
		t.Error("expected SavedAt to be set")
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].Task.ID != task.ID {
		t.Errorf("expected the queued task in the snapshot, got %+v", snap.Tasks)
	}
	if len(snap.Agents) != 1 || snap.Agents[0].Role != role.Backend {
		t.Errorf("expected the spawned backend agent in the snapshot, got %+v", snap.Agents)
	}
}

func TestRecorderCapturesOnEachTick(t *testing.T) {
	q := tasks.NewQueue()
	p := pool.New(t.TempDir(), "agent", events.NewBus(nil))
	store := NewJSONStore(t.TempDir() + "/state.json")

	r := NewRecorder(store, q, p, 0)
	r.captureOnce()
	if err := store.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	snap, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap.SavedAt.IsZero() {
		t.Error("expected captureOnce to have saved a snapshot")
	}
}
