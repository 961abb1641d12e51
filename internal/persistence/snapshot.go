// Package persistence periodically captures the task queue and agent
// roster to disk, so an operator restarting the daemon after a crash can
// see what was in flight rather than losing it silently. It does not
// attempt to resume in-progress work automatically: an agent mid-iteration
// when the process died left no safe resumption point, so a snapshot is
// read-only history, not a replay log.
package persistence

import (
	"time"

	"github.com/ccswarm/ccswarm/internal/agent"
	"github.com/ccswarm/ccswarm/internal/pool"
	"github.com/ccswarm/ccswarm/internal/role"
	"github.com/ccswarm/ccswarm/internal/tasks"
)

// AgentSnapshot is one agent's state at the moment a Snapshot was taken.
type AgentSnapshot struct {
	Role        role.Name
	Status      agent.Status
	Workspace   string
	Branch      string
	IdleForSecs float64
	CurrentTask *tasks.Task
	HistorySize int
}

// Snapshot is the full recoverable state of one daemon at a point in time.
type Snapshot struct {
	SavedAt time.Time
	Tasks   []tasks.QueuedTask
	Agents  []AgentSnapshot
}

// BuildSnapshot reads the current state of q and p without mutating
// either. Safe to call concurrently with normal queue/pool operation,
// since both expose their own locking.
func BuildSnapshot(q *tasks.Queue, p *pool.Pool) Snapshot {
	snap := Snapshot{
		SavedAt: time.Now(),
		Tasks:   q.List(tasks.ListFilter{}),
	}

	for r, a := range p.Agents() {
		entry := AgentSnapshot{
			Role:        r,
			Status:      a.Status(),
			Workspace:   a.Workspace,
			Branch:      a.Branch,
			IdleForSecs: a.IdleFor().Seconds(),
			HistorySize: len(a.History()),
		}
		if t, ok := a.CurrentTask(); ok {
			entry.CurrentTask = &t
		}
		snap.Agents = append(snap.Agents, entry)
	}
	return snap
}
