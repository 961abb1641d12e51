// Package tasks implements the task data model and priority queue that
// feeds agents work.
package tasks

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority orders tasks within the queue. Critical is served before High,
// before Medium, before Low.
type Priority int

const (
	Low Priority = iota
	Medium
	High
	Critical
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Status is a task's position in its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether status can no longer transition.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Type classifies the kind of work a task represents, used by the
// delegation engine's priors and the orchestration planner's plan synthesis
// policy.
type Type string

const (
	Development  Type = "development"
	Testing      Type = "testing"
	Documentation Type = "documentation"
	Infrastructure Type = "infrastructure"
	Coordination Type = "coordination"
	Review       Type = "review"
	Bugfix       Type = "bugfix"
	Feature      Type = "feature"
	Remediation  Type = "remediation"
	Assistance   Type = "assistance"
	Research     Type = "research"
)

// Task is the unit of work submitted to the swarm.
type Task struct {
	ID          string
	Description string
	Details     string
	Priority    Priority
	Type        Type
	CreatedAt   time.Time
}

// NewTask builds a Task with a fresh ID.
func NewTask(description, details string, priority Priority, taskType Type) *Task {
	return &Task{
		ID:          fmt.Sprintf("task-%s", uuid.NewString()),
		Description: description,
		Details:     details,
		Priority:    priority,
		Type:        taskType,
		CreatedAt:   time.Now(),
	}
}

// Result records the outcome of an executed task.
type Result struct {
	Success bool
	Output  string
	Error   string
}

// ExecutionAttempt records one agent's attempt at executing a task.
type ExecutionAttempt struct {
	AttemptID   string
	AgentID     string
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *Result
	Error       string
}

// QueuedTask is a Task plus its queue bookkeeping.
type QueuedTask struct {
	Task             Task
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
	AssignedAgent    string
	FailedAgent      string
	CancelReason     string
	ExecutionHistory []ExecutionAttempt
	Metadata         map[string]string
}

func (q *QueuedTask) touch(status Status) {
	q.Status = status
	q.UpdatedAt = time.Now()
}
