package tasks

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a task id has no match in the queue.
var ErrNotFound = errors.New("task not found")

// ErrInvalidState is returned when an operation requires a status the task
// is not currently in (e.g. completing a task that isn't in progress, or
// cancelling one that has already reached a terminal status).
var ErrInvalidState = errors.New("task is not in the required state")

const maxHistory = 1000

// Queue is an in-memory, priority-ordered task store. All methods are safe
// for concurrent use.
type Queue struct {
	mu       sync.RWMutex
	pending  map[Priority][]QueuedTask
	byID     map[string]*QueuedTask
	active   map[string]*QueuedTask
	done     []QueuedTask
	maxDone  int
}

// NewQueue builds an empty Queue with the four fixed priority lanes.
func NewQueue() *Queue {
	return &Queue{
		pending: map[Priority][]QueuedTask{
			Critical: {},
			High:     {},
			Medium:   {},
			Low:      {},
		},
		byID:    make(map[string]*QueuedTask),
		active:  make(map[string]*QueuedTask),
		maxDone: maxHistory,
	}
}

// Add enqueues a new task at Pending status.
func (q *Queue) Add(t Task) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	qt := QueuedTask{
		Task:      t,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  make(map[string]string),
	}

	q.pending[t.Priority] = append(q.pending[t.Priority], qt)
	stored := qt
	q.byID[t.ID] = &stored
	return t.ID
}

// Next pops the highest-priority pending task (Critical > High > Medium >
// Low, FIFO within a priority).
func (q *Queue) Next() (QueuedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range []Priority{Critical, High, Medium, Low} {
		lane := q.pending[p]
		if len(lane) == 0 {
			continue
		}
		task := lane[0]
		q.pending[p] = lane[1:]
		return task, true
	}
	return QueuedTask{}, false
}

// Assign marks a pending task as assigned to an agent.
func (q *Queue) Assign(taskID, agentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.byID[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if t.Status != StatusPending {
		return fmt.Errorf("%w: expected pending, got %s", ErrInvalidState, t.Status)
	}
	t.Status = StatusAssigned
	t.AssignedAgent = agentID
	t.UpdatedAt = time.Now()
	return nil
}

// StartExecution moves a task from the lookup table into the active set,
// recording a new execution attempt.
func (q *Queue) StartExecution(taskID, agentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.byID[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	delete(q.byID, taskID)

	now := time.Now()
	t.touch(StatusInProgress)
	t.AssignedAgent = agentID
	t.ExecutionHistory = append(t.ExecutionHistory, ExecutionAttempt{
		AttemptID: uuid.NewString(),
		AgentID:   agentID,
		StartedAt: now,
	})

	q.active[taskID] = t
	return nil
}

// finishTask is the shared completion/failure path: it requires the task
// to currently be active (InProgress), stamps the final status, closes out
// the last execution attempt, and retires the task into the done history.
func (q *Queue) finishTask(taskID string, status Status, apply func(*ExecutionAttempt)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.active[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if t.Status != StatusInProgress {
		return fmt.Errorf("%w: expected in_progress, got %s", ErrInvalidState, t.Status)
	}
	delete(q.active, taskID)

	t.touch(status)
	if n := len(t.ExecutionHistory); n > 0 {
		now := time.Now()
		t.ExecutionHistory[n-1].CompletedAt = &now
		apply(&t.ExecutionHistory[n-1])
	}

	q.done = append(q.done, *t)
	if len(q.done) > q.maxDone {
		q.done = q.done[len(q.done)-q.maxDone:]
	}
	return nil
}

// Complete marks an active task Completed with the given result.
func (q *Queue) Complete(taskID string, result Result) error {
	return q.finishTask(taskID, StatusCompleted, func(a *ExecutionAttempt) {
		a.Result = &result
	})
}

// Fail marks an active task Failed with the given error message.
func (q *Queue) Fail(taskID, errMsg string) error {
	return q.finishTask(taskID, StatusFailed, func(a *ExecutionAttempt) {
		a.Error = errMsg
	})
}

// FailPending marks Failed a task that was dequeued via Next but never
// reached Assign/StartExecution — e.g. no agent was available for its
// role. finishTask can't be reused here: its precondition requires the
// task to already be in the active set, which a task rejected before
// assignment never enters. Without this, such a task would be
// unreachable by Fail (ErrNotFound, since it's not active) and by Cancel
// (it's Pending, not Terminal, so Cancel's byID fallback also reports
// ErrNotFound) — permanently orphaned in q.byID.
func (q *Queue) FailPending(taskID, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.byID[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if t.Status != StatusPending {
		return fmt.Errorf("%w: expected pending, got %s", ErrInvalidState, t.Status)
	}
	delete(q.byID, taskID)

	t.touch(StatusFailed)
	t.ExecutionHistory = append(t.ExecutionHistory, ExecutionAttempt{
		AttemptID: uuid.NewString(),
		Error:     errMsg,
	})

	q.done = append(q.done, *t)
	if len(q.done) > q.maxDone {
		q.done = q.done[len(q.done)-q.maxDone:]
	}
	return nil
}

// Cancel removes a task from active or pending state and retires it as
// Cancelled. Cancelling an already-terminal task is an error (Open Question
// #2 in SPEC_FULL.md).
func (q *Queue) Cancel(taskID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()

	if t, ok := q.active[taskID]; ok {
		delete(q.active, taskID)
		t.touch(StatusCancelled)
		t.CancelReason = reason
		q.done = append(q.done, *t)
		return nil
	}

	for priority, lane := range q.pending {
		for i, t := range lane {
			if t.Task.ID == taskID {
				q.pending[priority] = append(lane[:i], lane[i+1:]...)
				t.touch(StatusCancelled)
				t.CancelReason = reason
				t.UpdatedAt = now
				q.done = append(q.done, t)
				delete(q.byID, taskID)
				return nil
			}
		}
	}

	if t, ok := q.byID[taskID]; ok && t.Status.Terminal() {
		return fmt.Errorf("%w: task %s already %s", ErrInvalidState, taskID, t.Status)
	}
	for _, t := range q.done {
		if t.Task.ID == taskID {
			return fmt.Errorf("%w: task %s already %s", ErrInvalidState, taskID, t.Status)
		}
	}

	return fmt.Errorf("%w: %s", ErrNotFound, taskID)
}

// Get returns a task by id, checking active, pending and done in that order.
func (q *Queue) Get(taskID string) (QueuedTask, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if t, ok := q.active[taskID]; ok {
		return *t, true
	}
	if t, ok := q.byID[taskID]; ok {
		return *t, true
	}
	for _, t := range q.done {
		if t.Task.ID == taskID {
			return t, true
		}
	}
	return QueuedTask{}, false
}

// ListFilter narrows List results.
type ListFilter struct {
	Status Status // zero value means "any"
	Agent  string // empty means "any"
}

// List returns all tasks (active, pending, done) matching filter, sorted by
// priority descending then creation time ascending.
func (q *Queue) List(filter ListFilter) []QueuedTask {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var result []QueuedTask
	for _, t := range q.active {
		result = append(result, *t)
	}
	for _, t := range q.byID {
		result = append(result, *t)
	}
	result = append(result, q.done...)

	if filter.Status != "" {
		filtered := result[:0:0]
		for _, t := range result {
			if t.Status == filter.Status {
				filtered = append(filtered, t)
			}
		}
		result = filtered
	}
	if filter.Agent != "" {
		filtered := result[:0:0]
		for _, t := range result {
			if t.AssignedAgent == filter.Agent {
				filtered = append(filtered, t)
			}
		}
		result = filtered
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Task.Priority != result[j].Task.Priority {
			return result[i].Task.Priority > result[j].Task.Priority
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Stats summarizes queue occupancy.
type Stats struct {
	Pending   int
	Active    int
	Completed int
	Failed    int
	Total     int
}

// Stats computes current counts across all lanes.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var s Stats
	s.Pending = len(q.byID)
	s.Active = len(q.active)
	for _, t := range q.done {
		switch t.Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	s.Total = s.Pending + s.Active + len(q.done)
	return s
}
