// Package executor runs the background loop that drains the task queue
// into the agent pool, handling delegation, the single re-delegation
// retry, complexity routing, and running statistics.
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ccswarm/ccswarm/internal/agent"
	"github.com/ccswarm/ccswarm/internal/autoaccept"
	"github.com/ccswarm/ccswarm/internal/events"
	"github.com/ccswarm/ccswarm/internal/pool"
	"github.com/ccswarm/ccswarm/internal/tasks"
)

// tick is how often the executor loop wakes to check for work.
const tick = 1 * time.Second

// defaultMaxConcurrent bounds how many tasks run at once.
const defaultMaxConcurrent = 5

// maxHistory is the execution-history retention cap; once exceeded the
// oldest 100 entries are evicted in one batch.
const maxHistory = 1000
const evictBatch = 100

// complexityKeywords drives the "is this task complex enough to plan
// rather than hand to one agent" heuristic.
var complexityKeywords = []string{
	"implement", "create", "build", "design", "develop", "integrate",
	"migrate", "refactor", "comprehensive", "multiple", "several",
	"complete", "full", "and", "then", "also", "plus", "step",
}

// Planner runs a complex task through a multi-step plan. Implemented by
// internal/orchestrator; kept as an interface here so the executor doesn't
// import it directly and create a cycle.
type Planner interface {
	Orchestrate(t tasks.Task) (agent.Result, error)
}

// HistoryEntry is one completed execution's bookkeeping record.
type HistoryEntry struct {
	TaskID      string
	Success     bool
	Orchestrated bool
	StartedAt   time.Time
	EndedAt     time.Time
}

// Stats tracks running totals across every execution the loop has seen.
type Stats struct {
	Total             int
	Succeeded         int
	Failed            int
	CumulativeDuration time.Duration
	Orchestrated      int
}

// AverageDuration returns the running average execution duration.
func (s Stats) AverageDuration() time.Duration {
	if s.Total == 0 {
		return 0
	}
	return s.CumulativeDuration / time.Duration(s.Total)
}

// OrchestratedPercent returns the share of executions that went through
// the orchestration planner rather than a single agent.
func (s Stats) OrchestratedPercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Orchestrated) / float64(s.Total) * 100
}

// Executor drains tasks.Queue into pool.Pool at a fixed tick, applying the
// complexity heuristic to decide between direct agent execution and
// orchestrated planning.
type Executor struct {
	queue    *tasks.Queue
	pool     *pool.Pool
	planner  Planner
	bus      *events.Bus

	// safety gates a successfully completed direct execution through the
	// auto-accept safety engine before it's considered hands-off; nil
	// means every completion stands as-is (no safety engine configured).
	safety *autoaccept.Engine

	maxConcurrent int

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	history []HistoryEntry
	stats   Stats

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an Executor. planner may be nil; complex tasks then fall back
// to direct agent execution.
func New(q *tasks.Queue, p *pool.Pool, planner Planner, bus *events.Bus) *Executor {
	return &Executor{
		queue:         q,
		pool:          p,
		planner:       planner,
		bus:           bus,
		maxConcurrent: defaultMaxConcurrent,
		active:        make(map[string]context.CancelFunc),
	}
}

// SetSafetyEngine installs the auto-accept engine used to gate completed
// direct executions. Passing nil (the default) disables the gate.
func (e *Executor) SetSafetyEngine(eng *autoaccept.Engine) {
	e.safety = eng
}

// AddTask enqueues t onto the underlying queue.
func (e *Executor) AddTask(t tasks.Task) string {
	return e.queue.Add(t)
}

// Start begins the background tick loop. Call Stop to end it.
func (e *Executor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.runOnce(ctx)
			}
		}
	}()
}

// Tick runs one loop iteration immediately, instead of waiting for the next
// tick. Exposed for callers (the HTTP API's force-dispatch endpoint, tests)
// that want to drain the queue synchronously with the running loop.
func (e *Executor) Tick(ctx context.Context) {
	e.runOnce(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (e *Executor) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

// runOnce performs one loop body iteration: check capacity, dequeue,
// delegate, and spawn the execution. A finished execution removes its own
// handle from active.
func (e *Executor) runOnce(ctx context.Context) {
	e.mu.Lock()
	activeCount := len(e.active)
	e.mu.Unlock()

	if activeCount >= e.maxConcurrent {
		return
	}

	qt, ok := e.queue.Next()
	if !ok {
		return
	}
	t := qt.Task

	decision, a, err := e.pool.BestAgentForTask(t)
	if err != nil {
		// t was only Next()-dequeued, never Assign/StartExecution-ed, so it's
		// not in the active set yet: Fail (which requires active) would
		// return ErrNotFound here and leave the task orphaned in q.byID.
		// FailPending is the variant that operates on a still-Pending task.
		if err := e.queue.FailPending(t.ID, fmt.Sprintf("no agent available for role %s: %v", decision.TargetRole, err)); err != nil {
			return
		}
		return
	}

	if err := e.queue.Assign(t.ID, a.Role.AgentName()); err != nil {
		return
	}
	if err := e.queue.StartExecution(t.ID, a.Role.AgentName()); err != nil {
		return
	}

	stepCtx, cancelStep := context.WithCancel(ctx)
	e.mu.Lock()
	e.active[t.ID] = cancelStep
	e.mu.Unlock()

	go e.spawn(stepCtx, t)
}

// spawn runs one task to completion (or failure), updating the queue,
// stats, and history.
func (e *Executor) spawn(ctx context.Context, t tasks.Task) {
	start := time.Now()
	complex := isComplex(t)

	var result agent.Result
	var err error
	if complex && e.planner != nil {
		result, err = e.planner.Orchestrate(t)
	} else {
		result, err = e.executeDirect(t)
	}
	end := time.Now()

	e.mu.Lock()
	delete(e.active, t.ID)
	e.mu.Unlock()

	if err != nil || !result.Success {
		reason := result.Reason
		if err != nil {
			reason = err.Error()
		}
		e.queue.Fail(t.ID, reason)
	} else {
		e.queue.Complete(t.ID, tasks.Result{Success: true, Output: result.Output})
	}

	e.recordStats(t.ID, result.Success && err == nil, complex, start, end)

	if err == nil && result.Success && e.safety != nil {
		e.checkAutoAccept(t)
	}

	if e.bus != nil {
		status := "completed"
		if err != nil || !result.Success {
			status = "failed"
		}
		e.bus.Publish(events.NewEvent(events.EventTask, "executor", "all", 2, map[string]interface{}{
			"event":   status,
			"task_id": t.ID,
		}))
	}
}

// executeDirect runs t on the delegated agent. If that agent's own
// boundary rejects the task (Execute returns a Delegate result), it is
// re-delegated exactly once to the suggested role before giving up with
// both rejection reasons combined (Open Question #1).
func (e *Executor) executeDirect(t tasks.Task) (agent.Result, error) {
	_, a, err := e.pool.BestAgentForTask(t)
	if err != nil {
		return agent.Result{}, err
	}

	result := a.Execute(t)
	if result.Success || result.Delegate == "" {
		return result, nil
	}

	retryAgent, err := e.pool.Get(result.Delegate)
	if err != nil {
		return result, nil
	}

	retryResult := retryAgent.Execute(t)
	if !retryResult.Success {
		retryResult.Reason = fmt.Sprintf("%s; retry to %s: %s", result.Reason, result.Delegate, retryResult.Reason)
	}
	return retryResult, nil
}

// checkAutoAccept runs a completed task's changes through the safety
// engine, recording the operation and publishing an EventReview if the
// engine declines to accept it hands-off. The task itself still stands as
// completed; this only surfaces whether a human should double-check it.
func (e *Executor) checkAutoAccept(t tasks.Task) {
	op := e.safety.AnalyzeOperation(commandsFromTask(t), t.ID)
	decision := e.safety.ShouldAutoAccept(op)
	e.safety.RecordOperation(t.ID, op)

	if decision.Accepted || e.bus == nil {
		return
	}
	e.bus.Publish(events.NewEvent(events.EventReview, "executor", "all", events.PriorityNormal, map[string]interface{}{
		"event":   "auto_accept_declined",
		"task_id": t.ID,
		"reason":  decision.Reason,
	}))
}

// commandsFromTask recovers the shell-command-like lines a task's Details
// describe, falling back to its Description when Details carries none.
func commandsFromTask(t tasks.Task) []string {
	var cmds []string
	for _, line := range strings.Split(t.Details, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			cmds = append(cmds, line)
		}
	}
	if len(cmds) == 0 {
		cmds = []string{t.Description}
	}
	return cmds
}

func (e *Executor) recordStats(taskID string, success, complex bool, start, end time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.Total++
	if success {
		e.stats.Succeeded++
	} else {
		e.stats.Failed++
	}
	e.stats.CumulativeDuration += end.Sub(start)
	if complex {
		e.stats.Orchestrated++
	}

	e.history = append(e.history, HistoryEntry{
		TaskID: taskID, Success: success, Orchestrated: complex, StartedAt: start, EndedAt: end,
	})
	if len(e.history) > maxHistory {
		e.history = e.history[evictBatch:]
	}
}

// Stats returns a snapshot of the running totals.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// History returns a copy of the execution-history log.
func (e *Executor) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]HistoryEntry(nil), e.history...)
}

// CancelTask cancels a task in the queue and aborts any in-flight handle.
func (e *Executor) CancelTask(taskID, reason string) error {
	e.mu.Lock()
	cancel, ok := e.active[taskID]
	if ok {
		delete(e.active, taskID)
	}
	e.mu.Unlock()

	if ok {
		cancel()
	}
	return e.queue.Cancel(taskID, reason)
}

// isComplex applies the fixed keyword-count-or-priority heuristic.
func isComplex(t tasks.Task) bool {
	if t.Priority == tasks.High || t.Priority == tasks.Critical {
		return true
	}
	text := strings.ToLower(t.Description + " " + t.Details)
	count := 0
	for _, kw := range complexityKeywords {
		count += strings.Count(text, kw)
	}
	return count >= 3
}
