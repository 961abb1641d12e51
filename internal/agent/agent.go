// Package agent implements one role's working lifecycle: accepting a task
// (or refusing it), driving its session through bounded monitored
// iterations, and reporting back a result.
package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/ccswarm/ccswarm/internal/identity"
	"github.com/ccswarm/ccswarm/internal/role"
	"github.com/ccswarm/ccswarm/internal/session"
	"github.com/ccswarm/ccswarm/internal/tasks"
)

// Status is where an Agent sits in its own lifecycle, distinct from its
// session's Status.
type Status string

const (
	StatusInitializing     Status = "initializing"
	StatusAvailable        Status = "available"
	StatusWorking          Status = "working"
	StatusWaitingForReview Status = "waiting_for_review"
	StatusShuttingDown     Status = "shutting_down"
)

// maxIterations bounds execute_task_with_monitoring's refinement loop.
const maxIterations = 3

// Verdict is the outcome of feeding one response through interleaved
// thinking.
type Verdict int

const (
	VerdictContinue Verdict = iota
	VerdictRefine
	VerdictComplete
	VerdictPivot
	VerdictRequestContext
	VerdictAbort
)

// Result is what execute_task reports back to whatever dispatched the
// task (the executor, or a human operator testing an agent directly).
type Result struct {
	Success bool
	Output  string
	Reason  string // set on non-success: delegate/clarify/abort/boundary reason
	Delegate role.Name // set when Reason indicates the task should go elsewhere
}

// HistoryEntry pairs a task with its outcome, appended after every
// execute_task call.
type HistoryEntry struct {
	Task   tasks.Task
	Result Result
	At     time.Time
}

// Agent owns one role's session, boundary, and identity monitor, and
// drives one task at a time through to completion or failure.
type Agent struct {
	Role       role.Name
	Workspace  string
	Branch     string

	session  *session.Session
	boundary *role.Boundary
	monitor  *identity.Monitor

	status  Status
	history []HistoryEntry
	current *tasks.Task // set for the duration of Execute; nil when idle
}

// New synthesizes an Agent's identity: workspace path and branch name are
// derived from root and the session's generated ID.
func New(r role.Name, root, branchPrefix string) *Agent {
	sess := session.New(r, "")
	workspace := fmt.Sprintf("%s/agents/%s", root, sess.ID)
	sess.WorkingDir = workspace
	branch := fmt.Sprintf("%s/%s", branchPrefix, sess.ID)

	return &Agent{
		Role:      r,
		Workspace: workspace,
		Branch:    branch,
		session:   sess,
		boundary:  role.NewBoundary(r),
		monitor:   identity.NewMonitor(r, workspace, role.NewBoundary(r)),
		status:    StatusInitializing,
	}
}

// Session exposes the underlying session, e.g. so a caller can attach a
// Client before Initialize.
func (a *Agent) Session() *session.Session { return a.session }

// Status reports the agent's current lifecycle status.
func (a *Agent) Status() Status { return a.status }

// History returns the agent's completed-task log.
func (a *Agent) History() []HistoryEntry { return append([]HistoryEntry(nil), a.history...) }

// CurrentTask returns the task this agent is presently executing, if any.
// Used by the proactive monitor to inspect what a stuck agent is working on.
func (a *Agent) CurrentTask() (tasks.Task, bool) {
	if a.current == nil {
		return tasks.Task{}, false
	}
	return *a.current, true
}

// IdleFor reports how long the agent's session has gone without activity.
func (a *Agent) IdleFor() time.Duration { return a.session.IdleFor() }

// smokeTasks names one role-appropriate task per role, used by Initialize
// to verify the boundary accepts the agent's own specialization.
var smokeTasks = map[role.Name]string{
	role.Backend:  "implement a REST API endpoint",
	role.Frontend: "build a React UI component",
	role.DevOps:   "set up a docker deployment pipeline",
	role.QA:       "write a cypress test suite",
	role.Master:   "coordinate and review the overall architecture",
}

// Initialize runs identity establishment and a self-check that the
// agent's own boundary would Accept a task squarely in its specialization.
func (a *Agent) Initialize() error {
	if _, err := a.session.EstablishIdentityOnce(); err != nil {
		return fmt.Errorf("establishing identity: %w", err)
	}

	eval := a.boundary.Evaluate(smokeTasks[a.Role], "")
	if eval.Decision != role.Accept {
		return fmt.Errorf("boundary self-check failed: role %s does not accept its own smoke task", a.Role)
	}

	a.status = StatusAvailable
	a.session.SetStatus(session.StatusIdle)
	return nil
}

// Execute runs one task through the boundary check and, on Accept, through
// the monitored iteration loop. It never invokes the session's client on
// Delegate/Clarify.
func (a *Agent) Execute(t tasks.Task) Result {
	a.status = StatusWorking
	a.session.SetStatus(session.StatusWorking)
	a.session.SetCurrentTask(t.ID)
	a.current = &t

	eval := a.boundary.Evaluate(t.Description, t.Details)
	var result Result

	switch eval.Decision {
	case role.Delegate:
		result = Result{Success: false, Reason: eval.Reason, Delegate: eval.TargetRole}
	case role.Clarify:
		result = Result{Success: false, Reason: "task needs clarification: " + strings.Join(eval.Questions, " ")}
	default:
		result = a.executeWithMonitoring(t)
	}

	if result.Success {
		a.status = StatusWaitingForReview
	} else {
		a.status = StatusAvailable
	}
	a.session.SetStatus(session.StatusIdle)
	a.history = append(a.history, HistoryEntry{Task: t, Result: result, At: time.Now()})
	a.current = nil
	return result
}

// executeWithMonitoring runs the bounded refinement loop described by the
// agent's lifecycle: at each iteration, produce or refine a response, feed
// it to the identity monitor, then to interleaved thinking for a verdict.
func (a *Agent) executeWithMonitoring(t tasks.Task) Result {
	var lastResponse string

	for i := 0; i < maxIterations; i++ {
		resp, err := a.session.ExecuteWithContext(t)
		if err != nil {
			return Result{Success: false, Reason: fmt.Sprintf("session error: %v", err)}
		}
		a.session.Append("assistant", resp)
		lastResponse = resp

		classification := a.monitor.Classify(resp)
		switch classification.Status {
		case identity.BoundaryViolation, identity.CriticalFailure:
			return Result{Success: false, Reason: classification.Reason}
		case identity.DriftDetected:
			a.session.Append("system", a.monitor.CorrectionPrompt())
			continue
		}

		verdict := classifyVerdict(resp, i)
		switch verdict {
		case VerdictComplete:
			return Result{Success: true, Output: resp}
		case VerdictAbort:
			return Result{Success: false, Reason: "interleaved thinking aborted the task"}
		case VerdictPivot, VerdictRequestContext, VerdictRefine, VerdictContinue:
			continue
		}
	}

	return Result{Success: true, Output: lastResponse}
}

// classifyVerdict applies the lexical signals interleaved thinking uses to
// decide whether a response is ready to ship: presence of "error",
// "success"/"created", emptiness, or running out of iterations forces
// Complete.
func classifyVerdict(resp string, iteration int) Verdict {
	lower := strings.ToLower(resp)
	switch {
	case strings.TrimSpace(resp) == "":
		return VerdictRequestContext
	case strings.Contains(lower, "error"):
		if iteration >= maxIterations-1 {
			return VerdictComplete
		}
		return VerdictRefine
	case strings.Contains(lower, "success") || strings.Contains(lower, "created"):
		return VerdictComplete
	case iteration >= maxIterations-1:
		return VerdictComplete
	default:
		return VerdictContinue
	}
}

// Shutdown stops the agent's session and records the final status.
func (a *Agent) Shutdown() {
	a.status = StatusShuttingDown
	a.session.Shutdown()
}
