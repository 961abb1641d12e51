// Package orchestrator decomposes a single complex task into a multi-step
// plan, executes each step (fanning out sub-tasks across the agent pool),
// optionally adapts the remaining plan between steps, and synthesizes one
// final result.
package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ccswarm/ccswarm/internal/agent"
	"github.com/ccswarm/ccswarm/internal/role"
	"github.com/ccswarm/ccswarm/internal/tasks"
)

// SubTask is one unit of work within a Step, executed by a single role.
type SubTask struct {
	Role          role.Name
	Task          tasks.Task
	Critical      bool // a failing critical sub-task fails the whole step
	ExpectFailure bool
}

// Step is one phase of a Plan: a named batch of sub-tasks run in parallel,
// followed by a declared set of outputs merged into the running context.
type Step struct {
	Name          string
	ParallelTasks []SubTask
	Outputs       map[string]string // declared keys; values filled after execution
	Optional      bool
}

// Plan is the step-DAG synthesized for one task.
type Plan struct {
	TaskID string
	Steps  []Step
	// context accumulates key/value outputs across completed steps.
	context map[string]string
}

// StepResult records one step's outcome.
type StepResult struct {
	StepName string
	Success  bool
	Errors   []string
	Summary  string
	Duration time.Duration
}

// Synthesize builds a Plan for t following spec.md §4.8's policy, keyed off
// task.Type.
func Synthesize(t tasks.Task) *Plan {
	plan := &Plan{TaskID: t.ID, context: make(map[string]string)}

	switch t.Type {
	case tasks.Development, tasks.Feature:
		plan.Steps = []Step{
			analysisStep(t),
			executionStep(t, "implement"),
			validationStep(t, "tests, lint"),
		}
	case tasks.Testing:
		plan.Steps = []Step{
			analysisStep(t),
			parallelTestExecutionStep(t),
			validationStep(t, "aggregate"),
		}
	case tasks.Infrastructure:
		plan.Steps = []Step{
			analysisStep(t),
			executionStep(t, "deploy"),
			validationStep(t, "verify"),
		}
	case tasks.Bugfix:
		plan.Steps = []Step{
			triageStep(t),
			executionStep(t, "iterative debugging"),
			validationStep(t, "regression check"),
		}
	default:
		plan.Steps = []Step{executionStep(t, "execute")}
	}

	return plan
}

func analysisStep(t tasks.Task) Step {
	return Step{
		Name: "Analysis",
		ParallelTasks: []SubTask{
			{Role: role.DetermineAgent(t.Description), Critical: true, Task: *tasks.NewTask(
				"inspect structure: list dependencies and sources for "+t.Description, t.Details, t.Priority, t.Type)},
		},
		Outputs: map[string]string{"analysis_summary": ""},
	}
}

func triageStep(t tasks.Task) Step {
	return Step{
		Name: "Analysis",
		ParallelTasks: []SubTask{
			{Role: role.DetermineAgent(t.Description), Critical: true, Task: *tasks.NewTask(
				"context-aware triage for "+t.Description, t.Details, t.Priority, t.Type)},
		},
		Outputs: map[string]string{"triage_summary": ""},
	}
}

func executionStep(t tasks.Task, mode string) Step {
	return Step{
		Name: "Execution",
		ParallelTasks: []SubTask{
			{Role: role.DetermineAgent(t.Description), Critical: true, Task: *tasks.NewTask(
				fmt.Sprintf("%s: %s", mode, t.Description), t.Details, t.Priority, t.Type)},
		},
		Outputs: map[string]string{"execution_output": ""},
	}
}

func parallelTestExecutionStep(t tasks.Task) Step {
	return Step{
		Name: "Execution",
		ParallelTasks: []SubTask{
			{Role: role.QA, Critical: true, Task: *tasks.NewTask("run test suite for "+t.Description, t.Details, t.Priority, t.Type)},
			{Role: role.Backend, Critical: false, Task: *tasks.NewTask("run backend integration tests for "+t.Description, t.Details, t.Priority, t.Type)},
		},
		Outputs: map[string]string{"test_results": ""},
	}
}

func validationStep(t tasks.Task, mode string) Step {
	return Step{
		Name: "Validation",
		ParallelTasks: []SubTask{
			{Role: role.QA, Critical: true, Task: *tasks.NewTask(mode+" for "+t.Description, t.Details, t.Priority, t.Type)},
		},
		Outputs: map[string]string{"validation_summary": ""},
	}
}

// AgentRunner executes one sub-task on the given role and returns the
// agent's result. Implemented by pool.Pool's ExecuteTaskWithAgent method
// (kept as an interface here to avoid an import cycle with internal/pool).
type AgentRunner interface {
	ExecuteTaskWithAgent(r role.Name, t tasks.Task) (agent.Result, error)
}

// Planner runs a Plan to completion, adapting it between steps.
type Planner struct {
	Runner   AgentRunner
	Adaptive bool
}

// New builds a Planner backed by runner.
func New(runner AgentRunner, adaptive bool) *Planner {
	return &Planner{Runner: runner, Adaptive: adaptive}
}

// Orchestrate synthesizes a plan for t, executes it step by step (adapting
// between steps when Adaptive is set), and synthesizes a final result.
func (p *Planner) Orchestrate(t tasks.Task) (agent.Result, error) {
	plan := Synthesize(t)

	var results []StepResult
	for i := 0; i < len(plan.Steps); i++ {
		step := plan.Steps[i]
		sr := p.runStep(step, plan)
		results = append(results, sr)

		if !sr.Success && !allRemainingOptional(plan.Steps[i+1:]) {
			return agent.Result{Success: false, Reason: synthesizeSummary(results, false)}, nil
		}

		if p.Adaptive && i < len(plan.Steps)-1 {
			plan.Steps = reviewAndAdapt(results, plan.Steps, i+1)
		}
	}

	allSucceeded := true
	for _, r := range results {
		if !r.Success {
			allSucceeded = false
			break
		}
	}
	summary := synthesizeSummary(results, allSucceeded)
	if !allSucceeded {
		return agent.Result{Success: false, Reason: summary}, nil
	}
	return agent.Result{Success: true, Output: summary}, nil
}

// runStep fans out a step's sub-tasks concurrently, joins them, and merges
// declared outputs into the plan's context.
func (p *Planner) runStep(step Step, plan *Plan) StepResult {
	start := time.Now()

	type subResult struct {
		sub    SubTask
		result agent.Result
		err    error
	}

	results := make([]subResult, len(step.ParallelTasks))
	var wg sync.WaitGroup
	for i, sub := range step.ParallelTasks {
		wg.Add(1)
		go func(i int, sub SubTask) {
			defer wg.Done()
			result, err := p.Runner.ExecuteTaskWithAgent(sub.Role, sub.Task)
			results[i] = subResult{sub: sub, result: result, err: err}
		}(i, sub)
	}
	wg.Wait()

	var errs []string
	ok := 0
	success := true
	for _, r := range results {
		failed := r.err != nil || !r.result.Success
		if !failed {
			ok++
			continue
		}
		if r.sub.ExpectFailure {
			ok++
			continue
		}
		msg := r.result.Reason
		if r.err != nil {
			msg = r.err.Error()
		}
		errs = append(errs, msg)
		if r.sub.Critical {
			success = false
		}
	}

	for k := range step.Outputs {
		plan.context[k] = fmt.Sprintf("set by step %s", step.Name)
	}

	duration := time.Since(start)
	return StepResult{
		StepName: step.Name,
		Success:  success,
		Errors:   errs,
		Summary:  fmt.Sprintf("Step '%s' completed: %d/%d tasks successful. Duration: %dms", step.Name, ok, len(results), duration.Milliseconds()),
		Duration: duration,
	}
}

func allRemainingOptional(steps []Step) bool {
	for _, s := range steps {
		if !s.Optional {
			return false
		}
	}
	return true
}

// reviewAndAdapt may append context_recovery, identity_reinforcement, and a
// matching adaptive_validation step when recent results show signs of
// trouble. It only ever appends; it never reorders or removes completed
// steps.
func reviewAndAdapt(results []StepResult, steps []Step, fromIndex int) []Step {
	if len(results) == 0 {
		return steps
	}
	last := results[len(results)-1]

	needsRecovery := false
	needsIdentity := false
	for _, e := range last.Errors {
		if strings.Contains(strings.ToLower(e), "context") {
			needsRecovery = true
		}
		if strings.Contains(strings.ToLower(e), "header") || strings.Contains(strings.ToLower(e), "identity") {
			needsIdentity = true
		}
	}

	var appended []Step
	if needsRecovery {
		appended = append(appended, Step{Name: "context_recovery", ParallelTasks: []SubTask{
			{Role: role.Master, Critical: false, Task: *tasks.NewTask("recover lost context", "", tasks.Medium, tasks.Coordination)},
		}})
	}
	if needsIdentity {
		appended = append(appended, Step{Name: "identity_reinforcement", ParallelTasks: []SubTask{
			{Role: role.Master, Critical: false, Task: *tasks.NewTask("reinforce agent identity headers", "", tasks.Medium, tasks.Coordination)},
		}})
	}
	if len(appended) > 0 {
		appended = append(appended, Step{Name: "adaptive_validation", ParallelTasks: []SubTask{
			{Role: role.QA, Critical: false, Task: *tasks.NewTask("validate after adaptation", "", tasks.Medium, tasks.Review)},
		}})
	}

	if len(appended) == 0 {
		return steps
	}

	out := append([]Step(nil), steps[:fromIndex]...)
	out = append(out, appended...)
	out = append(out, steps[fromIndex:]...)
	return out
}

// synthesizeSummary concatenates step summaries; overallSuccess mirrors
// whether every step succeeded.
func synthesizeSummary(results []StepResult, overallSuccess bool) string {
	var b strings.Builder
	for _, r := range results {
		b.WriteString(r.Summary)
		b.WriteString("; ")
	}
	if !overallSuccess {
		b.WriteString("plan failed")
	}
	return strings.TrimSuffix(b.String(), "; ")
}
