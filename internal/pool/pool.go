// Package pool owns the live set of agents, one per role, and routes task
// execution and inter-agent messaging through them.
package pool

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ccswarm/ccswarm/internal/agent"
	"github.com/ccswarm/ccswarm/internal/delegation"
	"github.com/ccswarm/ccswarm/internal/events"
	"github.com/ccswarm/ccswarm/internal/role"
	"github.com/ccswarm/ccswarm/internal/tasks"
)

// ErrAgentExists is returned by Spawn when a role already has an agent.
var ErrAgentExists = errors.New("agent already exists for this role")

// ErrAgentNotFound is returned when a role has no spawned agent.
var ErrAgentNotFound = errors.New("no agent spawned for this role")

// ExecutionRecord is one entry in the pool's execution-history log.
type ExecutionRecord struct {
	Role      role.Name
	Task      tasks.Task
	Result    agent.Result
	StartedAt time.Time
	EndedAt   time.Time
}

// CommandResult is what execute_command_with_agent reports back.
type CommandResult struct {
	Success     bool
	Output      string
	PassedTests int
	TotalTests  int
}

// Pool owns one Agent per role plus the shared delegation engine and event
// bus agents publish lifecycle and message events to.
type Pool struct {
	mu     sync.RWMutex
	agents map[role.Name]*agent.Agent

	root         string
	branchPrefix string
	delegate     *delegation.Engine
	bus          *events.Bus

	history []ExecutionRecord
}

// New builds an empty Pool rooted at root, publishing to bus.
func New(root, branchPrefix string, bus *events.Bus) *Pool {
	return &Pool{
		agents:       make(map[role.Name]*agent.Agent),
		root:         root,
		branchPrefix: branchPrefix,
		delegate:     delegation.New(),
		bus:          bus,
	}
}

// Spawn creates and initializes an agent for r, erroring if one already
// exists.
func (p *Pool) Spawn(r role.Name) (*agent.Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.agents[r]; exists {
		return nil, ErrAgentExists
	}

	a := agent.New(r, p.root, p.branchPrefix)
	p.agents[r] = a

	p.publish(events.EventAgent, string(r), 3, map[string]interface{}{"event": "spawned", "role": string(r)})
	return a, nil
}

// Get returns the shared handle for r.
func (p *Pool) Get(r role.Name) (*agent.Agent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.agents[r]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return a, nil
}

// BestAgentForTask composes the delegation engine's scoring with the
// pool's live agent map, returning the delegation decision and the agent
// if one is spawned for the winning role.
func (p *Pool) BestAgentForTask(t tasks.Task) (delegation.Decision, *agent.Agent, error) {
	decision := p.delegate.Delegate(t)
	a, err := p.Get(decision.TargetRole)
	return decision, a, err
}

// ExecuteTaskWithAgent runs t on the agent for r, recording history and
// publishing a TaskCompleted-equivalent event.
func (p *Pool) ExecuteTaskWithAgent(r role.Name, t tasks.Task) (agent.Result, error) {
	a, err := p.Get(r)
	if err != nil {
		return agent.Result{}, err
	}

	start := time.Now()
	result := a.Execute(t)
	end := time.Now()

	p.mu.Lock()
	p.history = append(p.history, ExecutionRecord{Role: r, Task: t, Result: result, StartedAt: start, EndedAt: end})
	p.mu.Unlock()

	p.publish(events.EventTask, string(r), 2, map[string]interface{}{
		"event":   "task_completed",
		"task_id": t.ID,
		"success": result.Success,
	})

	if !result.Success {
		p.publishFailureSignal(r, t, result)
	}

	return result, nil
}

// severityMarkers names the substrings in a failure Reason that warrant an
// EventAlert rather than the quieter EventReview: identity boundary
// violations and drift are safety-relevant, unlike an ordinary delegation
// or a request for clarification.
var severityMarkers = []string{"boundary", "forbidden", "drift"}

// publishFailureSignal turns a failed Execute result into the review/alert
// event the notifications router listens for, separate from the EventTask
// task_completed bookkeeping event (success false) that ExecuteTaskWithAgent
// publishes on every call.
func (p *Pool) publishFailureSignal(r role.Name, t tasks.Task, result agent.Result) {
	evType := events.EventReview
	lower := strings.ToLower(result.Reason)
	for _, marker := range severityMarkers {
		if strings.Contains(lower, marker) {
			evType = events.EventAlert
			break
		}
	}

	p.publish(evType, "all", 1, map[string]interface{}{
		"event":   "task_failed",
		"task_id": t.ID,
		"role":    string(r),
		"reason":  result.Reason,
		"delegate": string(result.Delegate),
	})
}

// SendMessage publishes an InterAgentMessage envelope from one role to
// another.
func (p *Pool) SendMessage(from, to role.Name, body string) {
	p.publish(events.EventAgent, string(to), 3, map[string]interface{}{
		"event": "inter_agent_message",
		"from":  string(from),
		"to":    string(to),
		"body":  body,
	})
}

// BroadcastMessage publishes an InterAgentMessage envelope to every role.
func (p *Pool) BroadcastMessage(from role.Name, body string) {
	p.publish(events.EventAgent, "all", 3, map[string]interface{}{
		"event": "inter_agent_broadcast",
		"from":  string(from),
		"body":  body,
	})
}

// testCountPattern matches the common "N passed" / "N failed" shapes a
// test runner's summary line uses.
var testCountPattern = regexp.MustCompile(`(?i)(\d+)\s*(passed|failed|passing|failing)`)

// ExecuteCommandWithAgent routes a shell-level command through r's session,
// best-effort parsing pass/fail counts when the command resembles a test
// runner.
func (p *Pool) ExecuteCommandWithAgent(r role.Name, command string) (CommandResult, error) {
	a, err := p.Get(r)
	if err != nil {
		return CommandResult{}, err
	}

	output, sendErr := a.Session().SendMessage(command)
	result := CommandResult{Success: sendErr == nil, Output: output}
	if sendErr != nil {
		return result, sendErr
	}

	if looksLikeTestRunner(command) {
		result.PassedTests, result.TotalTests = parseTestCounts(output)
	}

	return result, nil
}

func looksLikeTestRunner(command string) bool {
	lower := strings.ToLower(command)
	for _, marker := range []string{"test", "cargo test", "npm test", "pytest", "go test"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func parseTestCounts(output string) (passed, total int) {
	matches := testCountPattern.FindAllStringSubmatch(output, -1)
	var failed int
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		switch strings.ToLower(m[2]) {
		case "passed", "passing":
			passed += n
		case "failed", "failing":
			failed += n
		}
	}
	return passed, passed + failed
}

// History returns a copy of the pool's execution-history log.
func (p *Pool) History() []ExecutionRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ExecutionRecord(nil), p.history...)
}

// Agents returns a snapshot of every currently spawned agent, keyed by role.
// Used by the proactive monitor to sweep live agents without hardcoding the
// role list.
func (p *Pool) Agents() map[role.Name]*agent.Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[role.Name]*agent.Agent, len(p.agents))
	for r, a := range p.agents {
		out[r] = a
	}
	return out
}

func (p *Pool) publish(t events.EventType, target string, priority int, payload map[string]interface{}) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.NewEvent(t, "pool", target, priority, payload))
}
