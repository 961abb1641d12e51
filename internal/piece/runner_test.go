package piece

import (
	"testing"

	"github.com/ccswarm/ccswarm/internal/events"
	"github.com/ccswarm/ccswarm/internal/pool"
	"github.com/ccswarm/ccswarm/internal/role"
)

type scriptedExecutor struct {
	outputs map[string]string
	calls   []string
}

func (e *scriptedExecutor) Execute(m Movement, state *State) (string, error) {
	e.calls = append(e.calls, m.ID)
	return e.outputs[m.ID], nil
}

func twoStepPiece(t *testing.T) *Piece {
	t.Helper()
	yaml := `
name: exec-test
initial_movement: step1
movements:
  - id: step1
    instruction: "Step 1"
    rules:
      - condition: success
        next: step2
  - id: step2
    instruction: "Step 2 (terminal)"
`
	p, err := FromYAML([]byte(yaml))
	if err != nil {
		t.Fatalf("FromYAML failed: %v", err)
	}
	return p
}

func TestRunnerRunsToCompletion(t *testing.T) {
	p := twoStepPiece(t)
	exec := &scriptedExecutor{outputs: map[string]string{"step1": "all good, success", "step2": "done"}}
	runner := NewRunner(exec)

	state, err := runner.Run(p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state.Status != StatusCompleted {
		t.Errorf("expected completed status, got %s", state.Status)
	}
	if state.MovementCount != 2 {
		t.Errorf("expected 2 movements executed, got %d", state.MovementCount)
	}
	if len(exec.calls) != 2 || exec.calls[0] != "step1" || exec.calls[1] != "step2" {
		t.Errorf("expected step1 then step2, got %v", exec.calls)
	}
}

func TestRunnerAbortsAtMaxMovements(t *testing.T) {
	yaml := `
name: loop-test
max_movements: 2
initial_movement: a
movements:
  - id: a
    instruction: "A"
    rules:
      - condition: success
        next: b
  - id: b
    instruction: "B"
    rules:
      - condition: success
        next: a
`
	p, err := FromYAML([]byte(yaml))
	if err != nil {
		t.Fatalf("FromYAML failed: %v", err)
	}
	exec := &scriptedExecutor{outputs: map[string]string{"a": "success", "b": "success"}}
	runner := NewRunner(exec)

	state, err := runner.Run(p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state.Status != StatusAborted {
		t.Errorf("expected aborted status after hitting max_movements, got %s", state.Status)
	}
}

func TestRunnerStopsWhenNoRuleMatches(t *testing.T) {
	yaml := `
name: no-match-test
initial_movement: a
movements:
  - id: a
    instruction: "A"
    rules:
      - condition: needs_clarification
        next: b
  - id: b
    instruction: "B"
`
	p, err := FromYAML([]byte(yaml))
	if err != nil {
		t.Fatalf("FromYAML failed: %v", err)
	}
	// "plain output" matches the built-in "success" vocabulary's
	// no-error-keywords fallback, but the only rule here is
	// needs_clarification, which it won't match.
	exec := &scriptedExecutor{outputs: map[string]string{"a": "plain output"}}
	runner := NewRunner(exec)

	state, err := runner.Run(p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state.Status != StatusCompleted {
		t.Errorf("expected completed status when no rule matches, got %s", state.Status)
	}
	if state.MovementCount != 1 {
		t.Errorf("expected exactly 1 movement executed, got %d", state.MovementCount)
	}
}

func TestPoolExecutorRoutesByPersona(t *testing.T) {
	p := pool.New("/root", "agent", events.NewBus(nil))
	a, err := p.Spawn(role.Backend)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	a.Session().SetClient(&scriptedClient{response: "AGENT: backend\nWORKSPACE: " + a.Workspace + "\nSCOPE: ready\n\nsuccess: implemented"})
	if err := a.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	executor := NewPoolExecutor(p)
	m := Movement{ID: "implement", Persona: "coder", Instruction: "Implement the plan"}
	state := (&Piece{}).NewState()

	output, err := executor.Execute(m, state)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if output == "" {
		t.Error("expected non-empty output from the pool executor")
	}
}

type scriptedClient struct {
	response string
}

func (c *scriptedClient) Send(prompt string) (string, error) {
	return c.response, nil
}
