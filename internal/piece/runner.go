package piece

import (
	"fmt"
	"strings"
	"time"

	"github.com/ccswarm/ccswarm/internal/pool"
	"github.com/ccswarm/ccswarm/internal/role"
	"github.com/ccswarm/ccswarm/internal/tasks"
)

// MovementExecutor runs a single Movement and returns the agent's raw
// output for the Judge to evaluate. Implementations decide how the
// Movement's instruction reaches an agent.
type MovementExecutor interface {
	Execute(m Movement, state *State) (string, error)
}

// Runner drives a Piece from its initial Movement to a terminal one (or
// to MaxMovements, whichever comes first), using Judge to pick the next
// Movement after each step.
type Runner struct {
	Executor MovementExecutor
	Judge    *Judge
}

// NewRunner builds a Runner with the default Judge configuration.
func NewRunner(executor MovementExecutor) *Runner {
	return &Runner{Executor: executor, Judge: NewJudge(DefaultJudgeConfig())}
}

// Run executes p to completion, returning the final State. An error is
// returned only if a referenced Movement is missing (which Validate
// should already have ruled out) or the executor itself fails; running
// out of max movements or judge non-matches are recorded in State.Status
// rather than returned as errors.
func (r *Runner) Run(p *Piece) (*State, error) {
	state := p.NewState()
	state.Status = StatusRunning
	state.StartedAt = time.Now()

	for {
		if state.MovementCount >= p.MaxMovements {
			state.Status = StatusAborted
			state.CompletedAt = time.Now()
			return state, nil
		}

		m := p.GetMovement(state.CurrentMovement)
		if m == nil {
			state.Status = StatusFailed
			state.CompletedAt = time.Now()
			return state, fmt.Errorf("piece %q: movement %q not found", p.Name, state.CurrentMovement)
		}

		output, err := r.Executor.Execute(*m, state)
		if err != nil {
			state.Status = StatusFailed
			state.CompletedAt = time.Now()
			return state, fmt.Errorf("piece %q: executing movement %q: %w", p.Name, m.ID, err)
		}
		state.MovementCount++
		state.Variables[m.ID+"_output"] = output

		if len(m.Rules) == 0 {
			state.Status = StatusCompleted
			state.CompletedAt = time.Now()
			return state, nil
		}

		result := r.Judge.Evaluate(output, m.Rules, nil)
		if result.MatchedRuleIndex < 0 {
			state.Status = StatusCompleted
			state.CompletedAt = time.Now()
			return state, nil
		}

		next := m.Rules[result.MatchedRuleIndex].Next
		state.History = append(state.History, Transition{
			From:      m.ID,
			To:        next,
			Condition: string(result.Method),
			At:        time.Now(),
			Output:    output,
		})
		state.CurrentMovement = next
	}
}

// personaRoles maps the built-in persona names used by the default
// pieces to the role that should execute them. Personas without an entry
// fall back to role.Master, matching the supervisor's catch-all lane.
var personaRoles = map[string]role.Name{
	"coder":      role.Backend,
	"reviewer":   role.QA,
	"researcher": role.Backend,
	"writer":     role.Backend,
	"planner":    role.Master,
}

// PoolExecutor adapts an agent pool into a MovementExecutor: each
// Movement becomes a Task routed to the role its persona maps to.
type PoolExecutor struct {
	Pool *pool.Pool
}

// NewPoolExecutor builds a PoolExecutor over p.
func NewPoolExecutor(p *pool.Pool) *PoolExecutor {
	return &PoolExecutor{Pool: p}
}

// Execute runs m's instruction through the pool, appending the tag
// instructions generated from m.Rules so the agent knows how to signal
// its result.
func (e *PoolExecutor) Execute(m Movement, state *State) (string, error) {
	r, ok := personaRoles[m.Persona]
	if !ok {
		r = role.Master
	}

	details := m.Instruction + GenerateTagInstructions(m.Rules)
	if len(state.Variables) > 0 {
		var ctx strings.Builder
		ctx.WriteString("\n\nContext from previous movements:\n")
		for k, v := range state.Variables {
			ctx.WriteString(fmt.Sprintf("- %s: %s\n", k, v))
		}
		details += ctx.String()
	}

	t := tasks.NewTask(m.Instruction, details, tasks.Medium, tasks.Development)
	result, err := e.Pool.ExecuteTaskWithAgent(r, *t)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return result.Reason, nil
	}
	return result.Output, nil
}
