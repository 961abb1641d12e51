// Package proactive runs the background analysis that watches live agents
// and the task dependency graph, turning observations into suggested
// decisions — some of which are confident enough to execute automatically.
package proactive

import (
	"fmt"
	"strings"
	"time"

	"github.com/ccswarm/ccswarm/internal/agent"
	"github.com/ccswarm/ccswarm/internal/pool"
	"github.com/ccswarm/ccswarm/internal/role"
	"github.com/ccswarm/ccswarm/internal/tasks"
)

// stuckThreshold is how long a Working agent can go without session
// activity before it is flagged for intervention.
const stuckThreshold = 15 * time.Minute

// searchStuckThreshold is the (shorter) idle threshold used for the
// search-need pass — an agent doesn't need to be fully stuck to benefit
// from a search suggestion.
const searchStuckThreshold = 10 * time.Minute

// autoExecuteConfidence is the confidence a RiskLow decision must exceed
// for the monitor to execute it on its own rather than merely surface it.
const autoExecuteConfidence = 0.8

// DecisionType classifies what the monitor is suggesting.
type DecisionType string

const (
	GenerateTask        DecisionType = "generate_task"
	ReassignTask        DecisionType = "reassign_task"
	ScaleTeam           DecisionType = "scale_team"
	ChangeStrategy      DecisionType = "change_strategy"
	RequestIntervention DecisionType = "request_intervention"
	RequestSearch       DecisionType = "request_search"
)

// Risk is how safe it is to act on a Decision without a human in the loop.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// SuggestedAction is one concrete step a Decision recommends.
type SuggestedAction struct {
	ActionType     string
	Description    string
	Parameters     map[string]string
	ExpectedImpact string
}

// Decision is one observation the monitor turns into a recommendation.
type Decision struct {
	Type             DecisionType
	Reasoning        string
	Confidence       float64
	SuggestedActions []SuggestedAction
	Risk             Risk
}

// shouldAutoExecute reports whether d is confident and safe enough to act
// on without waiting for a human.
func (d Decision) shouldAutoExecute() bool {
	return d.Confidence > autoExecuteConfidence && d.Risk == RiskLow
}

// TaskTemplate is a parameterized task a pattern or completion match can
// stamp out.
type TaskTemplate struct {
	DescriptionTemplate string
	Type                tasks.Type
	Priority            tasks.Priority
	RequiredRole        role.Name
}

// Instantiate builds a concrete task from the template.
func (tt TaskTemplate) Instantiate() tasks.Task {
	return *tasks.NewTask(tt.DescriptionTemplate, "", tt.Priority, tt.Type)
}

// TaskPattern fires its generated tasks whenever a trigger phrase appears
// in a just-completed task's description.
type TaskPattern struct {
	ID         string
	Triggers   []string
	Generates  []TaskTemplate
	Confidence float64
}

// CompletionPattern fires its follow-up tasks whenever a task of
// CompletedType completes successfully, weighted by Probability.
type CompletionPattern struct {
	CompletedType tasks.Type
	FollowUp      []TaskTemplate
	Probability   float64
}

// NodeStatus is where one task sits in the dependency graph.
type NodeStatus string

const (
	NodeNotStarted NodeStatus = "not_started"
	NodeInProgress NodeStatus = "in_progress"
	NodeCompleted  NodeStatus = "completed"
	NodeFailed     NodeStatus = "failed"
	NodeBlocked    NodeStatus = "blocked"
)

// TaskNode is one task tracked in the dependency graph.
type TaskNode struct {
	TaskID string
	Status NodeStatus
}

// DependencyGraph tracks prerequisite relationships between tasks so the
// monitor can notice when a blocked task's prerequisites have all
// completed.
type DependencyGraph struct {
	Nodes         map[string]*TaskNode
	Prerequisites map[string][]string // task_id -> prerequisite task_ids
}

// NewDependencyGraph builds an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		Nodes:         make(map[string]*TaskNode),
		Prerequisites: make(map[string][]string),
	}
}

// AddTask registers a task in the graph, blocked on the given prerequisite
// task ids.
func (g *DependencyGraph) AddTask(taskID string, prerequisites ...string) {
	status := NodeNotStarted
	if len(prerequisites) > 0 {
		status = NodeBlocked
	}
	g.Nodes[taskID] = &TaskNode{TaskID: taskID, Status: status}
	if len(prerequisites) > 0 {
		g.Prerequisites[taskID] = prerequisites
	}
}

// MarkCompleted records taskID as completed.
func (g *DependencyGraph) MarkCompleted(taskID string) {
	if n, ok := g.Nodes[taskID]; ok {
		n.Status = NodeCompleted
	}
}

// Objective is a goal-tracked milestone with an optional deadline.
type Objective struct {
	ID       string
	Title    string
	Deadline *time.Time
	Progress float64 // 0.0 to 1.0
}

// Monitor owns the dependency graph, goal tracker, and pattern library used
// to turn live agent/task state into proactive decisions.
type Monitor struct {
	graph              *DependencyGraph
	objectives         []Objective
	patternLibrary     []TaskPattern
	completionPatterns []CompletionPattern
}

// New builds a Monitor with the built-in pattern library ported from the
// reference implementation's frontend-component / API-endpoint patterns and
// Development→Testing / Testing→Documentation completion patterns.
func New() *Monitor {
	return &Monitor{
		graph:              NewDependencyGraph(),
		patternLibrary:     defaultPatternLibrary(),
		completionPatterns: defaultCompletionPatterns(),
	}
}

// Graph exposes the dependency graph so callers can register tasks and
// prerequisites as they're created.
func (m *Monitor) Graph() *DependencyGraph { return m.graph }

// SetObjectives replaces the tracked objectives.
func (m *Monitor) SetObjectives(objectives []Objective) { m.objectives = objectives }

func defaultPatternLibrary() []TaskPattern {
	return []TaskPattern{
		{
			ID:       "frontend_component",
			Triggers: []string{"component created"},
			Generates: []TaskTemplate{
				{DescriptionTemplate: "Write unit tests for the new component", Type: tasks.Testing, Priority: tasks.High, RequiredRole: role.QA},
				{DescriptionTemplate: "Add the new component to the component library docs", Type: tasks.Documentation, Priority: tasks.Medium, RequiredRole: role.Frontend},
			},
			Confidence: 0.95,
		},
		{
			ID:       "api_endpoint",
			Triggers: []string{"api endpoint created"},
			Generates: []TaskTemplate{
				{DescriptionTemplate: "Write integration tests for the new API endpoint", Type: tasks.Testing, Priority: tasks.High, RequiredRole: role.QA},
				{DescriptionTemplate: "Update API documentation for the new endpoint", Type: tasks.Documentation, Priority: tasks.Medium, RequiredRole: role.Backend},
				{DescriptionTemplate: "Add rate limiting to the new endpoint", Type: tasks.Development, Priority: tasks.Medium, RequiredRole: role.Backend},
			},
			Confidence: 0.9,
		},
	}
}

func defaultCompletionPatterns() []CompletionPattern {
	return []CompletionPattern{
		{
			CompletedType: tasks.Development,
			FollowUp: []TaskTemplate{
				{DescriptionTemplate: "Test the implemented functionality", Type: tasks.Testing, Priority: tasks.High, RequiredRole: role.QA},
			},
			Probability: 0.85,
		},
		{
			CompletedType: tasks.Testing,
			FollowUp: []TaskTemplate{
				{DescriptionTemplate: "Update documentation with test results", Type: tasks.Documentation, Priority: tasks.Low, RequiredRole: role.QA},
			},
			Probability: 0.6,
		},
	}
}

// searchIndicators pairs a literal phrase found in a task description with
// the reasoning prefix used when it fires.
var searchIndicators = []struct {
	phrase string
	prefix string
}{
	{"research", "Researching information about"},
	{"find information", "Finding information about"},
	{"look up", "Looking up"},
	{"best practices", "Discovering best practices for"},
	{"documentation", "Finding documentation for"},
	{"examples", "Finding examples of"},
	{"how to", "Understanding how to"},
	{"comparison", "Comparing technologies"},
	{"alternatives", "Finding alternatives to"},
	{"error", "Investigating error"},
	{"unknown", "Clarifying unknown concept"},
	{"investigate", "Investigating"},
}

// errorIndicators are substrings in a failure reason that suggest a search
// would help resolve it.
var errorIndicators = []string{"not found", "unknown", "missing documentation", "unclear", "deprecat", "no examples"}

// AnalyzeAndDecide runs all five passes against the pool's live agents and
// returns every decision surfaced, having already auto-executed (via
// execute) any decision confident and safe enough to qualify.
func (m *Monitor) AnalyzeAndDecide(p *pool.Pool, execute func(Decision)) []Decision {
	var decisions []Decision

	decisions = append(decisions, m.analyzeAgentProgress(p)...)
	decisions = append(decisions, m.resolveDependencies()...)
	decisions = append(decisions, m.predictNextTasks(p)...)
	decisions = append(decisions, m.monitorGoals()...)
	decisions = append(decisions, m.analyzeSearchNeeds(p)...)

	if execute != nil {
		for _, d := range decisions {
			if d.shouldAutoExecute() {
				execute(d)
			}
		}
	}

	return decisions
}

func (m *Monitor) analyzeAgentProgress(p *pool.Pool) []Decision {
	var decisions []Decision
	for r, a := range p.Agents() {
		if a.Status() != agent.StatusWorking {
			continue
		}
		idle := a.IdleFor()
		if idle <= stuckThreshold {
			continue
		}
		decisions = append(decisions, Decision{
			Type: RequestIntervention,
			Reasoning: fmt.Sprintf(
				"Agent %s has been working without progress for %d minutes", r, int(idle.Minutes())),
			Confidence: 0.9,
			SuggestedActions: []SuggestedAction{{
				ActionType:     "check_agent_status",
				Description:    "Check if agent needs assistance",
				Parameters:     map[string]string{"role": string(r)},
				ExpectedImpact: "Unblock agent or reassign task",
			}},
			Risk: RiskLow,
		})
	}
	return decisions
}

func (m *Monitor) resolveDependencies() []Decision {
	var decisions []Decision
	for taskID, node := range m.graph.Nodes {
		if node.Status != NodeBlocked {
			continue
		}
		prereqs := m.graph.Prerequisites[taskID]
		allDone := true
		for _, prereqID := range prereqs {
			prereq, ok := m.graph.Nodes[prereqID]
			if !ok || prereq.Status != NodeCompleted {
				allDone = false
				break
			}
		}
		if !allDone {
			continue
		}
		decisions = append(decisions, Decision{
			Type:       GenerateTask,
			Reasoning:  fmt.Sprintf("Task %s can be unblocked - all dependencies completed", taskID),
			Confidence: 0.95,
			SuggestedActions: []SuggestedAction{{
				ActionType:     "unblock_task",
				Description:    "Move task to ready queue",
				Parameters:     map[string]string{"task_id": taskID},
				ExpectedImpact: "Enable task execution",
			}},
			Risk: RiskLow,
		})
	}
	return decisions
}

func (m *Monitor) predictNextTasks(p *pool.Pool) []Decision {
	var decisions []Decision
	for _, a := range p.Agents() {
		history := a.History()
		if len(history) == 0 {
			continue
		}
		last := history[len(history)-1]
		if !last.Result.Success {
			continue
		}

		for _, cp := range m.completionPatterns {
			if cp.CompletedType != last.Task.Type || cp.Probability <= 0.7 {
				continue
			}
			for _, tmpl := range cp.FollowUp {
				decisions = append(decisions, Decision{
					Type: GenerateTask,
					Reasoning: fmt.Sprintf("Pattern match: %s completion typically requires %s",
						last.Task.Type, tmpl.DescriptionTemplate),
					Confidence: cp.Probability,
					SuggestedActions: []SuggestedAction{{
						ActionType:     "create_task",
						Description:    "Create follow-up task: " + tmpl.DescriptionTemplate,
						Parameters:     map[string]string{"parent_task": last.Task.ID},
						ExpectedImpact: "Maintain development momentum",
					}},
					Risk: RiskLow,
				})
			}
		}

		descLower := strings.ToLower(last.Task.Description)
		for _, pat := range m.patternLibrary {
			for _, trigger := range pat.Triggers {
				if !strings.Contains(descLower, trigger) {
					continue
				}
				for _, tmpl := range pat.Generates {
					decisions = append(decisions, Decision{
						Type:       GenerateTask,
						Reasoning:  fmt.Sprintf("Pattern '%s' triggered by: %s", pat.ID, trigger),
						Confidence: pat.Confidence,
						SuggestedActions: []SuggestedAction{{
							ActionType:     "create_task",
							Description:    "Auto-generate: " + tmpl.DescriptionTemplate,
							Parameters:     map[string]string{"trigger_task": last.Task.ID},
							ExpectedImpact: "Ensure complete feature implementation",
						}},
						Risk: RiskLow,
					})
				}
			}
		}
	}
	return decisions
}

func (m *Monitor) monitorGoals() []Decision {
	var decisions []Decision
	now := time.Now()
	for _, o := range m.objectives {
		if o.Deadline == nil || o.Progress >= 0.8 {
			continue
		}
		daysRemaining := int(o.Deadline.Sub(now).Hours() / 24)
		if daysRemaining > 7 {
			continue
		}
		decisions = append(decisions, Decision{
			Type: ChangeStrategy,
			Reasoning: fmt.Sprintf("Objective '%s' is behind schedule: %.0f%% complete with %d days remaining",
				o.Title, o.Progress*100, daysRemaining),
			Confidence: 0.85,
			SuggestedActions: []SuggestedAction{{
				ActionType:     "reprioritize_tasks",
				Description:    "Focus resources on critical objective",
				Parameters:     map[string]string{"objective_id": o.ID},
				ExpectedImpact: "Improve deadline adherence",
			}},
			Risk: RiskMedium,
		})
	}
	return decisions
}

func (m *Monitor) analyzeSearchNeeds(p *pool.Pool) []Decision {
	var decisions []Decision
	for r, a := range p.Agents() {
		if a.Status() == agent.StatusWorking && a.IdleFor() > searchStuckThreshold {
			if current, ok := a.CurrentTask(); ok {
				descLower := strings.ToLower(current.Description)
				for _, ind := range searchIndicators {
					if !strings.Contains(descLower, ind.phrase) {
						continue
					}
					decisions = append(decisions, Decision{
						Type: RequestSearch,
						Reasoning: fmt.Sprintf("Agent %s appears stuck on task requiring information: '%s'",
							r, current.Description),
						Confidence: 0.85,
						SuggestedActions: []SuggestedAction{{
							ActionType:     "request_search",
							Description:    ind.prefix + " " + current.Description,
							Parameters:     map[string]string{"query": current.Description, "requesting_role": string(r)},
							ExpectedImpact: "Provide information to unblock agent",
						}},
						Risk: RiskLow,
					})
					break
				}
			}
		}

		history := a.History()
		start := len(history) - 3
		if start < 0 {
			start = 0
		}
		for _, entry := range history[start:] {
			if entry.Result.Success {
				continue
			}
			reasonLower := strings.ToLower(entry.Result.Reason)
			for _, ind := range errorIndicators {
				if !strings.Contains(reasonLower, ind) {
					continue
				}
				decisions = append(decisions, Decision{
					Type: RequestSearch,
					Reasoning: fmt.Sprintf("Task %s failed with error suggesting missing information: %s",
						entry.Task.ID, entry.Result.Reason),
					Confidence: 0.9,
					SuggestedActions: []SuggestedAction{{
						ActionType:     "request_search",
						Description:    "Search for solution to: " + entry.Result.Reason,
						Parameters:     map[string]string{"query": entry.Task.Description + " " + entry.Result.Reason, "requesting_role": string(r)},
						ExpectedImpact: "Find solution to resolve error",
					}},
					Risk: RiskLow,
				})
				break
			}
		}
	}
	return decisions
}
