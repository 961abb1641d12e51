package metrics

import (
	"strings"
	"sync"
	"time"
)

// HealthStatus represents agent health.
type HealthStatus string

const (
	HealthHealthy HealthStatus = "healthy"
	HealthIdle    HealthStatus = "idle"
	HealthStuck   HealthStatus = "stuck"
	HealthFailing HealthStatus = "failing"
	HealthError   HealthStatus = "error"
)

// ExtendedAgentMetrics provides comprehensive agent metrics, including the
// token/cost estimate that plain AgentMetrics doesn't track. Model is a
// provider/model string (e.g. "claude-opus-4",
// "claude-sonnet-4"), used by EstimatedCost's rate lookup.
type ExtendedAgentMetrics struct {
	AgentID string
	Model   string

	TasksCompleted   int
	TotalTokens      int64
	TotalTimeSeconds int64

	CurrentTaskID string
	QueueDepth    int

	LastActivity        time.Time
	ConsecutiveFailures int
	FailedTests         int
	ReviewRejections    int
}

// TokensPerTask returns average tokens per completed task.
func (m *ExtendedAgentMetrics) TokensPerTask() int64 {
	if m.TasksCompleted == 0 {
		return 0
	}
	return m.TotalTokens / int64(m.TasksCompleted)
}

// AvgTaskTimeSeconds returns average time per task in seconds.
func (m *ExtendedAgentMetrics) AvgTaskTimeSeconds() int64 {
	if m.TasksCompleted == 0 {
		return 0
	}
	return m.TotalTimeSeconds / int64(m.TasksCompleted)
}

// HealthStatus returns the agent's health status.
func (m *ExtendedAgentMetrics) HealthStatus() HealthStatus {
	if m.ConsecutiveFailures >= 3 {
		return HealthFailing
	}

	idleTime := time.Since(m.LastActivity)
	if idleTime > 30*time.Minute {
		return HealthStuck
	}
	if idleTime > 10*time.Minute {
		return HealthIdle
	}
	return HealthHealthy
}

// opusRatePerMillionTokens and sonnetRatePerMillionTokens are illustrative
// input-token rates used only to produce a rough cost estimate; this
// system has no billing integration to source live pricing from.
const (
	opusRatePerMillionTokens   = 15.0
	sonnetRatePerMillionTokens = 3.0
)

func ratePerToken(model string) float64 {
	if strings.Contains(strings.ToLower(model), "opus") {
		return opusRatePerMillionTokens / 1_000_000
	}
	return sonnetRatePerMillionTokens / 1_000_000
}

// TeamMetrics aggregates metrics across all agents in a pool.
type TeamMetrics struct {
	mu     sync.RWMutex
	TeamID string
	Agents map[string]*ExtendedAgentMetrics
}

// NewTeamMetrics creates a new team metrics tracker.
func NewTeamMetrics(teamID string) *TeamMetrics {
	return &TeamMetrics{
		TeamID: teamID,
		Agents: make(map[string]*ExtendedAgentMetrics),
	}
}

// AddAgentMetrics adds or updates metrics for an agent.
func (t *TeamMetrics) AddAgentMetrics(agentID string, m *ExtendedAgentMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Agents[agentID] = m
}

// TotalTasks returns total tasks completed across all agents.
func (t *TeamMetrics) TotalTasks() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := 0
	for _, m := range t.Agents {
		total += m.TasksCompleted
	}
	return total
}

// TotalTokens returns total tokens used across all agents.
func (t *TeamMetrics) TotalTokens() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total int64
	for _, m := range t.Agents {
		total += m.TotalTokens
	}
	return total
}

// ActiveAgents returns count of agents with healthy/idle status.
func (t *TeamMetrics) ActiveAgents() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, m := range t.Agents {
		status := m.HealthStatus()
		if status == HealthHealthy || status == HealthIdle {
			count++
		}
	}
	return count
}

// EstimatedCost sums an illustrative dollar cost across agents, pricing
// each agent's tokens by its Model string.
func (t *TeamMetrics) EstimatedCost() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var cost float64
	for _, m := range t.Agents {
		cost += float64(m.TotalTokens) * ratePerToken(m.Model)
	}
	return cost
}
