// Package metrics tracks per-agent throughput, idle time and rejection
// counts, and turns threshold breaches into alerts that the notifications
// router can surface.
package metrics

import (
	"sync"
	"time"
)

// AgentMetrics is one agent's running counters, matched to what
// internal/identity and internal/pool can actually observe: there is no
// token-usage accounting in this system's session/client abstraction, so
// unlike the teacher's dashboard metrics this tracks task outcomes and
// rejection counts, not LLM spend (that estimate lives in extended.go's
// ExtendedAgentMetrics, fed by whatever component does track tokens).
type AgentMetrics struct {
	AgentID            string
	TasksCompleted     int
	TasksFailed        int
	FailedTests        int
	ConsecutiveRejects int
	IdleSince          time.Time
	LastUpdated        time.Time
}

// MetricsSnapshot is every agent's AgentMetrics at one point in time.
type MetricsSnapshot struct {
	Timestamp time.Time
	Agents    map[string]*AgentMetrics
}

// Collector aggregates and stores agent metrics.
type Collector interface {
	UpdateAgentMetrics(agentID string, metrics *AgentMetrics)
	GetAgentMetrics(agentID string) *AgentMetrics
	GetAllMetrics() map[string]*AgentMetrics
	SetAgentIdle(agentID string)
	SetAgentActive(agentID string)
	TakeSnapshot() MetricsSnapshot
	GetHistory() []MetricsSnapshot
	ResetHistory()
	RecordTaskCompleted(agentID string)
	RecordTaskFailed(agentID string)
	IncrementFailedTests(agentID string)
	IncrementConsecutiveRejects(agentID string)
	ResetConsecutiveRejects(agentID string)
	RemoveAgent(agentID string)
}

// MetricsCollector implements Collector.
type MetricsCollector struct {
	mu         sync.RWMutex
	metrics    map[string]*AgentMetrics
	history    []MetricsSnapshot
	maxHistory int
}

// NewCollector creates a new metrics collector.
func NewCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:    make(map[string]*AgentMetrics),
		history:    []MetricsSnapshot{},
		maxHistory: 1000,
	}
}

func (c *MetricsCollector) getOrCreate(agentID string) *AgentMetrics {
	m, ok := c.metrics[agentID]
	if !ok {
		m = &AgentMetrics{AgentID: agentID, LastUpdated: time.Now()}
		c.metrics[agentID] = m
	}
	return m
}

// UpdateAgentMetrics replaces or creates the stored metrics for an agent.
func (c *MetricsCollector) UpdateAgentMetrics(agentID string, metrics *AgentMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	metrics.LastUpdated = time.Now()
	c.metrics[agentID] = metrics
}

// GetAgentMetrics returns a copy of one agent's metrics, nil if unknown.
func (c *MetricsCollector) GetAgentMetrics(agentID string) *AgentMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if m, ok := c.metrics[agentID]; ok {
		copy := *m
		return &copy
	}
	return nil
}

// GetAllMetrics returns a copy of every agent's metrics.
func (c *MetricsCollector) GetAllMetrics() map[string]*AgentMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]*AgentMetrics, len(c.metrics))
	for k, v := range c.metrics {
		copy := *v
		result[k] = &copy
	}
	return result
}

// SetAgentIdle marks agent as idle, recording idle start time.
func (c *MetricsCollector) SetAgentIdle(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(agentID)
	if m.IdleSince.IsZero() {
		m.IdleSince = time.Now()
	}
	m.LastUpdated = time.Now()
}

// SetAgentActive clears idle status.
func (c *MetricsCollector) SetAgentActive(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.metrics[agentID]; ok {
		m.IdleSince = time.Time{}
		m.LastUpdated = time.Now()
	}
}

// RecordTaskCompleted increments the completed-task counter.
func (c *MetricsCollector) RecordTaskCompleted(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.getOrCreate(agentID)
	m.TasksCompleted++
	m.LastUpdated = time.Now()
}

// RecordTaskFailed increments the failed-task counter.
func (c *MetricsCollector) RecordTaskFailed(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.getOrCreate(agentID)
	m.TasksFailed++
	m.LastUpdated = time.Now()
}

// TakeSnapshot captures current metrics state into the history ring.
func (c *MetricsCollector) TakeSnapshot() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := MetricsSnapshot{
		Timestamp: time.Now(),
		Agents:    make(map[string]*AgentMetrics, len(c.metrics)),
	}
	for k, v := range c.metrics {
		copy := *v
		snapshot.Agents[k] = &copy
	}

	c.history = append(c.history, snapshot)
	if len(c.history) > c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory:]
	}
	return snapshot
}

// GetHistory returns a copy of the metrics history.
func (c *MetricsCollector) GetHistory() []MetricsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]MetricsSnapshot, len(c.history))
	copy(result, c.history)
	return result
}

// ResetHistory clears metrics history.
func (c *MetricsCollector) ResetHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = []MetricsSnapshot{}
}

// IncrementFailedTests increases failed test count.
func (c *MetricsCollector) IncrementFailedTests(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.getOrCreate(agentID)
	m.FailedTests++
	m.LastUpdated = time.Now()
}

// IncrementConsecutiveRejects increases rejection count.
func (c *MetricsCollector) IncrementConsecutiveRejects(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.getOrCreate(agentID)
	m.ConsecutiveRejects++
	m.LastUpdated = time.Now()
}

// ResetConsecutiveRejects clears rejection count.
func (c *MetricsCollector) ResetConsecutiveRejects(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.metrics[agentID]; ok {
		m.ConsecutiveRejects = 0
		m.LastUpdated = time.Now()
	}
}

// RemoveAgent removes an agent's metrics.
func (c *MetricsCollector) RemoveAgent(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.metrics, agentID)
}
