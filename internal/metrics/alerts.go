package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/ccswarm/ccswarm/internal/agent"
	"github.com/ccswarm/ccswarm/internal/role"
	"github.com/google/uuid"
)

// AlertThresholds gates when CheckMetrics/CheckAgentStatus/CheckEscalationQueue
// turn a reading into an Alert.
type AlertThresholds struct {
	FailedTestsMax        int
	IdleTimeMaxSeconds     int
	TokenUsageMax          int
	ConsecutiveRejectsMax  int
	EscalationQueueMax     int
	StuckWorkingMaxSeconds int
}

// DefaultThresholds mirrors the values the teacher's dashboard shipped
// with, since nothing in SPEC_FULL.md names different defaults.
func DefaultThresholds() AlertThresholds {
	return AlertThresholds{
		FailedTestsMax:         5,
		IdleTimeMaxSeconds:     600,
		TokenUsageMax:          0, // unbounded by default: no token accounting in this system
		ConsecutiveRejectsMax:  3,
		EscalationQueueMax:     10,
		StuckWorkingMaxSeconds: int((15 * time.Minute).Seconds()),
	}
}

// Alert is one threshold breach, identified so the notifications router
// (or a dashboard) can display and acknowledge it.
type Alert struct {
	ID        string
	Type      string
	AgentID   string
	Message   string
	Severity  string // "warning" or "critical"
	CreatedAt time.Time
}

// AlertEngine checks metrics against thresholds and generates alerts.
type AlertEngine interface {
	SetThresholds(thresholds AlertThresholds)
	GetThresholds() AlertThresholds
	CheckMetrics(metrics map[string]*AgentMetrics) []*Alert
	CheckAgentStatus(agents map[role.Name]*agent.Agent) []*Alert
	CheckEscalationQueue(pendingCount int) *Alert
}

// AlertChecker implements AlertEngine.
type AlertChecker struct {
	mu         sync.RWMutex
	thresholds AlertThresholds
	// recentAlerts suppresses re-firing the same alert key within 5 minutes.
	recentAlerts map[string]time.Time
}

// NewAlertEngine creates a new alert engine.
func NewAlertEngine(thresholds AlertThresholds) *AlertChecker {
	return &AlertChecker{
		thresholds:   thresholds,
		recentAlerts: make(map[string]time.Time),
	}
}

// SetThresholds updates alert thresholds.
func (a *AlertChecker) SetThresholds(thresholds AlertThresholds) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thresholds = thresholds
}

// GetThresholds returns current thresholds.
func (a *AlertChecker) GetThresholds() AlertThresholds {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.thresholds
}

func (a *AlertChecker) shouldAlert(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for k, t := range a.recentAlerts {
		if now.Sub(t) > 5*time.Minute {
			delete(a.recentAlerts, k)
		}
	}

	if _, exists := a.recentAlerts[key]; exists {
		return false
	}
	a.recentAlerts[key] = now
	return true
}

// CheckMetrics examines all agent metrics and returns alerts.
func (a *AlertChecker) CheckMetrics(metrics map[string]*AgentMetrics) []*Alert {
	a.mu.RLock()
	thresholds := a.thresholds
	a.mu.RUnlock()

	var alerts []*Alert

	for agentID, m := range metrics {
		if thresholds.FailedTestsMax > 0 && m.FailedTests >= thresholds.FailedTestsMax {
			key := fmt.Sprintf("failed_tests_%s", agentID)
			if a.shouldAlert(key) {
				alerts = append(alerts, &Alert{
					ID:        uuid.New().String(),
					Type:      "failed_tests",
					AgentID:   agentID,
					Message:   fmt.Sprintf("Agent %s has %d failed tests (threshold: %d)", agentID, m.FailedTests, thresholds.FailedTestsMax),
					Severity:  "warning",
					CreatedAt: time.Now(),
				})
			}
		}

		if thresholds.IdleTimeMaxSeconds > 0 && !m.IdleSince.IsZero() {
			idleSeconds := int(time.Since(m.IdleSince).Seconds())
			if idleSeconds >= thresholds.IdleTimeMaxSeconds {
				key := fmt.Sprintf("idle_%s", agentID)
				if a.shouldAlert(key) {
					alerts = append(alerts, &Alert{
						ID:        uuid.New().String(),
						Type:      "idle_timeout",
						AgentID:   agentID,
						Message:   fmt.Sprintf("Agent %s has been idle for %d seconds", agentID, idleSeconds),
						Severity:  "warning",
						CreatedAt: time.Now(),
					})
				}
			}
		}

		if thresholds.ConsecutiveRejectsMax > 0 && m.ConsecutiveRejects >= thresholds.ConsecutiveRejectsMax {
			key := fmt.Sprintf("rejects_%s", agentID)
			if a.shouldAlert(key) {
				alerts = append(alerts, &Alert{
					ID:        uuid.New().String(),
					Type:      "consecutive_rejects",
					AgentID:   agentID,
					Message:   fmt.Sprintf("Agent %s has %d consecutive rejections", agentID, m.ConsecutiveRejects),
					Severity:  "critical",
					CreatedAt: time.Now(),
				})
			}
		}
	}

	return alerts
}

// CheckAgentStatus inspects live agents (e.g. from pool.Pool.Agents) for
// conditions a metrics snapshot alone can't see: a Working agent whose
// session has gone quiet for longer than StuckWorkingMaxSeconds.
func (a *AlertChecker) CheckAgentStatus(agents map[role.Name]*agent.Agent) []*Alert {
	a.mu.RLock()
	thresholds := a.thresholds
	a.mu.RUnlock()

	var alerts []*Alert
	for r, ag := range agents {
		if ag.Status() != agent.StatusWorking {
			continue
		}
		if thresholds.StuckWorkingMaxSeconds <= 0 {
			continue
		}
		idle := ag.IdleFor()
		if int(idle.Seconds()) < thresholds.StuckWorkingMaxSeconds {
			continue
		}
		key := fmt.Sprintf("stuck_%s", r)
		if a.shouldAlert(key) {
			alerts = append(alerts, &Alert{
				ID:        uuid.New().String(),
				Type:      "agent_stuck",
				AgentID:   string(r),
				Message:   fmt.Sprintf("Agent %s has been Working with no session activity for %s", r, idle.Round(time.Second)),
				Severity:  "critical",
				CreatedAt: time.Now(),
			})
		}
	}
	return alerts
}

// CheckEscalationQueue checks pending clarification/delegation backlog.
func (a *AlertChecker) CheckEscalationQueue(pendingCount int) *Alert {
	a.mu.RLock()
	thresholds := a.thresholds
	a.mu.RUnlock()

	if thresholds.EscalationQueueMax <= 0 {
		return nil
	}
	if pendingCount < thresholds.EscalationQueueMax {
		return nil
	}

	key := "escalation_queue"
	if !a.shouldAlert(key) {
		return nil
	}
	return &Alert{
		ID:        uuid.New().String(),
		Type:      "escalation_queue",
		Message:   fmt.Sprintf("Escalation queue has %d items (threshold: %d)", pendingCount, thresholds.EscalationQueueMax),
		Severity:  "critical",
		CreatedAt: time.Now(),
	}
}
