package metrics

import (
	"testing"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c.metrics == nil {
		t.Error("metrics map should be initialized")
	}
	if c.maxHistory != 1000 {
		t.Errorf("maxHistory = %d, want 1000", c.maxHistory)
	}
}

func TestUpdateAgentMetricsStoresAndOverwrites(t *testing.T) {
	c := NewCollector()

	c.UpdateAgentMetrics("agent-1", &AgentMetrics{AgentID: "agent-1", FailedTests: 2})
	got := c.GetAgentMetrics("agent-1")
	if got == nil || got.FailedTests != 2 {
		t.Fatalf("GetAgentMetrics() = %+v, want FailedTests 2", got)
	}

	c.UpdateAgentMetrics("agent-1", &AgentMetrics{AgentID: "agent-1", FailedTests: 9})
	got = c.GetAgentMetrics("agent-1")
	if got.FailedTests != 9 {
		t.Errorf("UpdateAgentMetrics should overwrite, got FailedTests = %d", got.FailedTests)
	}
}

func TestGetAgentMetricsUnknownReturnsNil(t *testing.T) {
	c := NewCollector()
	if c.GetAgentMetrics("nobody") != nil {
		t.Error("expected nil for an agent with no recorded metrics")
	}
}

func TestSetAgentIdleThenActiveClearsIdleSince(t *testing.T) {
	c := NewCollector()
	c.SetAgentIdle("agent-1")

	got := c.GetAgentMetrics("agent-1")
	if got.IdleSince.IsZero() {
		t.Fatal("expected IdleSince to be set after SetAgentIdle")
	}

	c.SetAgentActive("agent-1")
	got = c.GetAgentMetrics("agent-1")
	if !got.IdleSince.IsZero() {
		t.Error("expected IdleSince to be cleared after SetAgentActive")
	}
}

func TestRecordTaskCompletedAndFailed(t *testing.T) {
	c := NewCollector()
	c.RecordTaskCompleted("agent-1")
	c.RecordTaskCompleted("agent-1")
	c.RecordTaskFailed("agent-1")

	got := c.GetAgentMetrics("agent-1")
	if got.TasksCompleted != 2 || got.TasksFailed != 1 {
		t.Errorf("got %+v, want TasksCompleted=2 TasksFailed=1", got)
	}
}

func TestIncrementAndResetConsecutiveRejects(t *testing.T) {
	c := NewCollector()
	c.IncrementConsecutiveRejects("agent-1")
	c.IncrementConsecutiveRejects("agent-1")
	if got := c.GetAgentMetrics("agent-1"); got.ConsecutiveRejects != 2 {
		t.Fatalf("ConsecutiveRejects = %d, want 2", got.ConsecutiveRejects)
	}

	c.ResetConsecutiveRejects("agent-1")
	if got := c.GetAgentMetrics("agent-1"); got.ConsecutiveRejects != 0 {
		t.Errorf("ConsecutiveRejects = %d, want 0 after reset", got.ConsecutiveRejects)
	}
}

func TestTakeSnapshotAppendsToHistory(t *testing.T) {
	c := NewCollector()
	c.RecordTaskCompleted("agent-1")

	snap := c.TakeSnapshot()
	if snap.Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
	if len(snap.Agents) != 1 {
		t.Errorf("expected 1 agent in snapshot, got %d", len(snap.Agents))
	}

	history := c.GetHistory()
	if len(history) != 1 {
		t.Fatalf("expected 1 snapshot in history, got %d", len(history))
	}

	c.ResetHistory()
	if len(c.GetHistory()) != 0 {
		t.Error("expected history to be empty after ResetHistory")
	}
}

func TestTakeSnapshotPrunesHistoryToMaxHistory(t *testing.T) {
	c := NewCollector()
	c.maxHistory = 3

	for i := 0; i < 5; i++ {
		c.TakeSnapshot()
	}
	if len(c.GetHistory()) != 3 {
		t.Errorf("expected history capped at 3, got %d", len(c.GetHistory()))
	}
}

func TestRemoveAgentDeletesMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordTaskCompleted("agent-1")
	c.RemoveAgent("agent-1")

	if c.GetAgentMetrics("agent-1") != nil {
		t.Error("expected metrics to be gone after RemoveAgent")
	}
}

func TestGetAllMetricsReturnsIndependentCopies(t *testing.T) {
	c := NewCollector()
	c.RecordTaskCompleted("agent-1")

	all := c.GetAllMetrics()
	all["agent-1"].TasksCompleted = 999

	if got := c.GetAgentMetrics("agent-1"); got.TasksCompleted == 999 {
		t.Error("GetAllMetrics should return copies, not live pointers")
	}
}
