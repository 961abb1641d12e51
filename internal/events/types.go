package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType names the kind of coordination event flowing through the bus.
type EventType string

const (
	// EventTask fires when a task is submitted and when an execution of it
	// completes or fails.
	EventTask EventType = "task"
	// EventAgent fires when the pool spawns an agent, and carries
	// inter-agent messages and broadcasts.
	EventAgent EventType = "agent"
	// EventAlert fires on safety-relevant conditions: a task failed on an
	// identity boundary violation or drift, or the alert engine reported a
	// finding.
	EventAlert EventType = "alert"
	// EventReview fires when an operation needs a human decision
	// (auto-accept declined, clarification requested).
	EventReview EventType = "review"
	// EventProactive fires when the proactive monitor makes or executes a
	// decision.
	EventProactive EventType = "proactive"
)

// Priority mirrors an event's urgency, independent of task priority.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
)

// Event is a single message flowing through the coordination bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Priority  int                    `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewEvent builds an Event with a fresh ID and current timestamp.
func NewEvent(eventType EventType, source, target string, priority int, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Target:    target,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// AllEventTypes lists every defined event type.
func AllEventTypes() []EventType {
	return []EventType{EventTask, EventAgent, EventAlert, EventReview, EventProactive}
}
