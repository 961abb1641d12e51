package notifications

import (
	"fmt"

	"github.com/ccswarm/ccswarm/internal/events"
)

// EventChannel adapts a Manager into a NotificationChannel, so the same
// Router that fans events out to Slack/Discord/email webhooks also drives
// this process's own toast/terminal/banner notifications. It only reacts
// to EventAlert (identity boundary violations, drift) and EventReview
// (clarification requests, auto-accept declines) — EventTask/EventAgent
// churn is too frequent for a human-facing interrupt.
type EventChannel struct {
	manager NotificationManager
}

// NewEventChannel wraps manager for use with Router.AddChannel.
func NewEventChannel(manager NotificationManager) *EventChannel {
	return &EventChannel{manager: manager}
}

// Name identifies this channel among the router's registered channels.
func (c *EventChannel) Name() string { return "local" }

// ShouldNotify reacts to review and alert events; everything else is left
// to channels that want the full firehose (e.g. a webhook with its own
// EventTypes filter).
func (c *EventChannel) ShouldNotify(event events.Event) bool {
	return event.Type == events.EventAlert || event.Type == events.EventReview
}

// Send surfaces the event through every local channel the Manager owns.
func (c *EventChannel) Send(event events.Event) error {
	message := formatEventMessage(event)
	return c.manager.NotifySupervisorNeedsInput(message)
}

func formatEventMessage(event events.Event) string {
	reason, _ := event.Payload["reason"].(string)
	if reason == "" {
		if name, ok := event.Payload["event"].(string); ok {
			reason = name
		}
	}
	if reason == "" {
		return fmt.Sprintf("%s event from %s", event.Type, event.Source)
	}
	return fmt.Sprintf("%s: %s", event.Source, reason)
}
