package natsbus

import (
	"encoding/json"
	"log"

	"github.com/ccswarm/ccswarm/internal/events"
)

// subjectPrefix namespaces every event this bridge puts on the wire, so
// one NATS deployment can be shared by more than one ccswarm project.
const subjectPrefix = "ccswarm.events."

// originField is stamped onto every event this node republishes onto
// NATS, so the node that published it can recognize and skip its own
// echo coming back from the subscription.
const originField = "_natsbus_origin"

// wireEvent is events.Event's JSON shape, reproduced here rather than
// imported so the wire format doesn't change if the in-process Event
// struct grows fields with no business crossing a process boundary.
type wireEvent struct {
	ID       string                 `json:"id"`
	Type     events.EventType       `json:"type"`
	Source   string                 `json:"source"`
	Target   string                 `json:"target"`
	Priority int                    `json:"priority"`
	Payload  map[string]interface{} `json:"payload"`
}

// Bridge relays every event published on a local events.Bus out to NATS,
// and relays every event received from NATS (published by some other
// process sharing the same subject prefix) into the local bus.
type Bridge struct {
	bus      *events.Bus
	client   *Client
	nodeID   string
	localSub <-chan events.Event
}

// NewBridge builds a Bridge relaying between bus and client, tagging
// outbound events with nodeID so its own echo is ignored on the way back.
func NewBridge(bus *events.Bus, client *Client, nodeID string) *Bridge {
	return &Bridge{bus: bus, client: client, nodeID: nodeID}
}

// Start subscribes to the local bus's "all" target and to every subject
// under the shared prefix, and begins relaying in both directions. It
// returns once both subscriptions are registered; relaying continues in
// background goroutines until Stop is called.
func (b *Bridge) Start() error {
	b.localSub = b.bus.Subscribe("all", nil)
	go b.relayLocalToNATS()

	_, err := b.client.Subscribe(subjectPrefix+">", b.relayNATSToLocal)
	if err != nil {
		return err
	}
	return nil
}

// Stop unsubscribes from the local bus. The NATS subscription is torn
// down when the underlying connection is closed.
func (b *Bridge) Stop() {
	if b.localSub != nil {
		b.bus.Unsubscribe("all", b.localSub)
	}
}

func (b *Bridge) relayLocalToNATS() {
	for ev := range b.localSub {
		payload := ev.Payload
		if payload == nil {
			payload = make(map[string]interface{})
		}
		if _, relayed := payload[originField]; relayed {
			continue // came in from NATS; every other node already has it
		}
		stamped := make(map[string]interface{}, len(payload)+1)
		for k, v := range payload {
			stamped[k] = v
		}
		stamped[originField] = b.nodeID

		w := wireEvent{
			ID:       ev.ID,
			Type:     ev.Type,
			Source:   ev.Source,
			Target:   ev.Target,
			Priority: ev.Priority,
			Payload:  stamped,
		}
		if err := b.client.PublishJSON(subjectPrefix+string(ev.Type), w); err != nil {
			log.Printf("[NATSBUS] ERROR: publishing event %s: %v", ev.ID, err)
		}
	}
}

func (b *Bridge) relayNATSToLocal(msg Message) {
	var w wireEvent
	if err := json.Unmarshal(msg.Data, &w); err != nil {
		log.Printf("[NATSBUS] ERROR: decoding event from %s: %v", msg.Subject, err)
		return
	}
	if origin, ok := w.Payload[originField]; ok && origin == b.nodeID {
		return // our own event, bounced back by the server
	}
	b.bus.Publish(&events.Event{
		ID:       w.ID,
		Type:     w.Type,
		Source:   w.Source,
		Target:   w.Target,
		Priority: w.Priority,
		Payload:  w.Payload,
	})
}
