package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ccswarm/ccswarm/internal/events"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("NewHub returned nil")
	}
	if hub.clients == nil {
		t.Error("clients map should be initialized")
	}
	if hub.register == nil {
		t.Error("register channel should be initialized")
	}
	if hub.unregister == nil {
		t.Error("unregister channel should be initialized")
	}
	if hub.broadcast == nil {
		t.Error("broadcast channel should be initialized")
	}
}

func TestHubClientCount(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients initially, got %d", hub.ClientCount())
	}

	client1 := &Client{hub: hub, send: make(chan []byte, WebSocketBufferSize)}
	client2 := &Client{hub: hub, send: make(chan []byte, WebSocketBufferSize)}

	hub.Register(client1)
	time.Sleep(10 * time.Millisecond)
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after first register, got %d", hub.ClientCount())
	}

	hub.Register(client2)
	time.Sleep(10 * time.Millisecond)
	if hub.ClientCount() != 2 {
		t.Errorf("expected 2 clients after second register, got %d", hub.ClientCount())
	}

	hub.Unregister(client1)
	time.Sleep(10 * time.Millisecond)
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after unregister, got %d", hub.ClientCount())
	}
}

func TestHubBroadcastJSON(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, WebSocketBufferSize)}
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastJSON(map[string]string{"test": "message"})

	select {
	case received := <-client.send:
		var decoded map[string]string
		if err := json.Unmarshal(received, &decoded); err != nil {
			t.Fatalf("failed to decode message: %v", err)
		}
		if decoded["test"] != "message" {
			t.Errorf("expected 'message', got '%s'", decoded["test"])
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("did not receive broadcast message")
	}
}

func TestHubBroadcastEvent(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, WebSocketBufferSize)}
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	event := events.NewEvent(events.EventAlert, "pool", "all", events.PriorityCritical,
		map[string]interface{}{"reason": "boundary violation"})
	hub.BroadcastEvent(*event)

	select {
	case received := <-client.send:
		var decoded events.Event
		if err := json.Unmarshal(received, &decoded); err != nil {
			t.Fatalf("failed to decode message: %v", err)
		}
		if decoded.Type != events.EventAlert {
			t.Errorf("expected type %q, got %q", events.EventAlert, decoded.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("did not receive event broadcast")
	}
}

func TestHubMultipleClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	clients := make([]*Client, 3)
	for i := 0; i < 3; i++ {
		clients[i] = &Client{hub: hub, send: make(chan []byte, WebSocketBufferSize)}
		hub.Register(clients[i])
	}
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 3 {
		t.Errorf("expected 3 clients, got %d", hub.ClientCount())
	}

	hub.BroadcastJSON(map[string]string{"test": "broadcast"})

	for i, client := range clients {
		select {
		case <-client.send:
		case <-time.After(100 * time.Millisecond):
			t.Errorf("client %d did not receive broadcast", i)
		}
	}
}

func TestHubUnregisterNonexistent(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, WebSocketBufferSize)}

	// Should not panic.
	hub.Unregister(client)
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHubBroadcastToEmptyHub(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// Should not panic.
	hub.BroadcastJSON(map[string]string{"test": "empty"})
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}
