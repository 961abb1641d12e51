// Package natsbus lets several ccswarm processes share one coordination
// bus: each process keeps its own in-memory events.Bus for local fan-out,
// and a Bridge relays every event across an embedded (or external) NATS
// deployment so a proactive monitor or dashboard running in a different
// process sees the same stream.
package natsbus

import (
	"fmt"
	"sync"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServerConfig configures the embedded NATS server started for
// single-host multi-process deployments that don't want to stand up a
// separate NATS cluster.
type EmbeddedServerConfig struct {
	Port int // Port to listen on; 0 picks the NATS default (4222).
}

// EmbeddedServer wraps an in-process NATS server. ccswarm only needs
// plain pub/sub for event relay, so JetStream persistence and the
// WebSocket listener the teacher's embedded server also supports are not
// started here — nothing in this project's event model needs message
// replay or a browser-facing NATS transport.
type EmbeddedServer struct {
	mu      sync.RWMutex
	server  *natsserver.Server
	config  EmbeddedServerConfig
	running bool
}

// NewEmbeddedServer builds an EmbeddedServer, defaulting to NATS's
// standard port.
func NewEmbeddedServer(config EmbeddedServerConfig) *EmbeddedServer {
	if config.Port <= 0 {
		config.Port = 4222
	}
	return &EmbeddedServer{config: config}
}

// Start launches the embedded server and blocks until it is ready for
// connections or 10 seconds elapse.
func (e *EmbeddedServer) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("natsbus: embedded server already running")
	}

	opts := &natsserver.Options{
		Host:       "127.0.0.1",
		Port:       e.config.Port,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}

	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return fmt.Errorf("natsbus: creating embedded server: %w", err)
	}
	e.server = srv

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("natsbus: embedded server not ready for connections")
	}
	e.running = true
	return nil
}

// Shutdown stops the embedded server, waiting for it to drain.
func (e *EmbeddedServer) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || e.server == nil {
		return
	}
	e.server.Shutdown()
	e.server.WaitForShutdown()
	e.running = false
	e.server = nil
}

// URL returns the connection string for Dial.
func (e *EmbeddedServer) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fmt.Sprintf("nats://127.0.0.1:%d", e.config.Port)
}

// IsRunning reports whether the server is currently accepting connections.
func (e *EmbeddedServer) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}
