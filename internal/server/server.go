// Package server exposes the swarm's task queue, agent pool and metrics
// over an HTTP/WebSocket API: submit work, watch agents pick it up, and
// stream live events to a dashboard or CLI watcher.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/ccswarm/ccswarm/internal/agent"
	"github.com/ccswarm/ccswarm/internal/config"
	"github.com/ccswarm/ccswarm/internal/events"
	"github.com/ccswarm/ccswarm/internal/executor"
	"github.com/ccswarm/ccswarm/internal/metrics"
	"github.com/ccswarm/ccswarm/internal/notifications"
	"github.com/ccswarm/ccswarm/internal/pool"
	"github.com/ccswarm/ccswarm/internal/session"
	"github.com/ccswarm/ccswarm/internal/tasks"
	"github.com/gorilla/mux"
)

// backgroundTick is how often the server polls for alerts.
const backgroundTick = 2 * time.Second

// Server is the swarm's HTTP/WebSocket front door.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *Hub

	queue   *tasks.Queue
	agents  *pool.Pool
	bus     *events.Bus
	metrics *metrics.MetricsCollector
	alerts  *metrics.AlertChecker

	// exec owns the actual queue-draining loop (delegation, re-delegation
	// retry, complexity routing to the orchestrator, stats/history). The
	// server never dequeues tasks itself; it only forces a tick and reads
	// exec's running stats/history and CancelTask for the matching API
	// endpoints. May be nil in tests that only exercise the HTTP surface.
	exec *executor.Executor

	notifyMgr    *notifications.Manager
	notifyRouter *notifications.Router

	project *config.ProjectConfig
	team    *config.TeamConfig

	// newClient builds the model backend for a freshly spawned agent.
	// cmd/ccswarmd sets this to whatever drives its coding sessions; left
	// nil in tests, where handleSpawnAgent leaves the agent uninitialized.
	newClient func(*agent.Agent) session.Client

	port      int
	startTime time.Time

	stopChan     chan struct{}
	ShutdownChan chan struct{}
}

// NewServer wires a Server around an already-constructed queue, pool and
// event bus; callers (cmd/ccswarmd) own the lifetime of those components.
func NewServer(
	queue *tasks.Queue,
	agentPool *pool.Pool,
	bus *events.Bus,
	collector *metrics.MetricsCollector,
	alertEngine *metrics.AlertChecker,
	exec *executor.Executor,
	project *config.ProjectConfig,
	team *config.TeamConfig,
	port int,
) *Server {
	s := &Server{
		hub:          NewHub(),
		queue:        queue,
		agents:       agentPool,
		bus:          bus,
		metrics:      collector,
		alerts:       alertEngine,
		exec:         exec,
		notifyMgr:    notifications.NewDefaultManager(),
		notifyRouter: notifications.NewRouter(nil),
		project:      project,
		team:         team,
		port:         port,
		startTime:    time.Now(),
		stopChan:     make(chan struct{}),
		ShutdownChan: make(chan struct{}),
	}

	s.notifyRouter.AddChannel(notifications.NewEventChannel(s.notifyMgr))

	if s.bus != nil {
		go s.relayEvents()
	}

	s.setupRoutes()
	go s.backgroundTasks()
	go s.hub.Run()

	return s
}

// relayEvents fans out every bus event to connected WebSocket clients and
// the notification router in one subscription.
func (s *Server) relayEvents() {
	sub := s.bus.Subscribe("all", nil)
	for event := range sub {
		s.hub.BroadcastEvent(event)
		s.notifyRouter.Route(event)
	}
}

// setupRoutes configures HTTP routes.
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(SecurityHeadersMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/tasks", s.handleListTasks).Methods("GET")
	api.HandleFunc("/tasks", s.handleCreateTask).Methods("POST")
	api.HandleFunc("/tasks/stats", s.handleTaskStats).Methods("GET")
	api.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}/cancel", s.handleCancelTask).Methods("POST")

	api.HandleFunc("/dispatch", s.handleDispatchNext).Methods("POST")

	api.HandleFunc("/agents", s.handleListAgents).Methods("GET")
	api.HandleFunc("/agents/{role}", s.handleGetAgent).Methods("GET")
	api.HandleFunc("/agents/{role}/spawn", s.handleSpawnAgent).Methods("POST")
	api.HandleFunc("/agents/{role}/message", s.handleSendAgentMessage).Methods("POST")
	api.HandleFunc("/agents/{role}/command", s.handleExecuteAgentCommand).Methods("POST")
	api.HandleFunc("/agents/broadcast", s.handleBroadcastMessage).Methods("POST")

	api.HandleFunc("/metrics", s.handleGetMetrics).Methods("GET")
	api.HandleFunc("/metrics/reset", s.handleResetMetrics).Methods("POST")
	api.HandleFunc("/alerts", s.handleGetAlerts).Methods("GET")
	api.HandleFunc("/alerts/thresholds", s.handleGetThresholds).Methods("GET")
	api.HandleFunc("/alerts/thresholds", s.handleSetThresholds).Methods("PUT")

	api.HandleFunc("/notifications/banner", s.handleGetBanner).Methods("GET")
	api.HandleFunc("/notifications/banner/clear", s.handleClearBanner).Methods("POST")

	api.HandleFunc("/health", s.handleHealthCheck).Methods("GET")
	api.HandleFunc("/stats", s.handleGetStats).Methods("GET")
	api.HandleFunc("/shutdown", s.handleShutdown).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// backgroundTasks periodically checks for alerts, mirroring the teacher's
// stopChan-gated ticker loop. Queue draining is exec's job, not the
// server's; see the exec field doc.
func (s *Server) backgroundTasks() {
	ticker := time.NewTicker(backgroundTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checkAlerts()
		case <-s.stopChan:
			return
		}
	}
}

// checkAlerts runs the alert engine against current metrics and agent
// status, publishing anything new onto the event bus.
func (s *Server) checkAlerts() {
	if s.alerts == nil || s.bus == nil {
		return
	}

	var found []*metrics.Alert
	if s.metrics != nil {
		found = append(found, s.alerts.CheckMetrics(s.metrics.GetAllMetrics())...)
	}
	if s.agents != nil {
		found = append(found, s.alerts.CheckAgentStatus(s.agents.Agents())...)
	}
	if stats := s.queue.Stats(); stats.Pending > 0 {
		if alert := s.alerts.CheckEscalationQueue(stats.Pending); alert != nil {
			found = append(found, alert)
		}
	}

	for _, a := range found {
		priority := events.PriorityNormal
		if a.Severity == "critical" {
			priority = events.PriorityCritical
		}
		s.bus.Publish(events.NewEvent(events.EventAlert, "server", "all", priority, map[string]interface{}{
			"alert_id": a.ID,
			"type":     a.Type,
			"agent_id": a.AgentID,
			"message":  a.Message,
			"severity": a.Severity,
		}))
	}
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	log.Printf("[SERVER] Listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and background loop.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopChan)
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// SetClientFactory installs the function handleSpawnAgent uses to attach a
// model backend to a newly spawned agent's session before running its
// identity self-check.
func (s *Server) SetClientFactory(f func(*agent.Agent) session.Client) {
	s.newClient = f
}

// RequestShutdown signals ShutdownChan for external code (e.g. cmd/ccswarmd's
// main loop) watching for a dashboard-initiated shutdown.
func (s *Server) RequestShutdown() {
	select {
	case <-s.ShutdownChan:
		// already closed
	default:
		close(s.ShutdownChan)
	}
}
