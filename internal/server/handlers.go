package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ccswarm/ccswarm/internal/events"
	"github.com/ccswarm/ccswarm/internal/metrics"
	"github.com/ccswarm/ccswarm/internal/pool"
	"github.com/ccswarm/ccswarm/internal/role"
	"github.com/ccswarm/ccswarm/internal/tasks"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var errAlertsDisabled = errors.New("alert engine not configured")
var errExecutorDisabled = errors.New("executor not configured")

func errRequired(field string) error { return fmt.Errorf("%s is required", field) }

func errInvalidRole(r role.Name) error { return fmt.Errorf("invalid role: %q", r) }

// MaxPayloadSize bounds request bodies to defend against large-payload DoS.
const MaxPayloadSize = 1 * 1024 * 1024 // 1MB

// AllowedOrigins contains the list of allowed WebSocket origins.
// Default: localhost only. Configurable via CCSWARMD_ALLOWED_ORIGINS.
// Example: CCSWARMD_ALLOWED_ORIGINS=http://myhost.local:3000,https://dashboard.example.com
var allowedOrigins = initAllowedOrigins()

func initAllowedOrigins() []string {
	defaults := []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
	}

	envOrigins := os.Getenv("CCSWARMD_ALLOWED_ORIGINS")
	if envOrigins != "" {
		for _, origin := range strings.Split(envOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				defaults = append(defaults, origin)
			}
		}
	}

	return defaults
}

// checkWebSocketOrigin validates the Origin header for WebSocket connections
// to prevent CSRF attacks. Allows localhost origins and configured domains.
func checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := originURL.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}

		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}

		if originURL.Hostname() == allowedURL.Hostname() {
			if allowedURL.Port() != "" {
				if originURL.Port() == allowedURL.Port() && originURL.Scheme == allowedURL.Scheme {
					return true
				}
			} else if originURL.Scheme == allowedURL.Scheme {
				return true
			}
		}
	}

	return false
}

var upgrader = websocket.Upgrader{
	CheckOrigin: checkWebSocketOrigin,
}

// handleWebSocket upgrades to WebSocket and registers the client with the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, WebSocketBufferSize),
	}
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// createTaskRequest is the JSON body handleCreateTask accepts.
type createTaskRequest struct {
	Description string `json:"description"`
	Details     string `json:"details"`
	Priority    string `json:"priority"`
	Type        string `json:"type"`
}

func parsePriority(s string) tasks.Priority {
	switch strings.ToLower(s) {
	case "critical":
		return tasks.Critical
	case "high":
		return tasks.High
	case "low":
		return tasks.Low
	default:
		return tasks.Medium
	}
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxPayloadSize)

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, errRequired("description"))
		return
	}
	if req.Type == "" {
		req.Type = string(tasks.Development)
	}

	t := tasks.NewTask(req.Description, req.Details, parsePriority(req.Priority), tasks.Type(req.Type))
	s.queue.Add(*t)

	if s.bus != nil {
		s.bus.Publish(events.NewEvent(events.EventTask, "server", "all", events.PriorityNormal, map[string]interface{}{
			"event":       "task_submitted",
			"task_id":     t.ID,
			"description": t.Description,
		}))
	}

	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter := tasks.ListFilter{
		Status: tasks.Status(r.URL.Query().Get("status")),
		Agent:  r.URL.Query().Get("agent"),
	}
	writeJSON(w, http.StatusOK, s.queue.List(filter))
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Stats())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, ok := s.queue.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, tasks.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	var err error
	if s.exec != nil {
		err = s.exec.CancelTask(id, body.Reason)
	} else {
		err = s.queue.Cancel(id, body.Reason)
	}
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleDispatchNext forces an immediate queue-drain tick instead of waiting
// for exec's next scheduled tick, useful for tests and manual operation.
func (s *Server) handleDispatchNext(w http.ResponseWriter, r *http.Request) {
	if s.exec == nil {
		writeError(w, http.StatusServiceUnavailable, errExecutorDisabled)
		return
	}
	s.exec.Tick(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "dispatched"})
}

type agentView struct {
	Role    role.Name `json:"role"`
	Status  string    `json:"status"`
	IdleFor float64   `json:"idle_for_seconds"`
	TaskID  string    `json:"current_task_id,omitempty"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	out := make([]agentView, 0)
	for roleName, a := range s.agents.Agents() {
		view := agentView{Role: roleName, Status: string(a.Status()), IdleFor: a.IdleFor().Seconds()}
		if t, ok := a.CurrentTask(); ok {
			view.TaskID = t.ID
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	roleName := role.Name(mux.Vars(r)["role"])
	a, err := s.agents.Get(roleName)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	view := agentView{Role: roleName, Status: string(a.Status()), IdleFor: a.IdleFor().Seconds()}
	if t, ok := a.CurrentTask(); ok {
		view.TaskID = t.ID
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSpawnAgent(w http.ResponseWriter, r *http.Request) {
	roleName := role.Name(mux.Vars(r)["role"])
	if !roleName.Valid() {
		writeError(w, http.StatusBadRequest, errInvalidRole(roleName))
		return
	}

	a, err := s.agents.Spawn(roleName)
	if err != nil {
		status := http.StatusInternalServerError
		if err == pool.ErrAgentExists {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}

	initialized := false
	if s.newClient != nil {
		a.Session().SetClient(s.newClient(a))
		if err := a.Initialize(); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		initialized = true
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"role":        string(roleName),
		"status":      "spawned",
		"initialized": initialized,
	})
}

func (s *Server) handleSendAgentMessage(w http.ResponseWriter, r *http.Request) {
	roleName := role.Name(mux.Vars(r)["role"])
	var body struct {
		From string `json:"from"`
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from := role.Master
	if body.From != "" {
		from = role.Name(body.From)
	}
	s.agents.SendMessage(from, roleName, body.Body)
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleBroadcastMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		From string `json:"from"`
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from := role.Master
	if body.From != "" {
		from = role.Name(body.From)
	}
	s.agents.BroadcastMessage(from, body.Body)
	writeJSON(w, http.StatusOK, map[string]string{"status": "broadcast"})
}

func (s *Server) handleExecuteAgentCommand(w http.ResponseWriter, r *http.Request) {
	roleName := role.Name(mux.Vars(r)["role"])
	var body struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.agents.ExecuteCommandWithAgent(roleName, body.Command)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeJSON(w, http.StatusOK, map[string]*metrics.AgentMetrics{})
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.GetAllMetrics())
}

func (s *Server) handleResetMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		s.metrics.ResetHistory()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil || s.metrics == nil {
		writeJSON(w, http.StatusOK, []*metrics.Alert{})
		return
	}
	found := s.alerts.CheckMetrics(s.metrics.GetAllMetrics())
	if s.agents != nil {
		found = append(found, s.alerts.CheckAgentStatus(s.agents.Agents())...)
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeJSON(w, http.StatusOK, metrics.DefaultThresholds())
		return
	}
	writeJSON(w, http.StatusOK, s.alerts.GetThresholds())
}

func (s *Server) handleSetThresholds(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeError(w, http.StatusServiceUnavailable, errAlertsDisabled)
		return
	}
	var thresholds metrics.AlertThresholds
	if err := json.NewDecoder(r.Body).Decode(&thresholds); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.alerts.SetThresholds(thresholds)
	writeJSON(w, http.StatusOK, thresholds)
}

func (s *Server) handleGetBanner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.notifyMgr.GetBannerState())
}

func (s *Server) handleClearBanner(w http.ResponseWriter, r *http.Request) {
	if err := s.notifyMgr.ClearAlert(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
		"port":   s.port,
	})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":       time.Since(s.startTime).String(),
		"tasks":        s.queue.Stats(),
		"clients":      s.hub.ClientCount(),
		"agents_count": len(s.agents.Agents()),
	}
	if s.exec != nil {
		stats["execution"] = s.exec.Stats()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting_down"})
	s.RequestShutdown()
}
