// Package session models the persistent conversational context an agent
// keeps while working a task: its role, its working directory, and a
// bounded history of what it has said and heard.
package session

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ccswarm/ccswarm/internal/role"
	"github.com/ccswarm/ccswarm/internal/tasks"
)

// Status is where a session currently sits in its lifecycle.
type Status string

const (
	StatusStarting     Status = "starting"
	StatusIdle         Status = "idle"
	StatusWorking      Status = "working"
	StatusBlocked      Status = "blocked"
	StatusDisconnected Status = "disconnected"
)

// maxHistory bounds the in-memory conversation ring; older entries are
// dropped once a session accumulates more than this many messages.
const maxHistory = 50

// contextPairs is how many of the most recent Response/TaskPrompt pairs
// ExecuteWithContext folds into its prompt.
const contextPairs = 3

// Message is one turn of a session's conversation.
type Message struct {
	Role      string // "user", "assistant", "system"
	Content   string
	Timestamp time.Time
}

// Client is the underlying model backend a Session drives. It is kept
// separate from Session so tests and the identity-establishment path can
// supply a fake.
type Client interface {
	Send(prompt string) (string, error)
}

// Session is one agent's working context.
type Session struct {
	mu sync.RWMutex

	ID          string
	AgentRole   role.Name
	WorkingDir  string
	Status      Status
	CurrentTask string
	SpawnedAt   time.Time
	LastActive  time.Time
	history     []Message
	active      bool

	client     Client
	identityOK uint32 // set via atomic.CompareAndSwap by EstablishIdentityOnce
}

// New creates a Session for the given role, rooted at workingDir.
func New(r role.Name, workingDir string) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		AgentRole:  r,
		WorkingDir: workingDir,
		Status:     StatusStarting,
		SpawnedAt:  now,
		LastActive: now,
		active:     true,
	}
}

// SetClient attaches the model backend SendMessage/ExecuteWithContext will
// drive. Sessions built without one (e.g. in tests exercising only history
// bookkeeping) reject sends with an explicit error.
func (s *Session) SetClient(c Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = c
}

// Append records a conversation turn, compacting the oldest entries once
// the ring exceeds maxHistory.
func (s *Session) Append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, Message{Role: role, Content: content, Timestamp: time.Now()})
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
	s.LastActive = time.Now()
}

// History returns a copy of the session's conversation so far.
func (s *Session) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.history...)
}

// SetStatus updates the session's lifecycle status.
func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	s.LastActive = time.Now()
}

// GetStatus reads the current status.
func (s *Session) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// SetCurrentTask records which task the session is presently working.
func (s *Session) SetCurrentTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentTask = taskID
	s.LastActive = time.Now()
}

// IdleFor reports how long the session has gone without activity.
func (s *Session) IdleFor() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.LastActive)
}

// IsActive reports whether Shutdown has been called yet.
func (s *Session) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Shutdown marks the session inactive. Idempotent.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.Status = StatusDisconnected
}

var errNoClient = fmt.Errorf("session has no backend client attached")

// SendMessage drives the session's client with prompt. The caller is
// responsible for recording both halves of the exchange into history via
// Append; SendMessage itself appends nothing.
func (s *Session) SendMessage(prompt string) (string, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil {
		return "", errNoClient
	}
	return client.Send(prompt)
}

// ExecuteWithContext builds a prompt from the session's most recent
// Response/TaskPrompt pairs (up to contextPairs of them) plus a structured
// block naming the current task, then drives the client.
func (s *Session) ExecuteWithContext(task tasks.Task) (string, error) {
	s.mu.Lock()
	s.LastActive = time.Now()
	recent := recentPairs(s.history, contextPairs)
	s.mu.Unlock()

	var b strings.Builder
	for _, m := range recent {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&b, "TASK: %s\nPRIORITY: %s\nTYPE: %s\n", task.Description, task.Priority, task.Type)
	if task.Details != "" {
		fmt.Fprintf(&b, "DETAILS: %s\n", task.Details)
	}

	return s.SendMessage(b.String())
}

// recentPairs returns up to n*2 of the most recent history entries,
// preserving order.
func recentPairs(history []Message, n int) []Message {
	want := n * 2
	if len(history) <= want {
		return history
	}
	return history[len(history)-want:]
}

// identityPromptTemplate is kept under ~200 tokens: names role, workspace,
// specialization, boundary, and the required response header format.
const identityPromptTemplate = "You are the %s agent, working in %s. " +
	"Stay strictly within %s specialization; delegate anything outside it. " +
	"Every response must begin with:\nAGENT: %s\nWORKSPACE: %s\nSCOPE: <one-line assessment>"

// EstablishIdentityOnce sends the identity prompt at most once per session
// lifetime, regardless of outcome. Success is decided by the agent header
// and role name being present in the returned text.
func (s *Session) EstablishIdentityOnce() (bool, error) {
	if !atomic.CompareAndSwapUint32(&s.identityOK, 0, 1) {
		return false, fmt.Errorf("identity already established for session %s", s.ID)
	}

	prompt := fmt.Sprintf(identityPromptTemplate, s.AgentRole, s.WorkingDir, s.AgentRole, s.AgentRole, s.WorkingDir)
	resp, err := s.SendMessage(prompt)
	if err != nil {
		return false, err
	}

	return strings.Contains(resp, "AGENT:") && strings.Contains(strings.ToLower(resp), strings.ToLower(string(s.AgentRole))), nil
}
