package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/ccswarm/ccswarm/internal/role"
	"github.com/ccswarm/ccswarm/internal/tasks"
)

type fakeClient struct {
	responses []string
	calls     int
}

func (f *fakeClient) Send(prompt string) (string, error) {
	if f.calls >= len(f.responses) {
		return "", fmt.Errorf("no more canned responses")
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func TestNewSessionDefaults(t *testing.T) {
	s := New(role.Backend, "/work/repo")
	if s.Status != StatusStarting {
		t.Errorf("expected StatusStarting, got %s", s.Status)
	}
	if s.ID == "" {
		t.Error("expected generated ID")
	}
}

func TestAppendTruncatesHistory(t *testing.T) {
	s := New(role.Backend, "/work/repo")
	for i := 0; i < maxHistory+20; i++ {
		s.Append("user", "message")
	}
	if len(s.History()) != maxHistory {
		t.Errorf("expected history capped at %d, got %d", maxHistory, len(s.History()))
	}
}

func TestIdleFor(t *testing.T) {
	s := New(role.Backend, "/work/repo")
	time.Sleep(2 * time.Millisecond)
	if s.IdleFor() <= 0 {
		t.Error("expected non-zero idle duration")
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	s := m.Create(role.QA, "/work/repo")

	got, err := m.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("expected to retrieve created session, err=%v", err)
	}

	if len(m.List()) != 1 {
		t.Errorf("expected 1 session listed, got %d", len(m.List()))
	}

	if err := m.Close(s.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := m.Get(s.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after close, got %v", err)
	}
}

func TestSendMessageWithoutClientErrors(t *testing.T) {
	s := New(role.Backend, "/work/repo")
	if _, err := s.SendMessage("hello"); err == nil {
		t.Error("expected error sending without a client attached")
	}
}

func TestEstablishIdentityOnceSucceedsOnValidHeader(t *testing.T) {
	s := New(role.Backend, "/work/repo")
	s.SetClient(&fakeClient{responses: []string{"AGENT: backend\nWORKSPACE: /work/repo\nSCOPE: ready\n"}})

	ok, err := s.EstablishIdentityOnce()
	if err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}
}

func TestEstablishIdentityOnceRunsOnce(t *testing.T) {
	s := New(role.Backend, "/work/repo")
	s.SetClient(&fakeClient{responses: []string{"AGENT: backend\nWORKSPACE: /work/repo\nSCOPE: ready\n", "second"}})

	if _, err := s.EstablishIdentityOnce(); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if _, err := s.EstablishIdentityOnce(); err == nil {
		t.Error("expected second call to report already established")
	}
}

func TestExecuteWithContextFoldsRecentHistoryAndTaskBlock(t *testing.T) {
	s := New(role.Backend, "/work/repo")
	client := &fakeClient{responses: []string{"AGENT: backend\nWORKSPACE: /work/repo\nSCOPE: ok\n\ndone"}}
	s.SetClient(client)

	s.Append("user", "earlier prompt")
	s.Append("assistant", "earlier response")

	task := *tasks.NewTask("add logging", "", tasks.Medium, tasks.Development)
	resp, err := s.ExecuteWithContext(task)
	if err != nil {
		t.Fatalf("ExecuteWithContext failed: %v", err)
	}
	if resp == "" {
		t.Error("expected a non-empty response")
	}
}
