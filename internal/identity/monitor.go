// Package identity detects when an agent's natural-language output drifts
// away from its declared role, and issues corrections back into the
// session before the agent continues.
package identity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ccswarm/ccswarm/internal/role"
)

// Status classifies one response against the agent's expected role.
type Status int

const (
	// Healthy means the response carries the expected header and role.
	Healthy Status = iota
	// DriftDetected means the header is missing or names the wrong role.
	DriftDetected
	// BoundaryViolation means the response discusses a forbidden topic
	// for this role, regardless of the header.
	BoundaryViolation
	// CriticalFailure means three consecutive Drift/Boundary results were
	// observed; the session is unusable until an operator resets it.
	CriticalFailure
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case DriftDetected:
		return "drift_detected"
	case BoundaryViolation:
		return "boundary_violation"
	case CriticalFailure:
		return "critical_failure"
	default:
		return "unknown"
	}
}

// headerPattern matches the three-line identity header:
//
//	AGENT: <role>
//	WORKSPACE: <path>
//	SCOPE: <one-line assessment>
var headerPattern = regexp.MustCompile(`(?m)^AGENT:\s*(\S+)\s*$[\r\n]+^WORKSPACE:\s*(.+)\s*$[\r\n]+^SCOPE:\s*(.+)\s*$`)

// Header is a parsed identity header.
type Header struct {
	Role      string
	Workspace string
	Scope     string
}

// ParseHeader looks for the three-line header anywhere in response and
// reports whether it was found.
func ParseHeader(response string) (Header, bool) {
	m := headerPattern.FindStringSubmatch(response)
	if m == nil {
		return Header{}, false
	}
	return Header{Role: m[1], Workspace: strings.TrimSpace(m[2]), Scope: strings.TrimSpace(m[3])}, true
}

// Result is one classification of an agent response.
type Result struct {
	Status Status
	Header Header
	Reason string
}

// Monitor tracks one agent's recent classification history to detect
// CriticalFailure after three consecutive unhealthy results.
type Monitor struct {
	expectedRole role.Name
	workspace    string
	boundary     *role.Boundary
	consecutive  int
	unusable     bool
}

// NewMonitor builds a Monitor watching for drift away from expectedRole.
func NewMonitor(expectedRole role.Name, workspace string, boundary *role.Boundary) *Monitor {
	return &Monitor{expectedRole: expectedRole, workspace: workspace, boundary: boundary}
}

// Unusable reports whether a prior CriticalFailure has locked this
// monitor's session; it stays locked until Reset is called.
func (m *Monitor) Unusable() bool { return m.unusable }

// Reset clears a CriticalFailure lock. Intended to be called only by an
// operator action, never automatically.
func (m *Monitor) Reset() {
	m.consecutive = 0
	m.unusable = false
}

// Classify inspects one agent response and updates the consecutive-failure
// counter.
func (m *Monitor) Classify(response string) Result {
	if m.boundary != nil && m.boundary.ContainsForbiddenTopic(response) {
		m.consecutive++
		return m.finalize(Result{Status: BoundaryViolation, Reason: "response discusses a forbidden topic for this role"})
	}

	header, ok := ParseHeader(response)
	if !ok {
		m.consecutive++
		return m.finalize(Result{Status: DriftDetected, Reason: "missing identity header"})
	}
	if !strings.EqualFold(header.Role, string(m.expectedRole)) {
		m.consecutive++
		return m.finalize(Result{Status: DriftDetected, Header: header, Reason: fmt.Sprintf("header names role %q, expected %q", header.Role, m.expectedRole)})
	}

	m.consecutive = 0
	return Result{Status: Healthy, Header: header}
}

func (m *Monitor) finalize(r Result) Result {
	if m.consecutive >= 3 {
		m.unusable = true
		r.Status = CriticalFailure
		r.Reason = "three consecutive drift/boundary results"
	}
	return r
}

// CorrectionPrompt builds the templated reminder an agent should receive
// on the same session after a Drift result, before continuing.
func (m *Monitor) CorrectionPrompt() string {
	return fmt.Sprintf(
		"Identity reminder: you are the %s agent, working in %s. "+
			"Every response must begin with:\nAGENT: %s\nWORKSPACE: %s\nSCOPE: <one-line assessment>\n"+
			"Stay within your role's specialization.",
		m.expectedRole, m.workspace, m.expectedRole, m.workspace,
	)
}
