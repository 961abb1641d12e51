package role

import (
	"fmt"
	"regexp"
	"strings"
)

// Decision is the outcome of evaluating a task against a Boundary.
type Decision int

const (
	// Accept means the task is within the role's specialization.
	Accept Decision = iota
	// Delegate means the task clearly belongs to another role.
	Delegate
	// Clarify means the task is ambiguous and needs more information
	// before any agent should act on it.
	Clarify
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Delegate:
		return "delegate"
	case Clarify:
		return "clarify"
	default:
		return "unknown"
	}
}

// Evaluation is the full result of Boundary.Evaluate.
type Evaluation struct {
	Decision   Decision
	Reason     string
	TargetRole Name   // set when Decision == Delegate
	Suggestion string // set when Decision == Delegate
	Questions  []string // set when Decision == Clarify
}

// Boundary enforces a role's allowed/forbidden task patterns.
type Boundary struct {
	role      Name
	allowed   []*regexp.Regexp
	forbidden []*regexp.Regexp
}

// NewBoundary compiles the fixed pattern set for role.
func NewBoundary(r Name) *Boundary {
	allowed, forbidden := patternsForRole(r)
	return &Boundary{role: r, allowed: compile(allowed), forbidden: compile(forbidden)}
}

// Role returns the role this boundary was built for.
func (b *Boundary) Role() Name { return b.role }

// ContainsForbiddenTopic reports whether text matches one of this role's
// forbidden-topic patterns, independent of the full Evaluate decision.
// Used by the identity monitor to classify BoundaryViolation.
func (b *Boundary) ContainsForbiddenTopic(text string) bool {
	return matchesAny(b.forbidden, text)
}

// Evaluate classifies a task's description+details text.
func (b *Boundary) Evaluate(description, details string) Evaluation {
	text := description
	if details != "" {
		text = description + " " + details
	}

	if matchesAny(b.allowed, text) {
		return Evaluation{Decision: Accept, Reason: "task is within my specialization"}
	}

	if matchesAny(b.forbidden, text) {
		target := DetermineAgent(text)
		return Evaluation{
			Decision:   Delegate,
			Reason:     "task is outside my specialization",
			TargetRole: target,
			Suggestion: delegationMessage(description, text, target),
		}
	}

	return Evaluation{
		Decision:  Clarify,
		Reason:    "task scope is unclear",
		Questions: clarificationQuestions(b.role),
	}
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func compile(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

var (
	backendTargetPatterns  = compile([]string{`(?i)(api|backend|server|database|sql|auth|endpoint)`, `(?i)(rest|graphql|microservice|grpc)`})
	frontendTargetPatterns = compile([]string{`(?i)(ui|frontend|component|react|vue|angular)`, `(?i)(css|styling|tailwind|sass|layout)`})
	devopsTargetPatterns   = compile([]string{`(?i)(docker|kubernetes|k8s|container)`, `(?i)(deploy|infrastructure|terraform|aws|gcp|azure)`, `(?i)(ci/cd|pipeline|jenkins|github.actions)`})
	qaTargetPatterns       = compile([]string{`(?i)(test|testing|qa|quality|spec)`, `(?i)(cypress|jest|playwright|selenium)`, `(?i)(coverage|automation|e2e|integration)`})
)

// DetermineAgent decides which role should actually own a piece of task
// text, checked in backend -> frontend -> devops -> qa order, defaulting
// to Master when nothing matches.
func DetermineAgent(text string) Name {
	switch {
	case matchesAny(backendTargetPatterns, text):
		return Backend
	case matchesAny(frontendTargetPatterns, text):
		return Frontend
	case matchesAny(devopsTargetPatterns, text):
		return DevOps
	case matchesAny(qaTargetPatterns, text):
		return QA
	default:
		return Master
	}
}

func delegationMessage(description, text string, target Name) string {
	return fmt.Sprintf(
		"Task %q appears to be %s work based on the content. Recommending delegation to %s for proper handling.",
		description, categorizeTaskType(text), target.AgentName(),
	)
}

// categorizeTaskType gives a short human label for task text, used only to
// phrase delegation suggestions.
func categorizeTaskType(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "api") || strings.Contains(lower, "backend"):
		return "backend API"
	case strings.Contains(lower, "ui") || strings.Contains(lower, "component"):
		return "frontend UI"
	case strings.Contains(lower, "deploy") || strings.Contains(lower, "infrastructure"):
		return "DevOps/infrastructure"
	case strings.Contains(lower, "test") || strings.Contains(lower, "qa"):
		return "QA/testing"
	default:
		return "specialized"
	}
}

func clarificationQuestions(r Name) []string {
	return []string{
		fmt.Sprintf("Is this task specifically related to %s?", r),
		"What components or systems will this task modify?",
		"Are there any API, database, or infrastructure changes involved?",
		fmt.Sprintf("Should this be handled by a %s specialist?", r),
	}
}
