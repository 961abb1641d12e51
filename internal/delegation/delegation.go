// Package delegation picks which role should own a newly submitted task,
// before any agent has looked at it. This is distinct from role.Boundary,
// which an agent consults after receiving a task to decide whether it is
// actually in its lane.
package delegation

import (
	"strings"

	"github.com/ccswarm/ccswarm/internal/role"
	"github.com/ccswarm/ccswarm/internal/tasks"
)

// alpha weights the keyword score against the task-type prior in the
// hybrid scoring formula: alpha*score + (1-alpha)*prior.
const alpha = 0.7

// Decision is the outcome of routing a task to a role.
type Decision struct {
	TargetRole role.Name
	Confidence float64
	Reason     string
}

// Engine routes tasks to roles using keyword-weighted scoring blended with
// a task-type prior.
type Engine struct{}

// New builds a delegation Engine.
func New() *Engine { return &Engine{} }

// roleKeywords reuses the same substance as role.DetermineAgent's target
// groups: each matching keyword contributes one point to that role's score.
var roleKeywords = map[role.Name][]string{
	role.Backend:  {"api", "backend", "server", "database", "sql", "auth", "endpoint", "rest", "graphql", "microservice", "grpc"},
	role.Frontend: {"ui", "frontend", "component", "react", "vue", "angular", "css", "styling", "tailwind", "sass", "layout"},
	role.DevOps:   {"docker", "kubernetes", "k8s", "container", "deploy", "infrastructure", "terraform", "aws", "gcp", "azure", "ci/cd", "pipeline", "jenkins"},
	role.QA:       {"test", "testing", "qa", "quality", "spec", "cypress", "jest", "playwright", "selenium", "coverage", "automation", "e2e"},
}

// rolePriorityForType resolves round-two ties: for Development tasks
// Backend beats Frontend beats DevOps beats QA beats Master; for Testing
// tasks the order is inverted.
func rolePriorityForType(t tasks.Type) []role.Name {
	if t == tasks.Testing {
		return []role.Name{role.Master, role.QA, role.DevOps, role.Frontend, role.Backend}
	}
	return []role.Name{role.Backend, role.Frontend, role.DevOps, role.QA, role.Master}
}

// priorRoleForType is the fallback role when every candidate scores zero.
func priorRoleForType(t tasks.Type) role.Name {
	switch t {
	case tasks.Development, tasks.Feature, tasks.Bugfix:
		return role.Backend
	case tasks.Testing:
		return role.QA
	case tasks.Infrastructure:
		return role.DevOps
	case tasks.Documentation:
		return role.Master
	case tasks.Review:
		return role.QA
	default:
		return role.Master
	}
}

func keywordScore(text string, role role.Name) float64 {
	var score float64
	lower := strings.ToLower(text)
	for _, kw := range roleKeywords[role] {
		if strings.Contains(lower, kw) {
			score++
		}
	}
	return score
}

// Delegate scores the task against every role's keyword set, blends the
// normalized top score with the task-type prior, and returns the winner
// with a confidence in [0,1].
func (e *Engine) Delegate(t tasks.Task) Decision {
	text := t.Description
	if t.Details != "" {
		text = text + " " + t.Details
	}

	candidates := []role.Name{role.Backend, role.Frontend, role.DevOps, role.QA, role.Master}
	scores := make(map[role.Name]float64, len(candidates))
	var maxScore float64
	for _, r := range candidates {
		s := keywordScore(text, r)
		scores[r] = s
		if s > maxScore {
			maxScore = s
		}
	}

	if maxScore == 0 {
		prior := priorRoleForType(t.Type)
		return Decision{TargetRole: prior, Confidence: 1 - alpha, Reason: "no keyword matches; used task-type prior"}
	}

	prior := priorRoleForType(t.Type)
	blended := make(map[role.Name]float64, len(candidates))
	for _, r := range candidates {
		normalizedScore := scores[r] / maxScore
		var priorWeight float64
		if r == prior {
			priorWeight = 1
		}
		blended[r] = alpha*normalizedScore + (1-alpha)*priorWeight
	}

	order := rolePriorityForType(t.Type)
	best, runnerUp := pickTopTwo(blended, order)

	confidence := blended[best] - blended[runnerUp]
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Decision{
		TargetRole: best,
		Confidence: confidence,
		Reason:     "keyword score blended with task-type prior",
	}
}

// pickTopTwo returns the highest- and second-highest-scoring roles, with
// ties broken by order (earlier entries in order win ties).
func pickTopTwo(scores map[role.Name]float64, order []role.Name) (best, runnerUp role.Name) {
	best, runnerUp = order[0], order[0]
	bestScore, runnerUpScore := -1.0, -1.0

	for _, r := range order {
		s := scores[r]
		if s > bestScore {
			runnerUp, runnerUpScore = best, bestScore
			best, bestScore = r, s
		} else if s > runnerUpScore {
			runnerUp, runnerUpScore = r, s
		}
	}
	return best, runnerUp
}
