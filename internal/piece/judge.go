package piece

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// MatchMethod records which evaluation phase produced a JudgeResult.
type MatchMethod string

const (
	MatchStepTag   MatchMethod = "step_tag"
	MatchSimple    MatchMethod = "simple_condition"
	MatchAI        MatchMethod = "ai_judge"
	MatchAggregate MatchMethod = "aggregate"
	MatchNone      MatchMethod = "no_match"
)

// JudgeResult is the outcome of evaluating a Movement's rules against its
// output.
type JudgeResult struct {
	MatchedRuleIndex int // -1 if nothing matched
	Method           MatchMethod
	Confidence       float64
	Explanation      string
}

// JudgeConfig tunes the ai(...) heuristic phase.
type JudgeConfig struct {
	EnableAIJudge        bool
	AIConfidenceThreshold float64
}

// DefaultJudgeConfig matches the evaluator's defaults: AI judging on, 0.7
// confidence required to accept an ai(...) match.
func DefaultJudgeConfig() JudgeConfig {
	return JudgeConfig{EnableAIJudge: true, AIConfidenceThreshold: 0.7}
}

var stepTagPattern = regexp.MustCompile(`\[STEP:(\d+)\]`)

// Judge evaluates a Movement's output against its Rules and picks the
// next Movement. Five phases run in order, each one a shot at a
// confident answer before falling through to the next:
//
//  1. Aggregate conditions (all/any) over parallel sub-movement outputs
//  2. [STEP:N] tags the agent was asked to emit
//  3. Simple string conditions against a small built-in vocabulary
//  4. ai("...") heuristic: word-overlap against the output
//  5. Fallback to the first success/complete/done/default rule
type Judge struct {
	config JudgeConfig
}

// NewJudge builds a Judge with the given config.
func NewJudge(config JudgeConfig) *Judge {
	return &Judge{config: config}
}

// GenerateTagInstructions builds the prompt suffix asking an agent to
// emit one [STEP:N] tag describing its result.
func GenerateTagInstructions(rules []MovementRule) string {
	if len(rules) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n--- Status Output Instructions ---\n")
	b.WriteString("After completing your task, output ONE of the following status tags ")
	b.WriteString("on its own line to indicate the result:\n\n")
	for i, r := range rules {
		b.WriteString(fmt.Sprintf("[STEP:%d] - %s\n", i, conditionDescription(r.Condition)))
	}
	b.WriteString("\nOutput exactly one tag that best describes your result.\n")
	return b.String()
}

func conditionDescription(c RuleCondition) string {
	switch {
	case c.AI != "":
		return c.AI
	case c.Compound != nil:
		return "compound condition"
	default:
		return c.Simple
	}
}

// Evaluate runs the five phases against output and, when parallelOutputs
// is non-nil, also checks aggregate conditions across it first.
func (j *Judge) Evaluate(output string, rules []MovementRule, parallelOutputs map[string]string) JudgeResult {
	if len(rules) == 0 {
		return JudgeResult{MatchedRuleIndex: -1, Method: MatchNone, Confidence: 1.0, Explanation: "No rules defined (terminal movement)"}
	}

	if parallelOutputs != nil {
		if r, ok := j.evaluateAggregate(rules, parallelOutputs); ok {
			return r
		}
	}

	if r, ok := j.evaluateStepTags(output, rules); ok {
		return r
	}

	if r, ok := j.evaluateSimpleConditions(output, rules); ok {
		return r
	}

	if j.config.EnableAIJudge {
		if r, ok := j.evaluateAIConditions(output, rules); ok {
			return r
		}
	}

	if r, ok := j.evaluateFallback(rules); ok {
		return r
	}

	return JudgeResult{MatchedRuleIndex: -1, Method: MatchNone, Confidence: 0, Explanation: "No rule matched output"}
}

func (j *Judge) evaluateStepTags(output string, rules []MovementRule) (JudgeResult, bool) {
	m := stepTagPattern.FindStringSubmatch(output)
	if m == nil {
		return JudgeResult{}, false
	}
	index := 0
	if _, err := fmt.Sscanf(m[1], "%d", &index); err != nil {
		return JudgeResult{}, false
	}
	if index < 0 || index >= len(rules) {
		return JudgeResult{}, false
	}
	return JudgeResult{
		MatchedRuleIndex: index,
		Method:           MatchStepTag,
		Confidence:       1.0,
		Explanation:      fmt.Sprintf("Matched [STEP:%d] tag in output", index),
	}, true
}

func (j *Judge) evaluateSimpleConditions(output string, rules []MovementRule) (JudgeResult, bool) {
	outputLower := strings.ToLower(output)

	type indexed struct {
		index int
		rule  MovementRule
	}
	ordered := make([]indexed, len(rules))
	for i, r := range rules {
		ordered[i] = indexed{i, r}
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].rule.Priority > ordered[b].rule.Priority
	})

	for _, ir := range ordered {
		if ir.rule.Condition.AI != "" || ir.rule.Condition.Compound != nil {
			continue
		}
		condition := ir.rule.Condition.Simple
		if matchesSimpleCondition(condition, outputLower) {
			return JudgeResult{
				MatchedRuleIndex: ir.index,
				Method:           MatchSimple,
				Confidence:       0.8,
				Explanation:      fmt.Sprintf("Simple condition '%s' matched in output", condition),
			}, true
		}
	}
	return JudgeResult{}, false
}

func matchesSimpleCondition(condition, outputLower string) bool {
	switch condition {
	case "success", "complete", "done":
		return strings.Contains(outputLower, "success") ||
			strings.Contains(outputLower, "completed") ||
			strings.Contains(outputLower, "done") ||
			(!strings.Contains(outputLower, "error") &&
				!strings.Contains(outputLower, "failed") &&
				!strings.Contains(outputLower, "failure"))
	case "failure", "error", "fail":
		return strings.Contains(outputLower, "error") ||
			strings.Contains(outputLower, "failed") ||
			strings.Contains(outputLower, "failure")
	case "needs_fix", "fixes_needed":
		return strings.Contains(outputLower, "fix") ||
			strings.Contains(outputLower, "issue") ||
			strings.Contains(outputLower, "problem")
	case "needs_clarification", "unclear":
		return strings.Contains(outputLower, "clarif") ||
			strings.Contains(outputLower, "unclear") ||
			strings.Contains(outputLower, "ambiguous")
	case "test_failure", "tests_failed":
		return strings.Contains(outputLower, "test failed") ||
			strings.Contains(outputLower, "tests failed") ||
			strings.Contains(outputLower, "test failure")
	default:
		return strings.Contains(outputLower, strings.ToLower(condition))
	}
}

func (j *Judge) evaluateAIConditions(output string, rules []MovementRule) (JudgeResult, bool) {
	for i, r := range rules {
		if r.Condition.AI == "" {
			continue
		}
		matched, confidence, explanation := aiJudgeEvaluate(r.Condition.AI, output)
		if matched && confidence >= j.config.AIConfidenceThreshold {
			return JudgeResult{
				MatchedRuleIndex: i,
				Method:           MatchAI,
				Confidence:       confidence,
				Explanation:      explanation,
			}, true
		}
	}
	return JudgeResult{}, false
}

// aiJudgeEvaluate is the heuristic stand-in for an LLM-based judge:
// content-word overlap between the condition and the output. Words of
// length <= 3 are dropped as noise (articles, prepositions).
func aiJudgeEvaluate(condition, output string) (matched bool, confidence float64, explanation string) {
	var conditionWords []string
	for _, w := range strings.Fields(condition) {
		if len(w) > 3 {
			conditionWords = append(conditionWords, w)
		}
	}
	outputLower := strings.ToLower(output)
	matchedWords := 0
	for _, w := range conditionWords {
		if strings.Contains(outputLower, strings.ToLower(w)) {
			matchedWords++
		}
	}
	if len(conditionWords) == 0 {
		confidence = 0
	} else {
		confidence = float64(matchedWords) / float64(len(conditionWords))
	}
	matched = confidence >= 0.5
	explanation = fmt.Sprintf("Heuristic AI judge: %d/%d condition words found in output (threshold: 0.5)", matchedWords, len(conditionWords))
	return matched, confidence, explanation
}

func (j *Judge) evaluateAggregate(rules []MovementRule, parallelOutputs map[string]string) (JudgeResult, bool) {
	for i, r := range rules {
		c := r.Condition.Compound
		if c == nil {
			continue
		}
		var matched bool
		switch {
		case len(c.All) > 0:
			matched = true
			for _, cond := range c.All {
				allContain := true
				for _, out := range parallelOutputs {
					if !strings.Contains(strings.ToLower(out), strings.ToLower(cond)) {
						allContain = false
						break
					}
				}
				if !allContain {
					matched = false
					break
				}
			}
		case len(c.Any) > 0:
			for _, cond := range c.Any {
				for _, out := range parallelOutputs {
					if strings.Contains(strings.ToLower(out), strings.ToLower(cond)) {
						matched = true
						break
					}
				}
				if matched {
					break
				}
			}
		}
		if matched {
			return JudgeResult{
				MatchedRuleIndex: i,
				Method:           MatchAggregate,
				Confidence:       1.0,
				Explanation:      fmt.Sprintf("Aggregate condition matched across %d parallel outputs", len(parallelOutputs)),
			}, true
		}
	}
	return JudgeResult{}, false
}

func (j *Judge) evaluateFallback(rules []MovementRule) (JudgeResult, bool) {
	for i, r := range rules {
		if r.Condition.AI != "" || r.Condition.Compound != nil {
			continue
		}
		switch r.Condition.Simple {
		case "success", "complete", "done", "default":
			return JudgeResult{
				MatchedRuleIndex: i,
				Method:           MatchSimple,
				Confidence:       0.5,
				Explanation:      fmt.Sprintf("Fallback to '%s' rule", r.Condition.Simple),
			}, true
		}
	}
	return JudgeResult{}, false
}

// ParsedCondition is the decoded form of a rule condition string parsed
// from terse ai(...)/all(...)/any(...) syntax, used when conditions are
// authored as plain strings rather than YAML mappings.
type ParsedCondition struct {
	Kind  string // "simple", "ai", "all", "any"
	Value string
}

// ParseCondition decodes fn("arg")-style condition syntax.
func ParseCondition(condition string) ParsedCondition {
	trimmed := strings.TrimSpace(condition)
	for _, fn := range []string{"ai", "all", "any"} {
		if inner, ok := extractFunctionArg(trimmed, fn); ok {
			return ParsedCondition{Kind: fn, Value: inner}
		}
	}
	return ParsedCondition{Kind: "simple", Value: trimmed}
}

func extractFunctionArg(input, fnName string) (string, bool) {
	prefix := fnName + "("
	if !strings.HasPrefix(input, prefix) || !strings.HasSuffix(input, ")") {
		return "", false
	}
	inner := strings.TrimSpace(input[len(prefix) : len(input)-1])
	if strings.HasPrefix(inner, `"`) && strings.HasSuffix(inner, `"`) && len(inner) >= 2 {
		inner = inner[1 : len(inner)-1]
	}
	return inner, true
}
