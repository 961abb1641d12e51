package piece

import (
	"strings"
	"testing"
)

func simpleRule(condition, next string) MovementRule {
	return MovementRule{Condition: RuleCondition{Simple: condition}, Next: next}
}

func aiRule(condition, next string) MovementRule {
	return MovementRule{Condition: RuleCondition{AI: condition}, Next: next}
}

func TestEvaluateStepTag(t *testing.T) {
	j := NewJudge(DefaultJudgeConfig())
	rules := []MovementRule{simpleRule("approved", "deploy"), simpleRule("needs_fix", "fix")}

	result := j.Evaluate("Task completed successfully.\n[STEP:0]\nAll good.", rules, nil)
	if result.MatchedRuleIndex != 0 || result.Method != MatchStepTag {
		t.Fatalf("expected step tag match on rule 0, got %+v", result)
	}

	result2 := j.Evaluate("Found issues.\n[STEP:1]\nNeeds fixing.", rules, nil)
	if result2.MatchedRuleIndex != 1 || result2.Method != MatchStepTag {
		t.Fatalf("expected step tag match on rule 1, got %+v", result2)
	}
}

func TestEvaluateSimpleConditionSuccess(t *testing.T) {
	j := NewJudge(DefaultJudgeConfig())
	rules := []MovementRule{simpleRule("success", "next-step"), simpleRule("failure", "error-handler")}

	result := j.Evaluate("All tasks completed without issues.", rules, nil)
	if result.MatchedRuleIndex != 0 || result.Method != MatchSimple {
		t.Fatalf("expected success match, got %+v", result)
	}
}

func TestEvaluateSimpleConditionFailure(t *testing.T) {
	j := NewJudge(DefaultJudgeConfig())
	rules := []MovementRule{simpleRule("failure", "error-handler"), simpleRule("success", "next-step")}

	result := j.Evaluate("Build failed with 3 errors.", rules, nil)
	if result.MatchedRuleIndex != 0 || result.Method != MatchSimple {
		t.Fatalf("expected failure match, got %+v", result)
	}
}

func TestEvaluateAICondition(t *testing.T) {
	j := NewJudge(DefaultJudgeConfig())
	rules := []MovementRule{aiRule("code quality meets standards", "deploy")}

	result := j.Evaluate("The code quality is excellent and meets all standards.", rules, nil)
	if result.MatchedRuleIndex != 0 || result.Method != MatchAI {
		t.Fatalf("expected ai judge match, got %+v", result)
	}
}

func TestEvaluateAggregateAll(t *testing.T) {
	j := NewJudge(DefaultJudgeConfig())
	rules := []MovementRule{{
		Condition: RuleCondition{Compound: &CompoundCondition{All: []string{"approved"}}},
		Next:      "deploy",
	}}
	parallel := map[string]string{
		"reviewer-1": "Code approved, LGTM",
		"reviewer-2": "Approved with minor nits",
	}
	result := j.Evaluate("", rules, parallel)
	if result.MatchedRuleIndex != 0 || result.Method != MatchAggregate {
		t.Fatalf("expected aggregate all match, got %+v", result)
	}
}

func TestEvaluateAggregateAny(t *testing.T) {
	j := NewJudge(DefaultJudgeConfig())
	rules := []MovementRule{{
		Condition: RuleCondition{Compound: &CompoundCondition{Any: []string{"rejected"}}},
		Next:      "fix",
	}}
	parallel := map[string]string{
		"reviewer-1": "Code approved, LGTM",
		"reviewer-2": "Code rejected - security issue",
	}
	result := j.Evaluate("", rules, parallel)
	if result.MatchedRuleIndex != 0 || result.Method != MatchAggregate {
		t.Fatalf("expected aggregate any match, got %+v", result)
	}
}

func TestGenerateTagInstructions(t *testing.T) {
	rules := []MovementRule{
		simpleRule("approved", "deploy"),
		simpleRule("needs_fix", "fix"),
		simpleRule("blocked", "abort"),
	}
	instructions := GenerateTagInstructions(rules)
	for _, want := range []string{"[STEP:0]", "[STEP:1]", "[STEP:2]", "approved", "needs_fix", "blocked"} {
		if !strings.Contains(instructions, want) {
			t.Errorf("expected instructions to contain %q, got %q", want, instructions)
		}
	}
}

func TestParseCondition(t *testing.T) {
	cases := []struct {
		in   string
		kind string
		val  string
	}{
		{"success", "simple", "success"},
		{`ai("code quality is good")`, "ai", "code quality is good"},
		{`all("approved")`, "all", "approved"},
		{`any("rejected")`, "any", "rejected"},
	}
	for _, c := range cases {
		got := ParseCondition(c.in)
		if got.Kind != c.kind || got.Value != c.val {
			t.Errorf("ParseCondition(%q) = %+v, want {%s %s}", c.in, got, c.kind, c.val)
		}
	}
}

func TestEvaluateEmptyRules(t *testing.T) {
	j := NewJudge(DefaultJudgeConfig())
	result := j.Evaluate("some output", nil, nil)
	if result.MatchedRuleIndex != -1 || result.Method != MatchNone {
		t.Fatalf("expected no match for empty rules, got %+v", result)
	}
}

func TestEvaluateFallbackToSuccess(t *testing.T) {
	j := NewJudge(DefaultJudgeConfig())
	rules := []MovementRule{
		aiRule("very specific condition nobody matches", "specific"),
		simpleRule("success", "default-next"),
	}
	result := j.Evaluate("x", rules, nil)
	if result.MatchedRuleIndex != 1 {
		t.Fatalf("expected fallback to rule 1, got %+v", result)
	}
}
