package service

import (
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/Policy-Gate/policygate/internal/domain/policy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func floatPtr(v float64) *float64 { return &v }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(policy.NewCompiler(nil), testLogger())
}

func docWithRules(name string, rules ...policy.Rule) *policy.Document {
	return &policy.Document{
		Version:     policy.SchemaVersion,
		Name:        name,
		Scope:       policy.ScopeGlobal,
		ScopeTarget: policy.ScopeTargetGlobal,
		Rules:       rules,
	}
}

func complexityRule(id string, priority int, op policy.Operator, threshold float64, effect policy.Effect) policy.Rule {
	return policy.Rule{
		ID:       id,
		Priority: priority,
		Conditions: []policy.Condition{
			{Type: policy.ConditionComplexity, Operator: op, Threshold: threshold},
		},
		Action: policy.Action{Effect: effect},
	}
}

func TestEngine_DefaultDenyWithNoRules(t *testing.T) {
	e := newTestEngine(t)

	d := e.Evaluate(policy.Request{})
	if d.Allowed {
		t.Error("empty engine must deny")
	}
	if d.Reason != policy.DefaultDenyReason {
		t.Errorf("Reason = %q, want %q", d.Reason, policy.DefaultDenyReason)
	}
}

func TestEngine_ThresholdEvaluation(t *testing.T) {
	e := newTestEngine(t)
	doc := docWithRules("base", complexityRule("allow-low", 10, policy.OpLT, 5, policy.EffectAllow))
	if err := e.LoadPolicy(doc, ""); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	d := e.Evaluate(policy.Request{Resource: policy.Resource{Complexity: floatPtr(3)}})
	if !d.Allowed {
		t.Errorf("complexity 3 should match lt 5 and allow, got %+v", d)
	}
	if d.MatchedRule == nil || d.MatchedRule.ID != "allow-low" {
		t.Errorf("MatchedRule = %+v, want allow-low", d.MatchedRule)
	}

	d = e.Evaluate(policy.Request{Resource: policy.Resource{Complexity: floatPtr(7)}})
	if d.Allowed {
		t.Errorf("complexity 7 should fall through to default deny, got %+v", d)
	}
	if d.MatchedRule != nil {
		t.Error("default decision must not name a matched rule")
	}
}

func TestEngine_PriorityOrderIndependentOfLoadOrder(t *testing.T) {
	req := policy.Request{Resource: policy.Resource{Complexity: floatPtr(10)}}

	// Both rules match; the higher-priority deny must win regardless of the
	// order the rules appear in the document.
	low := complexityRule("allow-anything", 1, policy.OpGTE, 0, policy.EffectAllow)
	high := complexityRule("deny-high", 100, policy.OpGT, 5, policy.EffectDeny)

	for _, rules := range [][]policy.Rule{{low, high}, {high, low}} {
		e := newTestEngine(t)
		if err := e.LoadPolicy(docWithRules("base", rules...), ""); err != nil {
			t.Fatalf("LoadPolicy() error: %v", err)
		}
		d := e.Evaluate(req)
		if d.Allowed || d.MatchedRule.ID != "deny-high" {
			t.Errorf("higher priority rule must win, got %+v", d)
		}
	}
}

func TestEngine_PriorityTiesBreakInLoadOrder(t *testing.T) {
	e := newTestEngine(t)
	doc := docWithRules("base",
		complexityRule("first", 10, policy.OpGTE, 0, policy.EffectAllow),
		complexityRule("second", 10, policy.OpGTE, 0, policy.EffectDeny),
	)
	if err := e.LoadPolicy(doc, ""); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	d := e.Evaluate(policy.Request{Resource: policy.Resource{Complexity: floatPtr(1)}})
	if d.MatchedRule == nil || d.MatchedRule.ID != "first" {
		t.Errorf("equal priorities must evaluate in document order, got %+v", d.MatchedRule)
	}
}

func TestEngine_FirstMatchWins(t *testing.T) {
	e := newTestEngine(t)
	doc := docWithRules("base",
		complexityRule("warn-mid", 20, policy.OpGTE, 5, policy.EffectWarn),
		complexityRule("allow-all", 10, policy.OpGTE, 0, policy.EffectAllow),
	)
	if err := e.LoadPolicy(doc, ""); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	d := e.Evaluate(policy.Request{Resource: policy.Resource{Complexity: floatPtr(6)}})
	if d.Effect != policy.EffectWarn {
		t.Errorf("Effect = %q, want warn (first match stops evaluation)", d.Effect)
	}
	if !d.Allowed {
		t.Error("warn decisions are allowed")
	}
}

func TestEngine_DisabledRulesSkipped(t *testing.T) {
	e := newTestEngine(t)
	off := false
	doc := docWithRules("base",
		policy.Rule{
			ID:       "disabled-deny",
			Priority: 100,
			Enabled:  &off,
			Action:   policy.Action{Effect: policy.EffectDeny},
		},
		complexityRule("allow-all", 10, policy.OpGTE, 0, policy.EffectAllow),
	)
	if err := e.LoadPolicy(doc, ""); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	d := e.Evaluate(policy.Request{Resource: policy.Resource{Complexity: floatPtr(1)}})
	if !d.Allowed {
		t.Errorf("disabled rule must not participate, got %+v", d)
	}
}

func TestEngine_NoConditionRuleAlwaysMatches(t *testing.T) {
	e := newTestEngine(t)
	doc := docWithRules("base", policy.Rule{
		ID:     "catch-all",
		Action: policy.Action{Effect: policy.EffectAllow},
	})
	if err := e.LoadPolicy(doc, ""); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	if d := e.Evaluate(policy.Request{}); !d.Allowed {
		t.Errorf("condition-free rule must match every request, got %+v", d)
	}
}

func TestEngine_MissingFieldsNeverError(t *testing.T) {
	e := newTestEngine(t)
	doc := docWithRules("base",
		policy.Rule{
			ID:       "needs-everything",
			Priority: 10,
			Conditions: []policy.Condition{
				{Type: policy.ConditionComplexity, Operator: policy.OpGT, Threshold: 1},
				{Type: policy.ConditionLabel, Labels: []string{"x"}},
				{Type: policy.ConditionAuthor, Roles: []string{"admin"}},
				{Type: policy.ConditionFilePattern, Patterns: []string{"*.go"}},
				{Type: policy.ConditionTimeWindow, StartHour: 0, EndHour: 24},
				{Type: policy.ConditionAgent, Agents: []string{"bot"}},
			},
			Action: policy.Action{Effect: policy.EffectAllow},
		},
	)
	if err := e.LoadPolicy(doc, ""); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	// Entirely empty request: every condition is a non-match, the engine
	// still answers with the default decision.
	d := e.Evaluate(policy.Request{})
	if d.Allowed {
		t.Error("empty request must fall through to default deny")
	}
}

func TestEngine_DocumentDefaultActionWins(t *testing.T) {
	e := newTestEngine(t)
	doc := docWithRules("base")
	doc.DefaultAction = &policy.Action{Effect: policy.EffectWarn, Reason: "unmatched"}
	if err := e.LoadPolicy(doc, ""); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	d := e.Evaluate(policy.Request{})
	if d.Effect != policy.EffectWarn || !d.Allowed {
		t.Errorf("document default action not honored: %+v", d)
	}
}

func TestEngine_ReloadReplacesTag(t *testing.T) {
	e := newTestEngine(t)

	if err := e.LoadPolicy(docWithRules("base",
		complexityRule("old", 10, policy.OpGTE, 0, policy.EffectDeny)), "t"); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}
	if err := e.LoadPolicy(docWithRules("base",
		complexityRule("new", 10, policy.OpGTE, 0, policy.EffectAllow)), "t"); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	if e.RuleCount() != 1 {
		t.Errorf("RuleCount() = %d, want 1 after reload", e.RuleCount())
	}
	d := e.Evaluate(policy.Request{Resource: policy.Resource{Complexity: floatPtr(1)}})
	if !d.Allowed || d.MatchedRule.ID != "new" {
		t.Errorf("reload must replace the tag's rules, got %+v", d)
	}
}

func TestEngine_UnloadPolicy(t *testing.T) {
	e := newTestEngine(t)
	if err := e.LoadPolicy(docWithRules("base",
		complexityRule("r", 10, policy.OpGTE, 0, policy.EffectAllow)), "t"); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	if !e.UnloadPolicy("t") {
		t.Error("UnloadPolicy() should report the tag was loaded")
	}
	if e.UnloadPolicy("t") {
		t.Error("second UnloadPolicy() should report nothing to unload")
	}
	if e.RuleCount() != 0 {
		t.Errorf("RuleCount() = %d, want 0 after unload", e.RuleCount())
	}
}

func TestEngine_CompileErrorRejectsWholeDocument(t *testing.T) {
	e := newTestEngine(t)
	doc := docWithRules("base",
		complexityRule("good", 10, policy.OpGTE, 0, policy.EffectAllow),
		policy.Rule{ID: "bad", Conditions: []policy.Condition{{Type: "mystery"}}, Action: policy.Action{Effect: policy.EffectAllow}},
	)

	if err := e.LoadPolicy(doc, ""); err == nil {
		t.Fatal("LoadPolicy() should fail on an unknown condition type")
	}
	if e.RuleCount() != 0 {
		t.Error("a failed load must not install any rules")
	}
}

func TestEngine_Determinism(t *testing.T) {
	e := newTestEngine(t)
	doc := docWithRules("base",
		complexityRule("deny-high", 100, policy.OpGT, 5, policy.EffectDeny),
		complexityRule("allow-rest", 10, policy.OpGTE, 0, policy.EffectAllow),
	)
	if err := e.LoadPolicy(doc, ""); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	req := policy.Request{Resource: policy.Resource{Complexity: floatPtr(9)}}
	first := e.Evaluate(req)
	for i := 0; i < 100; i++ {
		if got := e.Evaluate(req); got.Effect != first.Effect || got.MatchedRule.ID != first.MatchedRule.ID {
			t.Fatalf("evaluation %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

func TestEngine_DryRunMatchesEvaluate(t *testing.T) {
	e := newTestEngine(t)
	off := false
	doc := docWithRules("base",
		policy.Rule{ID: "skipped", Priority: 200, Enabled: &off, Action: policy.Action{Effect: policy.EffectDeny}},
		complexityRule("deny-high", 100, policy.OpGT, 5, policy.EffectDeny),
		complexityRule("allow-rest", 10, policy.OpGTE, 0, policy.EffectAllow),
	)
	if err := e.LoadPolicy(doc, ""); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	for _, complexity := range []float64{1, 7} {
		req := policy.Request{Resource: policy.Resource{Complexity: floatPtr(complexity)}}
		want := e.Evaluate(req)
		got := e.EvaluateDryRun(req)

		if got.Decision.Effect != want.Effect || got.Decision.Allowed != want.Allowed {
			t.Errorf("dry run decision %+v differs from Evaluate %+v", got.Decision, want)
		}
		if len(got.Rules) != 3 {
			t.Fatalf("dry run traced %d rules, want 3", len(got.Rules))
		}
		if !got.Rules[0].Skipped {
			t.Error("disabled rule should be traced as skipped")
		}
	}
}

func TestEngine_DryRunTracesAllConditions(t *testing.T) {
	e := newTestEngine(t)
	doc := docWithRules("base", policy.Rule{
		ID:       "two-conditions",
		Priority: 10,
		Conditions: []policy.Condition{
			{Type: policy.ConditionComplexity, Operator: policy.OpGT, Threshold: 5},
			{Type: policy.ConditionAuthor, Roles: []string{"admin"}},
		},
		Action: policy.Action{Effect: policy.EffectAllow},
	})
	if err := e.LoadPolicy(doc, ""); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	result := e.EvaluateDryRun(policy.Request{Resource: policy.Resource{Complexity: floatPtr(9)}})
	traces := result.Rules[0].Traces
	if len(traces) != 2 {
		t.Fatalf("traced %d conditions, want 2 (dry run must not short-circuit)", len(traces))
	}
	if !traces[0].Passed || traces[1].Passed {
		t.Errorf("unexpected trace outcomes: %+v", traces)
	}
	if result.Rules[0].Matched {
		t.Error("rule with a failing condition must not be matched")
	}
}

func TestEngine_ConcurrentEvaluateDuringLoad(t *testing.T) {
	e := newTestEngine(t)
	if err := e.LoadPolicy(docWithRules("base",
		complexityRule("r", 10, policy.OpGTE, 0, policy.EffectAllow)), "t"); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	req := policy.Request{Resource: policy.Resource{Complexity: floatPtr(1)}}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				e.Evaluate(req)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = e.LoadPolicy(docWithRules("base",
				complexityRule("r", 10, policy.OpGTE, 0, policy.EffectAllow)), "t")
		}
	}()
	wg.Wait()
}
