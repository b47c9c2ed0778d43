package policy

import (
	"errors"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func TestMatchComplexity(t *testing.T) {
	tests := []struct {
		name       string
		cond       Condition
		complexity *float64
		want       bool
	}{
		{"gt above threshold", Condition{Type: ConditionComplexity, Operator: OpGT, Threshold: 5}, floatPtr(7), true},
		{"gt below threshold", Condition{Type: ConditionComplexity, Operator: OpGT, Threshold: 5}, floatPtr(3), false},
		{"gt at threshold", Condition{Type: ConditionComplexity, Operator: OpGT, Threshold: 5}, floatPtr(5), false},
		{"gte at threshold", Condition{Type: ConditionComplexity, Operator: OpGTE, Threshold: 5}, floatPtr(5), true},
		{"default operator is gte", Condition{Type: ConditionComplexity, Threshold: 5}, floatPtr(5), true},
		{"lt below threshold", Condition{Type: ConditionComplexity, Operator: OpLT, Threshold: 5}, floatPtr(3), true},
		{"lte at threshold", Condition{Type: ConditionComplexity, Operator: OpLTE, Threshold: 5}, floatPtr(5), true},
		{"eq equal", Condition{Type: ConditionComplexity, Operator: OpEQ, Threshold: 5}, floatPtr(5), true},
		{"ne different", Condition{Type: ConditionComplexity, Operator: OpNE, Threshold: 5}, floatPtr(6), true},
		{"missing complexity never matches", Condition{Type: ConditionComplexity, Operator: OpGT, Threshold: 0}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Resource: Resource{Complexity: tt.complexity}}
			got, _ := (CompiledCondition{Condition: tt.cond}).Matches(req)
			if got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchLabels(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		have []string
		want bool
	}{
		{"any with one present", Condition{Type: ConditionLabel, Labels: []string{"security", "urgent"}, Match: MatchAny}, []string{"urgent"}, true},
		{"any with none present", Condition{Type: ConditionLabel, Labels: []string{"security"}, Match: MatchAny}, []string{"docs"}, false},
		{"default mode is any", Condition{Type: ConditionLabel, Labels: []string{"security"}}, []string{"security"}, true},
		{"all with every label", Condition{Type: ConditionLabel, Labels: []string{"a", "b"}, Match: MatchAll}, []string{"a", "b", "c"}, true},
		{"all with one missing", Condition{Type: ConditionLabel, Labels: []string{"a", "b"}, Match: MatchAll}, []string{"a"}, false},
		{"empty resource labels", Condition{Type: ConditionLabel, Labels: []string{"a"}}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Resource: Resource{Labels: tt.have}}
			got, _ := (CompiledCondition{Condition: tt.cond}).Matches(req)
			if got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchAuthor(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		held  []string
		want  bool
	}{
		{"holds one of the listed roles", []string{"maintainer", "admin"}, []string{"maintainer"}, true},
		{"holds none", []string{"maintainer"}, []string{"contributor"}, false},
		{"actor has no roles", []string{"maintainer"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := Condition{Type: ConditionAuthor, Roles: tt.roles}
			req := Request{Actor: Actor{ID: "alice", Roles: tt.held}}
			got, _ := (CompiledCondition{Condition: cond}).Matches(req)
			if got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchFilePattern(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		files    []string
		want     bool
	}{
		{"basename match", []string{"*.env"}, []string{"config/deploy.env"}, true},
		{"full path match", []string{"src/*.go"}, []string{"src/main.go"}, true},
		{"no match", []string{"*.secret"}, []string{"README.md"}, false},
		{"second pattern matches", []string{"*.pem", "*.key"}, []string{"tls/server.key"}, true},
		{"no files on request", []string{"*.env"}, nil, false},
		{"invalid pattern skipped", []string{"[bad"}, []string{"anything"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := Condition{Type: ConditionFilePattern, Patterns: tt.patterns}
			req := Request{Resource: Resource{Files: tt.files}}
			got, _ := (CompiledCondition{Condition: cond}).Matches(req)
			if got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchTimeWindow(t *testing.T) {
	// 2026-08-26 is a Wednesday.
	wed14 := time.Date(2026, 8, 26, 14, 0, 0, 0, time.UTC)
	wed23 := time.Date(2026, 8, 26, 23, 0, 0, 0, time.UTC)
	sat10 := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		cond Condition
		at   time.Time
		want bool
	}{
		{
			"within business hours",
			Condition{Type: ConditionTimeWindow, Days: []string{"mon", "tue", "wed", "thu", "fri"}, StartHour: 9, EndHour: 17},
			wed14, true,
		},
		{
			"weekend outside weekday window",
			Condition{Type: ConditionTimeWindow, Days: []string{"mon", "tue", "wed", "thu", "fri"}, StartHour: 9, EndHour: 17},
			sat10, false,
		},
		{
			"outside mode inverts",
			Condition{Type: ConditionTimeWindow, Days: []string{"mon", "tue", "wed", "thu", "fri"}, StartHour: 9, EndHour: 17, Window: WindowOutside},
			sat10, true,
		},
		{
			"full day names accepted",
			Condition{Type: ConditionTimeWindow, Days: []string{"wednesday"}, StartHour: 0, EndHour: 24},
			wed14, true,
		},
		{
			"end hour is exclusive",
			Condition{Type: ConditionTimeWindow, StartHour: 9, EndHour: 14},
			wed14, false,
		},
		{
			"window wraps midnight",
			Condition{Type: ConditionTimeWindow, StartHour: 22, EndHour: 6},
			wed23, true,
		},
		{
			"wrapped window excludes daytime",
			Condition{Type: ConditionTimeWindow, StartHour: 22, EndHour: 6},
			wed14, false,
		},
		{
			"empty days means every day",
			Condition{Type: ConditionTimeWindow, StartHour: 0, EndHour: 24},
			sat10, true,
		},
		{
			"zero timestamp never matches",
			Condition{Type: ConditionTimeWindow, StartHour: 0, EndHour: 24},
			time.Time{}, false,
		},
		{
			"days without hours covers the whole day",
			Condition{Type: ConditionTimeWindow, Days: []string{"saturday"}},
			sat10, true,
		},
		{
			"days without hours still excludes other days",
			Condition{Type: ConditionTimeWindow, Days: []string{"saturday"}},
			wed14, false,
		},
		{
			"days without hours in outside mode",
			Condition{Type: ConditionTimeWindow, Days: []string{"saturday", "sunday"}, Window: WindowOutside},
			sat10, false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Context: RequestContext{Timestamp: tt.at}}
			got, _ := (CompiledCondition{Condition: tt.cond}).Matches(req)
			if got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchAgent(t *testing.T) {
	tests := []struct {
		name   string
		cond   Condition
		action ActionInput
		want   bool
	}{
		{
			"agent in listed set",
			Condition{Type: ConditionAgent, Agents: []string{"bot-a", "bot-b"}},
			ActionInput{Agent: "bot-a"},
			true,
		},
		{
			"agent not listed",
			Condition{Type: ConditionAgent, Agents: []string{"bot-a"}},
			ActionInput{Agent: "bot-c"},
			false,
		},
		{
			"no agent on request",
			Condition{Type: ConditionAgent, Agents: []string{"bot-a"}},
			ActionInput{},
			false,
		},
		{
			"empty agent list matches any agent",
			Condition{Type: ConditionAgent, Operator: OpLT, Confidence: floatPtr(0.5)},
			ActionInput{Agent: "bot-x", Confidence: floatPtr(0.3)},
			true,
		},
		{
			"confidence above lt threshold",
			Condition{Type: ConditionAgent, Operator: OpLT, Confidence: floatPtr(0.5)},
			ActionInput{Agent: "bot-x", Confidence: floatPtr(0.9)},
			false,
		},
		{
			"confidence required but absent",
			Condition{Type: ConditionAgent, Operator: OpLT, Confidence: floatPtr(0.5)},
			ActionInput{Agent: "bot-x"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Action: tt.action}
			got, _ := (CompiledCondition{Condition: tt.cond}).Matches(req)
			if got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

// erroringProgram simulates an expression runtime failure.
type erroringProgram struct{}

func (erroringProgram) Eval(Request) (bool, error) { return false, errors.New("boom") }

// constProgram returns a fixed result.
type constProgram bool

func (p constProgram) Eval(Request) (bool, error) { return bool(p), nil }

func TestMatchExpression(t *testing.T) {
	trueCond := CompiledCondition{
		Condition: Condition{Type: ConditionExpression, Expression: "true"},
		Program:   constProgram(true),
	}
	if ok, _ := trueCond.Matches(Request{}); !ok {
		t.Error("true program should match")
	}

	falseCond := CompiledCondition{
		Condition: Condition{Type: ConditionExpression, Expression: "false"},
		Program:   constProgram(false),
	}
	if ok, _ := falseCond.Matches(Request{}); ok {
		t.Error("false program should not match")
	}
}

func TestMatchExpression_RuntimeErrorIsNonMatch(t *testing.T) {
	cond := CompiledCondition{
		Condition: Condition{Type: ConditionExpression, Expression: "boom"},
		Program:   erroringProgram{},
	}
	ok, detail := cond.Matches(Request{})
	if ok {
		t.Error("erroring expression must not match")
	}
	if detail == "" {
		t.Error("expected a detail string describing the failure")
	}
}

func TestMatchExpression_NilProgram(t *testing.T) {
	cond := CompiledCondition{Condition: Condition{Type: ConditionExpression}}
	if ok, _ := cond.Matches(Request{}); ok {
		t.Error("uncompiled expression must not match")
	}
}
