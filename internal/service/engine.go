// Package service contains application services.
package service

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Policy-Gate/policygate/internal/domain/policy"
)

// loadedRule pairs a compiled rule with its load sequence number, which
// breaks priority ties so evaluation order stays stable in load order.
type loadedRule struct {
	policy.CompiledRule
	seq int
}

// taggedRules is the rule set contributed by one LoadPolicy call.
type taggedRules struct {
	rules []loadedRule
	// defaultAction is the contributing document's default, nil when unset.
	defaultAction *policy.Action
	// loadSeq orders tags so the most recently loaded default wins.
	loadSeq int
}

// ruleSnapshot is the immutable evaluation state published via atomic.Value.
type ruleSnapshot struct {
	// rules sorted by priority descending, stable on load order.
	rules []loadedRule
	// defaultDecision is returned when no rule matches.
	defaultDecision policy.Decision
}

// Engine evaluates requests against loaded rule sets. Evaluation itself is
// stateless per call; the only state is the loaded rule index. Loads publish
// an immutable snapshot through atomic.Value, so Evaluate is lock-free and
// safe to call concurrently with LoadPolicy.
type Engine struct {
	compiler *policy.Compiler
	logger   *slog.Logger

	mu      sync.Mutex // guards tagged and seq counters across loads
	tagged  map[string]*taggedRules
	ruleSeq int
	loadSeq int

	snapshot atomic.Value // stores *ruleSnapshot
}

// NewEngine creates an evaluation engine with an empty rule set.
func NewEngine(compiler *policy.Compiler, logger *slog.Logger) *Engine {
	e := &Engine{
		compiler: compiler,
		logger:   logger,
		tagged:   make(map[string]*taggedRules),
	}
	e.snapshot.Store(&ruleSnapshot{defaultDecision: policy.DefaultDeny()})
	return e
}

// LoadPolicy compiles the document and merges its rules into the active
// set, replacing any rules previously loaded under the same tag. An empty
// tag defaults to the document name. Rules from different tags coexist and
// compete on priority globally, not per tag.
func (e *Engine) LoadPolicy(doc *policy.Document, tag string) error {
	if tag == "" {
		tag = doc.Name
	}

	compiled, err := e.compiler.Compile(doc)
	if err != nil {
		return fmt.Errorf("load policy %q: %w", tag, err)
	}

	e.install(tag, compiled, doc.DefaultAction, nil)
	return nil
}

// LoadResolved loads the merged document of an inheritance resolution,
// stamping each rule's origin from the resolution's rule-origin map.
func (e *Engine) LoadResolved(rp *policy.ResolvedPolicy, tag string) error {
	if tag == "" {
		tag = rp.Document.Name
	}

	compiled, err := e.compiler.Compile(&rp.Document)
	if err != nil {
		return fmt.Errorf("load resolved policy %q: %w", tag, err)
	}

	e.install(tag, compiled, rp.Document.DefaultAction, rp.RuleOrigins)
	return nil
}

func (e *Engine) install(tag string, compiled []policy.CompiledRule, defaultAction *policy.Action, origins map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rules := make([]loadedRule, 0, len(compiled))
	for _, cr := range compiled {
		if origin, ok := origins[cr.ID]; ok {
			cr.Origin = origin
		}
		e.ruleSeq++
		rules = append(rules, loadedRule{CompiledRule: cr, seq: e.ruleSeq})
	}

	e.loadSeq++
	e.tagged[tag] = &taggedRules{rules: rules, defaultAction: defaultAction, loadSeq: e.loadSeq}
	e.publishLocked()

	e.logger.Info("policy loaded",
		"tag", tag,
		"rules", len(rules),
		"has_default", defaultAction != nil,
	)
}

// UnloadPolicy discards all rules loaded under the tag. Returns whether the
// tag was loaded.
func (e *Engine) UnloadPolicy(tag string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tagged[tag]; !ok {
		return false
	}
	delete(e.tagged, tag)
	e.publishLocked()

	e.logger.Info("policy unloaded", "tag", tag)
	return true
}

// publishLocked rebuilds and stores the evaluation snapshot. Must hold e.mu.
func (e *Engine) publishLocked() {
	var all []loadedRule
	var defaultAction *policy.Action
	defaultSeq := -1

	for _, tr := range e.tagged {
		all = append(all, tr.rules...)
		if tr.defaultAction != nil && tr.loadSeq > defaultSeq {
			defaultAction = tr.defaultAction
			defaultSeq = tr.loadSeq
		}
	}

	// Stable load order first, then priority descending on top of it.
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	sort.SliceStable(all, func(i, j int) bool { return all[i].Priority > all[j].Priority })

	defaultDecision := policy.DefaultDeny()
	if defaultAction != nil {
		defaultDecision = policy.DecisionFrom(*defaultAction, nil)
		if defaultDecision.Reason == "" {
			defaultDecision.Reason = policy.DefaultDenyReason
		}
	}

	e.snapshot.Store(&ruleSnapshot{rules: all, defaultDecision: defaultDecision})
}

func (e *Engine) loadSnapshot() *ruleSnapshot {
	return e.snapshot.Load().(*ruleSnapshot)
}

// Evaluate walks enabled rules in priority order and returns the action of
// the first rule whose conditions all match. A rule with no conditions
// always matches. Missing request fields are condition non-matches, never
// errors: the engine always returns a decision.
func (e *Engine) Evaluate(req policy.Request) policy.Decision {
	snap := e.loadSnapshot()

	for i := range snap.rules {
		r := &snap.rules[i]
		if !r.Enabled {
			continue
		}
		if ruleMatches(r, req) {
			return policy.DecisionFrom(r.Action, matchedRuleOf(r))
		}
	}

	return snap.defaultDecision
}

// EvaluateDryRun runs the same matching algorithm as Evaluate but records
// per-rule, per-condition outcomes for policy-authoring tooling. It mutates
// no state and its final decision is identical to Evaluate's.
func (e *Engine) EvaluateDryRun(req policy.Request) policy.DryRunResult {
	snap := e.loadSnapshot()

	result := policy.DryRunResult{
		Decision: snap.defaultDecision,
		Rules:    make([]policy.RuleTrace, 0, len(snap.rules)),
	}

	decided := false
	for i := range snap.rules {
		r := &snap.rules[i]
		trace := policy.RuleTrace{
			RuleID:   r.ID,
			RuleName: r.Name,
			Priority: r.Priority,
		}

		if !r.Enabled {
			trace.Skipped = true
			result.Rules = append(result.Rules, trace)
			continue
		}

		trace.Matched = true
		for _, cond := range r.Conditions {
			passed, detail := cond.Matches(req)
			trace.Traces = append(trace.Traces, policy.ConditionTrace{
				Type:   cond.Type,
				Passed: passed,
				Detail: detail,
			})
			if !passed {
				trace.Matched = false
			}
		}

		if trace.Matched && !decided {
			result.Decision = policy.DecisionFrom(r.Action, matchedRuleOf(r))
			decided = true
		}
		result.Rules = append(result.Rules, trace)
	}

	return result
}

// RuleCount returns the number of rules in the active snapshot.
func (e *Engine) RuleCount() int {
	return len(e.loadSnapshot().rules)
}

func ruleMatches(r *loadedRule, req policy.Request) bool {
	for _, cond := range r.Conditions {
		if ok, _ := cond.Matches(req); !ok {
			return false
		}
	}
	return true
}

func matchedRuleOf(r *loadedRule) *policy.MatchedRule {
	return &policy.MatchedRule{
		ID:       r.ID,
		Name:     r.Name,
		Priority: r.Priority,
		Origin:   r.Origin,
	}
}
