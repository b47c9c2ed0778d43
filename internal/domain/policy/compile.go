package policy

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ExpressionProgram is a compiled boolean expression over a Request.
type ExpressionProgram interface {
	// Eval returns whether the expression holds for the request.
	// Runtime errors are treated as condition non-match by the engine.
	Eval(req Request) (bool, error)
}

// ExpressionCompiler compiles expression-condition source at rule compile time.
// A compile failure is a fatal configuration error.
type ExpressionCompiler interface {
	Compile(expr string) (ExpressionProgram, error)
}

// CompiledRule is the normalized, evaluation-ready form of a Rule.
// Immutable after compilation; owned by the evaluation engine and discarded
// on unload.
type CompiledRule struct {
	ID       string
	Name     string
	Priority int
	Enabled  bool
	// Conditions carry the source condition plus, for expression conditions,
	// the compiled program.
	Conditions []CompiledCondition
	Action     Action
	// Origin is the name of the policy document that contributed this rule.
	Origin string
	// CompiledAt records when this rule was compiled.
	CompiledAt time.Time
}

// CompiledCondition pairs a condition with its compiled expression program.
// Program is non-nil only for expression conditions.
type CompiledCondition struct {
	Condition
	Program ExpressionProgram
}

// Compiler turns raw policy documents into compiled rules.
// Pure: no side effects beyond the CompiledAt timestamp.
type Compiler struct {
	expr ExpressionCompiler
}

// NewCompiler creates a rule compiler. The expression compiler may be nil,
// in which case expression conditions are rejected as a configuration error.
func NewCompiler(expr ExpressionCompiler) *Compiler {
	return &Compiler{expr: expr}
}

// Compile normalizes the document's rules for evaluation. It preserves rule
// IDs, zero-defaults priority, resolves the enabled default, and stamps
// CompiledAt. An unrecognized condition type or effect fails compilation;
// it is never silently ignored.
func (c *Compiler) Compile(doc *Document) ([]CompiledRule, error) {
	now := time.Now().UTC()
	compiled := make([]CompiledRule, 0, len(doc.Rules))

	for _, r := range doc.Rules {
		switch r.Action.Effect {
		case EffectAllow, EffectDeny, EffectWarn, EffectRequireApproval:
		default:
			return nil, fmt.Errorf("rule %q: %w: %q", r.ID, ErrUnknownEffect, r.Action.Effect)
		}

		conds := make([]CompiledCondition, 0, len(r.Conditions))
		for _, cond := range r.Conditions {
			cc, err := c.compileCondition(cond)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", r.ID, err)
			}
			conds = append(conds, cc)
		}

		compiled = append(compiled, CompiledRule{
			ID:         r.ID,
			Name:       r.Name,
			Priority:   r.Priority,
			Enabled:    r.IsEnabled(),
			Conditions: conds,
			Action:     r.Action,
			Origin:     doc.Name,
			CompiledAt: now,
		})
	}

	return compiled, nil
}

func (c *Compiler) compileCondition(cond Condition) (CompiledCondition, error) {
	cc := CompiledCondition{Condition: cond}

	switch cond.Type {
	case ConditionComplexity, ConditionLabel, ConditionAuthor,
		ConditionTimeWindow, ConditionAgent:
		return cc, nil
	case ConditionFilePattern:
		// Malformed globs are configuration errors, not silent non-matches.
		for _, p := range cond.Patterns {
			if _, err := filepath.Match(p, ""); err != nil {
				return cc, fmt.Errorf("file pattern %q: %w", p, err)
			}
		}
		return cc, nil
	case ConditionExpression:
		if c.expr == nil {
			return cc, fmt.Errorf("expression condition requires an expression compiler")
		}
		prg, err := c.expr.Compile(cond.Expression)
		if err != nil {
			return cc, fmt.Errorf("compile expression: %w", err)
		}
		cc.Program = prg
		return cc, nil
	default:
		return cc, fmt.Errorf("%w: %q", ErrUnknownConditionType, cond.Type)
	}
}

// Fingerprint returns a stable 64-bit hash of the document, used for change
// detection on cached policies.
func Fingerprint(doc *Document) uint64 {
	raw, err := json.Marshal(doc)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(raw)
}
