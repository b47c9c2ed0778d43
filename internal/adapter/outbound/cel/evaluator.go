// Package cel provides a CEL-based compiler for expression conditions.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/Policy-Gate/policygate/internal/domain/policy"
)

// maxExpressionLength is the maximum allowed length for condition expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit, preventing cost-exhaustion
// from pathological expressions.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout bounds a single expression evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) cancellation is checked.
const interruptCheckFreq = 100

// Compiler compiles expression conditions into CEL programs.
// Implements policy.ExpressionCompiler.
type Compiler struct {
	env *cel.Env
}

// newEnvironment declares the request variables visible to expressions:
// actor, action, resource and context, each as a map of dynamic values.
func newEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("actor", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("action", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("resource", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// NewCompiler creates a CEL compiler with the policy request environment.
func NewCompiler() (*Compiler, error) {
	env, err := newEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create expression environment: %w", err)
	}
	return &Compiler{env: env}, nil
}

// Compile parses and type-checks an expression, returning a compiled program.
// Compile failures are fatal configuration errors for the rule compiler.
func (c *Compiler) Compile(expression string) (policy.ExpressionProgram, error) {
	if err := validate(expression); err != nil {
		return nil, err
	}

	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := c.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return &program{prg: prg}, nil
}

// validate enforces the static safety limits before compilation.
func validate(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}

	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// program wraps a compiled CEL program behind policy.ExpressionProgram.
type program struct {
	prg cel.Program
}

// Eval runs the program against the request with a timeout guarding
// against indefinite evaluation hangs.
func (p *program) Eval(req policy.Request) (bool, error) {
	activation := buildActivation(req)

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := p.prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}

	return boolResult, nil
}

// buildActivation flattens the request into the variable maps declared by
// the environment. Optional numeric fields are present only when supplied,
// so expressions can use has()-style membership checks.
func buildActivation(req policy.Request) map[string]any {
	actor := map[string]any{
		"id":    req.Actor.ID,
		"roles": req.Actor.Roles,
	}

	action := map[string]any{
		"type":  req.Action.Type,
		"agent": req.Action.Agent,
	}
	if req.Action.Confidence != nil {
		action["confidence"] = *req.Action.Confidence
	}

	resource := map[string]any{
		"repo":   req.Resource.Repo,
		"branch": req.Resource.Branch,
		"labels": req.Resource.Labels,
		"files":  req.Resource.Files,
	}
	if req.Resource.Complexity != nil {
		resource["complexity"] = *req.Resource.Complexity
	}

	requestCtx := map[string]any{
		"timestamp": req.Context.Timestamp,
	}
	for k, v := range req.Context.Attributes {
		requestCtx[k] = v
	}

	return map[string]any{
		"actor":    actor,
		"action":   action,
		"resource": resource,
		"context":  requestCtx,
	}
}

// Compile-time interface verification.
var _ policy.ExpressionCompiler = (*Compiler)(nil)
