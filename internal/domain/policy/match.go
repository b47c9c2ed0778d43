package policy

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Matches reports whether the condition holds for the request, plus a short
// detail string for dry-run tracing. Missing actor/resource fields are
// treated as non-matching; matching never errors.
func (c CompiledCondition) Matches(req Request) (bool, string) {
	switch c.Type {
	case ConditionComplexity:
		return matchComplexity(c.Condition, req)
	case ConditionLabel:
		return matchLabels(c.Condition, req)
	case ConditionAuthor:
		return matchAuthor(c.Condition, req)
	case ConditionFilePattern:
		return matchFilePattern(c.Condition, req)
	case ConditionTimeWindow:
		return matchTimeWindow(c.Condition, req)
	case ConditionAgent:
		return matchAgent(c.Condition, req)
	case ConditionExpression:
		return matchExpression(c, req)
	default:
		// Unreachable for compiled rules; the compiler rejects unknown types.
		return false, fmt.Sprintf("unknown condition type %q", c.Type)
	}
}

// compare applies a threshold operator. Operator defaults to gte.
func compare(op Operator, value, threshold float64) bool {
	switch op {
	case OpGT:
		return value > threshold
	case OpLT:
		return value < threshold
	case OpLTE:
		return value <= threshold
	case OpEQ:
		return value == threshold
	case OpNE:
		return value != threshold
	case OpGTE, "":
		return value >= threshold
	default:
		return false
	}
}

func matchComplexity(c Condition, req Request) (bool, string) {
	if req.Resource.Complexity == nil {
		return false, "resource has no complexity score"
	}
	v := *req.Resource.Complexity
	if compare(c.Operator, v, c.Threshold) {
		return true, fmt.Sprintf("complexity %g %s %g", v, orDefault(string(c.Operator), "gte"), c.Threshold)
	}
	return false, fmt.Sprintf("complexity %g not %s %g", v, orDefault(string(c.Operator), "gte"), c.Threshold)
}

func matchLabels(c Condition, req Request) (bool, string) {
	have := make(map[string]struct{}, len(req.Resource.Labels))
	for _, l := range req.Resource.Labels {
		have[l] = struct{}{}
	}

	if c.Match == MatchAll {
		for _, want := range c.Labels {
			if _, ok := have[want]; !ok {
				return false, fmt.Sprintf("label %q absent", want)
			}
		}
		return true, "all labels present"
	}

	// Default: any.
	for _, want := range c.Labels {
		if _, ok := have[want]; ok {
			return true, fmt.Sprintf("label %q present", want)
		}
	}
	return false, "no listed label present"
}

func matchAuthor(c Condition, req Request) (bool, string) {
	held := make(map[string]struct{}, len(req.Actor.Roles))
	for _, r := range req.Actor.Roles {
		held[r] = struct{}{}
	}
	for _, want := range c.Roles {
		if _, ok := held[want]; ok {
			return true, fmt.Sprintf("actor holds role %q", want)
		}
	}
	return false, "actor holds none of the required roles"
}

// matchFilePattern matches each glob against the full path and, failing
// that, against the path base, so "*.env" catches "config/deploy.env".
func matchFilePattern(c Condition, req Request) (bool, string) {
	for _, pattern := range c.Patterns {
		for _, file := range req.Resource.Files {
			if ok, err := filepath.Match(pattern, file); err == nil && ok {
				return true, fmt.Sprintf("file %q matches %q", file, pattern)
			}
			if ok, err := filepath.Match(pattern, filepath.Base(file)); err == nil && ok {
				return true, fmt.Sprintf("file %q matches %q", file, pattern)
			}
		}
	}
	return false, "no changed file matches the listed patterns"
}

func matchTimeWindow(c Condition, req Request) (bool, string) {
	ts := req.Context.Timestamp
	if ts.IsZero() {
		return false, "request context has no timestamp"
	}

	inWindow := true

	if len(c.Days) > 0 {
		day := strings.ToLower(ts.Weekday().String())
		found := false
		for _, d := range c.Days {
			d = strings.ToLower(strings.TrimSpace(d))
			// Accept full names and three-letter abbreviations.
			if d == day || (len(d) >= 3 && strings.HasPrefix(day, d[:3])) {
				found = true
				break
			}
		}
		inWindow = found
	}

	// Unset hours (both zero) leave the whole day in the window, so a
	// days-only condition still matches.
	if inWindow && (c.StartHour != 0 || c.EndHour != 0) {
		hour := ts.Hour()
		if c.StartHour <= c.EndHour {
			inWindow = hour >= c.StartHour && hour < c.EndHour
		} else {
			// Window wraps around midnight, e.g. 22..6.
			inWindow = hour >= c.StartHour || hour < c.EndHour
		}
	}

	if c.Window == WindowOutside {
		inWindow = !inWindow
	}
	if inWindow {
		return true, fmt.Sprintf("timestamp %s within window", ts.Format("Mon 15:04"))
	}
	return false, fmt.Sprintf("timestamp %s outside window", ts.Format("Mon 15:04"))
}

func matchAgent(c Condition, req Request) (bool, string) {
	if len(c.Agents) > 0 {
		if req.Action.Agent == "" {
			return false, "request has no agent identifier"
		}
		found := false
		for _, a := range c.Agents {
			if a == req.Action.Agent {
				found = true
				break
			}
		}
		if !found {
			return false, fmt.Sprintf("agent %q not in listed set", req.Action.Agent)
		}
	}

	if c.Confidence != nil {
		if req.Action.Confidence == nil {
			return false, "action reports no confidence"
		}
		if !compare(c.Operator, *req.Action.Confidence, *c.Confidence) {
			return false, fmt.Sprintf("confidence %g not %s %g",
				*req.Action.Confidence, orDefault(string(c.Operator), "gte"), *c.Confidence)
		}
	}

	return true, "agent matches"
}

func matchExpression(c CompiledCondition, req Request) (bool, string) {
	if c.Program == nil {
		return false, "expression not compiled"
	}
	ok, err := c.Program.Eval(req)
	if err != nil {
		// Runtime expression failures are non-matches, never evaluation errors.
		return false, fmt.Sprintf("expression error: %v", err)
	}
	if ok {
		return true, "expression true"
	}
	return false, "expression false"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
