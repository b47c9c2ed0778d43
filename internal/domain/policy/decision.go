package policy

// DefaultDenyReason is the reason attached to the built-in default decision.
const DefaultDenyReason = "No matching policy rule"

// MatchedRule identifies the rule that produced a decision.
type MatchedRule struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Priority int    `json:"priority"`
	// Origin is the source policy name after inheritance resolution.
	Origin string `json:"origin,omitempty"`
}

// RequiredAction tells the caller what must happen before the action may proceed.
type RequiredAction struct {
	// Type is currently always "approval".
	Type          string   `json:"type"`
	MinApprovers  int      `json:"min_approvers,omitempty"`
	RequiredRoles []string `json:"required_roles,omitempty"`
}

// Decision is the outcome of evaluating a request. It is shaped for direct
// hand-off to the audit boundary and for JSON serialization by the API layer.
type Decision struct {
	// Allowed is true for allow and warn effects.
	Allowed bool   `json:"allowed"`
	Effect  Effect `json:"effect"`
	Reason  string `json:"reason,omitempty"`
	// MatchedRule is nil when the default action was returned.
	MatchedRule     *MatchedRule     `json:"matched_rule,omitempty"`
	RequiredActions []RequiredAction `json:"required_actions,omitempty"`
}

// DefaultDeny returns the built-in decision used when no rule matches and no
// document supplies a default action.
func DefaultDeny() Decision {
	return Decision{
		Allowed: false,
		Effect:  EffectDeny,
		Reason:  DefaultDenyReason,
	}
}

// DecisionFrom builds a Decision from a rule action.
// Allow and warn effects permit the action; deny and require_approval block it.
// An unknown effect denies, preserving availability of a safe answer.
func DecisionFrom(a Action, matched *MatchedRule) Decision {
	d := Decision{
		Effect:      a.Effect,
		Reason:      a.Reason,
		MatchedRule: matched,
	}

	switch a.Effect {
	case EffectAllow, EffectWarn:
		d.Allowed = true
	case EffectRequireApproval:
		d.Allowed = false
		req := RequiredAction{Type: "approval", MinApprovers: 1}
		if a.Approval != nil {
			if a.Approval.MinApprovers > 0 {
				req.MinApprovers = a.Approval.MinApprovers
			}
			req.RequiredRoles = append([]string(nil), a.Approval.RequiredRoles...)
		}
		d.RequiredActions = []RequiredAction{req}
	default:
		d.Allowed = false
	}

	return d
}

// ConditionTrace reports the outcome of one condition during a dry run.
type ConditionTrace struct {
	Type   ConditionType `json:"type"`
	Passed bool          `json:"passed"`
	Detail string        `json:"detail,omitempty"`
}

// RuleTrace reports per-rule matching detail during a dry run.
type RuleTrace struct {
	RuleID   string           `json:"rule_id"`
	RuleName string           `json:"rule_name,omitempty"`
	Priority int              `json:"priority"`
	Matched  bool             `json:"matched"`
	Skipped  bool             `json:"skipped,omitempty"`
	Traces   []ConditionTrace `json:"conditions,omitempty"`
}

// DryRunResult is the detailed output of EvaluateDryRun. The embedded
// Decision is identical to what Evaluate would return for the same request.
type DryRunResult struct {
	Decision Decision    `json:"decision"`
	Rules    []RuleTrace `json:"rules"`
}
