// Package policy contains domain types for governance policy evaluation.
package policy

// Scope identifies the level at which a policy document applies.
type Scope string

const (
	// ScopeGlobal applies to every organization and repository.
	ScopeGlobal Scope = "global"
	// ScopeOrg applies to a single organization.
	ScopeOrg Scope = "org"
	// ScopeRepo applies to a single repository.
	ScopeRepo Scope = "repo"
)

// ScopeTargetGlobal is the scope target carried by the single global policy.
const ScopeTargetGlobal = "default"

// Inheritance controls how a child-scope policy combines with its parent.
type Inheritance string

const (
	// InheritExtend appends the child's rules to the merged rule list.
	// Rule ID collisions coexist and compete on priority at evaluation time.
	InheritExtend Inheritance = "extend"
	// InheritOverride replaces parent rules that share a rule ID.
	InheritOverride Inheritance = "override"
)

// Effect is the decision outcome a matched rule produces.
type Effect string

const (
	// EffectAllow permits the action.
	EffectAllow Effect = "allow"
	// EffectDeny blocks the action.
	EffectDeny Effect = "deny"
	// EffectWarn permits the action but flags it for attention.
	EffectWarn Effect = "warn"
	// EffectRequireApproval blocks the action pending human sign-off.
	EffectRequireApproval Effect = "require_approval"
)

// SchemaVersion is the recognized policy document schema version.
const SchemaVersion = "1"

// Approval describes the human sign-off a require_approval action demands.
type Approval struct {
	// MinApprovers is the minimum number of distinct approvers required.
	MinApprovers int `yaml:"min_approvers" json:"min_approvers"`
	// RequiredRoles restricts who may approve. Empty means any role.
	RequiredRoles []string `yaml:"required_roles" json:"required_roles,omitempty"`
}

// Action is the outcome a rule produces when all of its conditions match.
type Action struct {
	Effect Effect `yaml:"effect" json:"effect"`
	// Reason is an optional human-readable justification attached to decisions.
	Reason string `yaml:"reason" json:"reason,omitempty"`
	// Approval is only meaningful when Effect is EffectRequireApproval.
	Approval *Approval `yaml:"approval" json:"approval,omitempty"`
}

// Rule defines a single governance rule inside a policy document.
// A rule with no conditions always matches.
type Rule struct {
	// ID is unique within one document.
	ID string `yaml:"id" json:"id"`
	// Name is a human-readable name for this rule.
	Name string `yaml:"name" json:"name"`
	// Priority determines evaluation order (higher first, ties in document order).
	Priority int `yaml:"priority" json:"priority"`
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled" json:"enabled,omitempty"`
	// Conditions are combined with AND semantics. Express OR as multiple rules.
	Conditions []Condition `yaml:"conditions" json:"conditions,omitempty"`
	Action     Action      `yaml:"action" json:"action"`
}

// IsEnabled reports whether the rule participates in evaluation.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Document is a declarative container of rules plus a default action for one scope.
type Document struct {
	Version string `yaml:"version" json:"version"`
	// Name identifies the document and is recorded as rule origin after resolution.
	Name        string      `yaml:"name" json:"name"`
	Scope       Scope       `yaml:"scope" json:"scope"`
	ScopeTarget string      `yaml:"scope_target" json:"scope_target"`
	Inheritance Inheritance `yaml:"inheritance" json:"inheritance,omitempty"`
	// DefaultAction is returned when no rule matches. Nil defers to the
	// parent scope during resolution, and to default-deny at evaluation time.
	DefaultAction *Action `yaml:"default_action" json:"default_action,omitempty"`
	Rules         []Rule  `yaml:"rules" json:"rules"`
}

// ResolvedPolicy is the product of inheritance resolution for one (org, repo) pair.
// Built on demand, never persisted; safe to cache.
type ResolvedPolicy struct {
	// Document is the merged effective policy.
	Document Document
	// Chain holds the source documents in resolution order (global, org, repo).
	Chain []Document
	// RuleOrigins maps each merged rule ID to the name of the policy that
	// contributed it (the overriding policy after an override).
	RuleOrigins map[string]string
}
