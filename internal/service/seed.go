package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Policy-Gate/policygate/internal/domain/policy"
)

// DefaultGlobalPolicy returns the built-in global policy installed on first
// boot: secrets-pattern files are always denied, low-confidence agent
// actions need approval, and everything else falls through to default deny.
func DefaultGlobalPolicy() *policy.Document {
	lowConfidence := 0.5
	return &policy.Document{
		Version:     policy.SchemaVersion,
		Name:        "default-global",
		Scope:       policy.ScopeGlobal,
		ScopeTarget: policy.ScopeTargetGlobal,
		DefaultAction: &policy.Action{
			Effect: policy.EffectDeny,
			Reason: policy.DefaultDenyReason,
		},
		Rules: []policy.Rule{
			{
				ID:       "deny-secret-files",
				Name:     "Deny changes touching secret files",
				Priority: 200,
				Conditions: []policy.Condition{
					{
						Type:     policy.ConditionFilePattern,
						Patterns: []string{"*.env", "*.secret", "*.pem", "*.key"},
					},
				},
				Action: policy.Action{
					Effect: policy.EffectDeny,
					Reason: "changes to secret material are blocked at the global scope",
				},
			},
			{
				ID:       "approve-low-confidence-agents",
				Name:     "Require approval for low-confidence agent actions",
				Priority: 150,
				Conditions: []policy.Condition{
					{
						Type:       policy.ConditionAgent,
						Operator:   policy.OpLT,
						Confidence: &lowConfidence,
					},
				},
				Action: policy.Action{
					Effect: policy.EffectRequireApproval,
					Reason: "agent confidence below threshold",
					Approval: &policy.Approval{
						MinApprovers: 1,
					},
				},
			},
			{
				ID:       "warn-high-complexity",
				Name:     "Warn on high-complexity changes",
				Priority: 100,
				Conditions: []policy.Condition{
					{
						Type:      policy.ConditionComplexity,
						Operator:  policy.OpGTE,
						Threshold: 50,
					},
				},
				Action: policy.Action{
					Effect: policy.EffectWarn,
					Reason: "high-complexity change, review carefully",
				},
			},
			{
				ID:       "allow-maintainers",
				Name:     "Allow maintainer changes",
				Priority: 50,
				Conditions: []policy.Condition{
					{
						Type:  policy.ConditionAuthor,
						Roles: []string{"maintainer", "admin"},
					},
				},
				Action: policy.Action{
					Effect: policy.EffectAllow,
				},
			},
		},
	}
}

// SeedDefaultPolicy installs the default global policy when no global
// policy exists in the store. Idempotent: returns nil when one is present.
func SeedDefaultPolicy(ctx context.Context, store policy.Store, logger *slog.Logger) error {
	_, err := store.GetPolicy(ctx, policy.ScopeGlobal, policy.ScopeTargetGlobal)
	if err == nil {
		logger.Debug("global policy exists, skipping seed")
		return nil
	}
	if !errors.Is(err, policy.ErrNotFound) {
		return fmt.Errorf("check existing global policy: %w", err)
	}

	doc := DefaultGlobalPolicy()
	if err := store.AddPolicy(ctx, doc); err != nil {
		return fmt.Errorf("save default global policy: %w", err)
	}

	logger.Info("seeded default global policy", "rules", len(doc.Rules))
	return nil
}
