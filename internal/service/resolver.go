package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Policy-Gate/policygate/internal/domain/policy"
	"github.com/Policy-Gate/policygate/internal/metrics"
)

// Resolver loads the applicable policy chain (global, org, repo) and merges
// it into one effective document. Resolvers hold no mutable state between
// calls, so they are safe to use concurrently for different (org, repo) pairs.
type Resolver struct {
	store   policy.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewResolver creates an inheritance resolver over the given store.
// Metrics may be nil, in which case resolution counting is skipped.
func NewResolver(store policy.Store, m *metrics.Metrics, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, metrics: m, logger: logger}
}

// Resolve fetches the global, org and repo policies in order and merges
// them. Missing scopes are skipped (partial chains are valid); store errors
// propagate as resolution failures without internal retries. An entirely
// empty chain yields an empty rule list with a default-deny action.
func (r *Resolver) Resolve(ctx context.Context, orgID, repoID string) (*policy.ResolvedPolicy, error) {
	rp, err := r.resolve(ctx, orgID, repoID)
	if r.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		r.metrics.ResolutionsTotal.WithLabelValues(outcome).Inc()
	}
	return rp, err
}

func (r *Resolver) resolve(ctx context.Context, orgID, repoID string) (*policy.ResolvedPolicy, error) {
	var chain []policy.Document

	fetch := func(scope policy.Scope, target string) error {
		doc, err := r.store.GetPolicy(ctx, scope, target)
		if err != nil {
			if errors.Is(err, policy.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("fetch %s policy for %q: %w", scope, target, err)
		}
		if doc != nil {
			chain = append(chain, *doc)
		}
		return nil
	}

	if err := fetch(policy.ScopeGlobal, policy.ScopeTargetGlobal); err != nil {
		return nil, err
	}
	if orgID != "" {
		if err := fetch(policy.ScopeOrg, orgID); err != nil {
			return nil, err
		}
	}
	if repoID != "" {
		if err := fetch(policy.ScopeRepo, repoID); err != nil {
			return nil, err
		}
	}

	resolved := merge(chain, orgID, repoID)

	r.logger.Debug("policy chain resolved",
		"org", orgID,
		"repo", repoID,
		"chain_length", len(chain),
		"merged_rules", len(resolved.Document.Rules),
	)

	return resolved, nil
}

// merge folds the chain into one document. Override policies replace
// same-ID rules in place (preserving document-order tie-breaks); extend
// policies append, letting same-ID rules coexist and compete on priority.
// The merged default action comes from the most specific policy that
// declares one (repo > org > global).
func merge(chain []policy.Document, orgID, repoID string) *policy.ResolvedPolicy {
	resolved := &policy.ResolvedPolicy{
		Chain:       chain,
		RuleOrigins: make(map[string]string),
	}

	var merged []policy.Rule
	position := make(map[string]int)

	for _, doc := range chain {
		override := doc.Inheritance == policy.InheritOverride
		for _, rule := range doc.Rules {
			if override {
				if at, exists := position[rule.ID]; exists {
					merged[at] = rule
					resolved.RuleOrigins[rule.ID] = doc.Name
					continue
				}
			}
			position[rule.ID] = len(merged)
			merged = append(merged, rule)
			resolved.RuleOrigins[rule.ID] = doc.Name
		}
	}

	out := policy.Document{
		Version: policy.SchemaVersion,
		Name:    fmt.Sprintf("resolved:%s/%s", orgID, repoID),
		Scope:   policy.ScopeGlobal,
		Rules:   merged,
	}

	// Walk the chain from most specific to least for metadata and default.
	for i := len(chain) - 1; i >= 0; i-- {
		doc := chain[i]
		if out.Scope == policy.ScopeGlobal && i == len(chain)-1 {
			out.Scope = doc.Scope
			out.ScopeTarget = doc.ScopeTarget
			out.Version = doc.Version
		}
		if out.DefaultAction == nil && doc.DefaultAction != nil {
			out.DefaultAction = doc.DefaultAction
		}
	}

	if out.DefaultAction == nil {
		out.DefaultAction = &policy.Action{
			Effect: policy.EffectDeny,
			Reason: policy.DefaultDenyReason,
		}
	}

	resolved.Document = out
	return resolved
}
