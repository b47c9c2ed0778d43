// Package audit defines the decision hand-off boundary. The evaluation
// engine never writes audit entries itself; it shapes immutable records for
// an external audit-log collaborator.
package audit

import (
	"context"
	"time"
)

// Record is one immutable evaluation decision handed to the audit boundary.
type Record struct {
	// RequestID is the UUID assigned to the evaluation.
	RequestID string `json:"request_id"`
	// Timestamp is when the evaluation completed (UTC).
	Timestamp time.Time `json:"timestamp"`

	ActorID    string `json:"actor_id,omitempty"`
	ActionType string `json:"action_type,omitempty"`
	Agent      string `json:"agent,omitempty"`
	Repo       string `json:"repo,omitempty"`
	Branch     string `json:"branch,omitempty"`

	// Effect is the decision outcome: allow, deny, warn or require_approval.
	Effect  string `json:"effect"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`

	RuleID     string `json:"rule_id,omitempty"`
	RuleName   string `json:"rule_name,omitempty"`
	RuleOrigin string `json:"rule_origin,omitempty"`

	LatencyMs int64 `json:"latency_ms"`
}

// Sink receives decision records. Implementations handle persistence,
// chaining and batching; callers treat Append as fire-and-forget.
type Sink interface {
	// Append hands a record to the audit collaborator.
	Append(ctx context.Context, rec Record) error
	// Close releases resources.
	Close() error
}
