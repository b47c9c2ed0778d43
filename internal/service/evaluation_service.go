package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Policy-Gate/policygate/internal/domain/audit"
	"github.com/Policy-Gate/policygate/internal/domain/policy"
	"github.com/Policy-Gate/policygate/internal/metrics"
)

const defaultMaxEvaluations = 1000

// EvaluationResponse is the structured result of one evaluation request.
type EvaluationResponse struct {
	RequestID       string                  `json:"request_id"`
	Allowed         bool                    `json:"allowed"`
	Effect          string                  `json:"effect"`
	Reason          string                  `json:"reason,omitempty"`
	MatchedRule     *policy.MatchedRule     `json:"matched_rule,omitempty"`
	RequiredActions []policy.RequiredAction `json:"required_actions,omitempty"`
	LatencyMs       int64                   `json:"latency_ms"`
}

// EvaluationRecord is a stored evaluation for status queries.
type EvaluationRecord struct {
	RequestID  string    `json:"request_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	ActionType string    `json:"action_type,omitempty"`
	Effect     string    `json:"effect"`
	RuleID     string    `json:"rule_id,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// EvaluationService fronts the evaluation engine for callers: it assigns
// request IDs, measures latency, hands every decision to the audit sink,
// records metrics, and keeps a bounded in-memory record of recent
// evaluations for status polling.
type EvaluationService struct {
	engine  *Engine
	sink    audit.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	records  map[string]*EvaluationRecord // keyed by request_id
	order    []string                     // FIFO order for eviction
	maxEvals int
}

// NewEvaluationService creates an evaluation service. The sink and metrics
// may be nil, in which case auditing and metric recording are skipped.
func NewEvaluationService(engine *Engine, sink audit.Sink, m *metrics.Metrics, logger *slog.Logger) *EvaluationService {
	return &EvaluationService{
		engine:   engine,
		sink:     sink,
		metrics:  m,
		logger:   logger,
		records:  make(map[string]*EvaluationRecord),
		order:    make([]string, 0, defaultMaxEvaluations),
		maxEvals: defaultMaxEvaluations,
	}
}

// Evaluate runs one request through the engine and returns the structured
// response. The decision is also shaped into an audit record and appended
// to the sink.
func (s *EvaluationService) Evaluate(ctx context.Context, req policy.Request) *EvaluationResponse {
	requestID := uuid.New().String()
	start := time.Now()

	decision := s.engine.Evaluate(req)
	latencyMs := time.Since(start).Milliseconds()

	resp := &EvaluationResponse{
		RequestID:       requestID,
		Allowed:         decision.Allowed,
		Effect:          string(decision.Effect),
		Reason:          decision.Reason,
		MatchedRule:     decision.MatchedRule,
		RequiredActions: decision.RequiredActions,
		LatencyMs:       latencyMs,
	}

	now := time.Now().UTC()
	rec := audit.Record{
		RequestID:  requestID,
		Timestamp:  now,
		ActorID:    req.Actor.ID,
		ActionType: req.Action.Type,
		Agent:      req.Action.Agent,
		Repo:       req.Resource.Repo,
		Branch:     req.Resource.Branch,
		Effect:     string(decision.Effect),
		Allowed:    decision.Allowed,
		Reason:     decision.Reason,
		LatencyMs:  latencyMs,
	}
	if decision.MatchedRule != nil {
		rec.RuleID = decision.MatchedRule.ID
		rec.RuleName = decision.MatchedRule.Name
		rec.RuleOrigin = decision.MatchedRule.Origin
	}

	if s.sink != nil {
		if err := s.sink.Append(ctx, rec); err != nil {
			// Audit failures never affect the decision.
			s.logger.Warn("audit append failed", "request_id", requestID, "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.EvaluationsTotal.WithLabelValues(resp.Effect).Inc()
		s.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}

	s.storeRecord(&EvaluationRecord{
		RequestID:  requestID,
		ActorID:    req.Actor.ID,
		ActionType: req.Action.Type,
		Effect:     resp.Effect,
		RuleID:     rec.RuleID,
		LatencyMs:  latencyMs,
		CreatedAt:  now,
	})

	s.logger.Debug("evaluation completed",
		"request_id", requestID,
		"actor", req.Actor.ID,
		"action_type", req.Action.Type,
		"effect", resp.Effect,
		"latency_ms", latencyMs,
	)

	return resp
}

// DryRun runs the detailed matching algorithm without auditing or metrics.
func (s *EvaluationService) DryRun(_ context.Context, req policy.Request) policy.DryRunResult {
	return s.engine.EvaluateDryRun(req)
}

// GetEvaluation returns a stored evaluation record, or nil when unknown.
func (s *EvaluationService) GetEvaluation(requestID string) *EvaluationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[requestID]
}

// storeRecord stores an evaluation record with bounded FIFO eviction.
func (s *EvaluationService) storeRecord(rec *EvaluationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) >= s.maxEvals {
		oldID := s.order[0]
		s.order = s.order[1:]
		delete(s.records, oldID)
	}

	s.records[rec.RequestID] = rec
	s.order = append(s.order, rec.RequestID)
}
