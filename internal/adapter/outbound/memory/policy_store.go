// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Policy-Gate/policygate/internal/domain/policy"
)

// PolicyStore implements policy.Store with an in-memory map keyed by
// scope/target. Thread-safe for concurrent access. For development and
// testing; production deployments use the sqlite store.
type PolicyStore struct {
	docs map[storeKey]*policy.Document
	mu   sync.RWMutex
}

type storeKey struct {
	scope  policy.Scope
	target string
}

// NewPolicyStore creates a new in-memory policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		docs: make(map[storeKey]*policy.Document),
	}
}

// GetPolicy returns the document for a scope/target pair.
// Returns policy.ErrNotFound when no policy exists at that scope.
func (s *PolicyStore) GetPolicy(_ context.Context, scope policy.Scope, scopeTarget string) (*policy.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[storeKey{scope: scope, target: scopeTarget}]
	if !ok {
		return nil, policy.ErrNotFound
	}
	return copyDocument(doc), nil
}

// AddPolicy creates or replaces the document for its scope/target pair.
// The document is validated and rules without IDs get generated ones, so
// inheritance resolution can always track origins by rule ID.
func (s *PolicyStore) AddPolicy(_ context.Context, doc *policy.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	stored := copyDocument(doc)
	for i := range stored.Rules {
		if stored.Rules[i].ID == "" {
			stored.Rules[i].ID = uuid.New().String()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[storeKey{scope: stored.Scope, target: stored.ScopeTarget}] = stored
	return nil
}

// Clear removes all policies. Test and dev use only.
func (s *PolicyStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[storeKey]*policy.Document)
	return nil
}

// Len returns the number of stored documents.
func (s *PolicyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// copyDocument deep-copies a document so callers cannot mutate stored state.
func copyDocument(doc *policy.Document) *policy.Document {
	out := *doc
	out.Rules = make([]policy.Rule, len(doc.Rules))
	copy(out.Rules, doc.Rules)
	for i := range out.Rules {
		conds := make([]policy.Condition, len(out.Rules[i].Conditions))
		copy(conds, out.Rules[i].Conditions)
		out.Rules[i].Conditions = conds
	}
	if doc.DefaultAction != nil {
		da := *doc.DefaultAction
		out.DefaultAction = &da
	}
	return &out
}

// Compile-time interface verification.
var _ policy.Store = (*PolicyStore)(nil)
