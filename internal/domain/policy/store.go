package policy

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for policy storage and compilation.
var (
	// ErrNotFound is returned when no policy exists for a scope/target pair.
	ErrNotFound = errors.New("policy not found")
	// ErrUnknownConditionType is a fatal configuration error raised at compile time.
	ErrUnknownConditionType = errors.New("unknown condition type")
	// ErrUnknownEffect is a fatal configuration error raised at compile time.
	ErrUnknownEffect = errors.New("unknown action effect")
)

// Store persists and retrieves raw policy documents.
// Interface in domain package per hexagonal architecture; implementations
// live in internal/adapter/outbound.
type Store interface {
	// GetPolicy returns the document for a scope/target pair.
	// Returns ErrNotFound when no policy exists at that scope.
	GetPolicy(ctx context.Context, scope Scope, scopeTarget string) (*Document, error)
	// AddPolicy creates or replaces the document for its scope/target pair.
	AddPolicy(ctx context.Context, doc *Document) error
	// Clear removes all policies. Test and dev use only.
	Clear(ctx context.Context) error
}

// Validate checks the document-level invariants: a recognized schema version,
// a known scope, and unique rule IDs.
func (d *Document) Validate() error {
	if d.Version != SchemaVersion {
		return fmt.Errorf("unrecognized schema version %q (want %q)", d.Version, SchemaVersion)
	}
	switch d.Scope {
	case ScopeGlobal, ScopeOrg, ScopeRepo:
	default:
		return fmt.Errorf("unrecognized scope %q", d.Scope)
	}
	switch d.Inheritance {
	case "", InheritExtend, InheritOverride:
	default:
		return fmt.Errorf("unrecognized inheritance strategy %q", d.Inheritance)
	}

	seen := make(map[string]struct{}, len(d.Rules))
	for _, r := range d.Rules {
		if r.ID == "" {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
