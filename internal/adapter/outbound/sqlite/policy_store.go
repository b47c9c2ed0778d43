// Package sqlite provides a sqlite-backed policy store for single-binary
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Policy-Gate/policygate/internal/domain/policy"
)

const schema = `
CREATE TABLE IF NOT EXISTS policies (
	scope        TEXT NOT NULL,
	scope_target TEXT NOT NULL,
	name         TEXT NOT NULL,
	document     TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	PRIMARY KEY (scope, scope_target)
);
`

// PolicyStore implements policy.Store on a sqlite database. Documents are
// stored as JSON, one row per scope/target pair.
type PolicyStore struct {
	db *sql.DB
}

// NewPolicyStore opens (or creates) the database at path and ensures the schema.
func NewPolicyStore(path string) (*PolicyStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite handles one writer at a time; serialize at the pool level.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &PolicyStore{db: db}, nil
}

// GetPolicy returns the document for a scope/target pair.
// Returns policy.ErrNotFound when no row exists.
func (s *PolicyStore) GetPolicy(ctx context.Context, scope policy.Scope, scopeTarget string) (*policy.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM policies WHERE scope = ? AND scope_target = ?`,
		string(scope), scopeTarget,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, policy.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query policy: %w", err)
	}

	var doc policy.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode stored policy: %w", err)
	}
	return &doc, nil
}

// AddPolicy validates and upserts the document for its scope/target pair.
func (s *PolicyStore) AddPolicy(ctx context.Context, doc *policy.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO policies (scope, scope_target, name, document, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (scope, scope_target) DO UPDATE SET
		   name = excluded.name,
		   document = excluded.document,
		   updated_at = excluded.updated_at`,
		string(doc.Scope), doc.ScopeTarget, doc.Name, string(raw),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store policy: %w", err)
	}
	return nil
}

// Clear removes all policies. Test and dev use only.
func (s *PolicyStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM policies`); err != nil {
		return fmt.Errorf("clear policies: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *PolicyStore) Close() error {
	return s.db.Close()
}

// Compile-time interface verification.
var _ policy.Store = (*PolicyStore)(nil)
