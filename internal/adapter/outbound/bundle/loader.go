// Package bundle loads policy documents from YAML files on disk.
package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Policy-Gate/policygate/internal/domain/policy"
)

// LoadFile reads and validates a single YAML policy document.
func LoadFile(path string) (*policy.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var doc policy.Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", filepath.Base(path), err)
	}
	return &doc, nil
}

// LoadDir reads every .yaml/.yml file in dir, in lexical order, and returns
// the validated documents. The first invalid document fails the whole load:
// a bad bundle is a configuration error, never silently skipped.
func LoadDir(dir string) ([]*policy.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read policy dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	docs := make([]*policy.Document, 0, len(names))
	for _, name := range names {
		doc, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Seed stores the documents into the policy store.
func Seed(ctx context.Context, store policy.Store, docs []*policy.Document) error {
	for _, doc := range docs {
		if err := store.AddPolicy(ctx, doc); err != nil {
			return fmt.Errorf("seed policy %q: %w", doc.Name, err)
		}
	}
	return nil
}
