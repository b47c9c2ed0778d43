package bundle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Policy-Gate/policygate/internal/adapter/outbound/memory"
	"github.com/Policy-Gate/policygate/internal/domain/policy"
)

const validPolicyYAML = `version: "1"
name: org-acme
scope: org
scope_target: acme
inheritance: extend
default_action:
  effect: deny
  reason: nothing matched
rules:
  - id: deny-high-complexity
    name: Deny very complex changes
    priority: 100
    conditions:
      - type: complexity
        operator: gt
        threshold: 80
    action:
      effect: deny
      reason: too complex
  - id: approve-off-hours
    priority: 50
    conditions:
      - type: time_window
        days: [sat, sun]
        start_hour: 0
        end_hour: 24
    action:
      effect: require_approval
      approval:
        min_approvers: 2
        required_roles: [oncall]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "org.yaml", validPolicyYAML)

	doc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}

	if doc.Name != "org-acme" || doc.Scope != policy.ScopeOrg || doc.Inheritance != policy.InheritExtend {
		t.Errorf("document header = %+v", doc)
	}
	if len(doc.Rules) != 2 {
		t.Fatalf("loaded %d rules, want 2", len(doc.Rules))
	}

	r := doc.Rules[0]
	if r.Priority != 100 || r.Conditions[0].Type != policy.ConditionComplexity || r.Conditions[0].Threshold != 80 {
		t.Errorf("first rule = %+v", r)
	}
	if ap := doc.Rules[1].Action.Approval; ap == nil || ap.MinApprovers != 2 || len(ap.RequiredRoles) != 1 {
		t.Errorf("approval block = %+v", doc.Rules[1].Action.Approval)
	}
	if doc.DefaultAction == nil || doc.DefaultAction.Effect != policy.EffectDeny {
		t.Errorf("default action = %+v", doc.DefaultAction)
	}
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.yaml", "version: [not: closed")

	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile() should fail on malformed YAML")
	}
}

func TestLoadFile_FailsValidation(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", `version: "7"
name: bad
scope: global
`)

	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile() should reject an unrecognized schema version")
	}
}

func TestLoadDir_LexicalOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "20-org.yaml", `{version: "1", name: second, scope: org, scope_target: acme}`)
	writeFile(t, dir, "10-global.yml", `{version: "1", name: first, scope: global, scope_target: default}`)
	writeFile(t, dir, "notes.txt", "ignored")

	docs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("loaded %d documents, want 2", len(docs))
	}
	if docs[0].Name != "first" || docs[1].Name != "second" {
		t.Errorf("load order = %q, %q; want lexical by filename", docs[0].Name, docs[1].Name)
	}
}

func TestLoadDir_OneBadFileFailsWholeLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.yaml", validPolicyYAML)
	writeFile(t, dir, "z-bad.yaml", `version: "7"`)

	if _, err := LoadDir(dir); err == nil {
		t.Fatal("LoadDir() must fail when any document is invalid")
	}
}

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "org.yaml", validPolicyYAML)

	docs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}

	store := memory.NewPolicyStore()
	if err := Seed(context.Background(), store, docs); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}

	got, err := store.GetPolicy(context.Background(), policy.ScopeOrg, "acme")
	if err != nil {
		t.Fatalf("GetPolicy() after seed error: %v", err)
	}
	if got.Name != "org-acme" {
		t.Errorf("seeded document = %+v", got)
	}
}
