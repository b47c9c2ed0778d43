package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Policy-Gate/policygate/internal/adapter/outbound/bundle"
	celcompiler "github.com/Policy-Gate/policygate/internal/adapter/outbound/cel"
	"github.com/Policy-Gate/policygate/internal/adapter/outbound/memory"
	"github.com/Policy-Gate/policygate/internal/adapter/outbound/sqlite"
	"github.com/Policy-Gate/policygate/internal/config"
	"github.com/Policy-Gate/policygate/internal/domain/audit"
	"github.com/Policy-Gate/policygate/internal/domain/policy"
	"github.com/Policy-Gate/policygate/internal/metrics"
	"github.com/Policy-Gate/policygate/internal/service"
)

var (
	evalOrg         string
	evalRepo        string
	evalRequestFile string
	evalDryRun      bool
	evalExitZero    bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Resolve the policy chain and evaluate a request",
	Long: `Evaluate resolves the policy chain (global, org, repo) from the
configured store, merges it, and evaluates the request in the given file.

The request file is YAML (or JSON) with actor, action, resource and context
sections:

  actor:
    id: alice
    roles: [maintainer]
  action:
    type: code_change
  resource:
    repo: acme/api
    files: [src/main.go]
  context:
    timestamp: 2026-08-30T14:00:00Z

The decision is printed as JSON. Denied and approval-required decisions
exit with code 2 (disable with --exit-zero) so the command slots into CI
pipelines.`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evalOrg, "org", "", "organization identifier for chain resolution")
	evaluateCmd.Flags().StringVar(&evalRepo, "repo", "", "repository identifier for chain resolution")
	evaluateCmd.Flags().StringVarP(&evalRequestFile, "file", "f", "", "request file (YAML or JSON)")
	evaluateCmd.Flags().BoolVar(&evalDryRun, "dry-run", false, "report per-rule condition outcomes instead of just the decision")
	evaluateCmd.Flags().BoolVar(&evalExitZero, "exit-zero", false, "exit 0 even when the decision is not allow")
	_ = evaluateCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)

	ctx := context.Background()

	store, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	req, err := readRequest(evalRequestFile)
	if err != nil {
		return err
	}

	exprCompiler, err := celcompiler.NewCompiler()
	if err != nil {
		return fmt.Errorf("create expression compiler: %w", err)
	}
	compiler := policy.NewCompiler(exprCompiler)
	m := metrics.New(prometheus.NewRegistry())
	engine := service.NewEngine(compiler, logger)
	resolver := service.NewResolver(store, m, logger)

	resolved, err := resolver.Resolve(ctx, evalOrg, evalRepo)
	if err != nil {
		return fmt.Errorf("resolve policy chain: %w", err)
	}
	if err := engine.LoadResolved(resolved, "effective"); err != nil {
		return err
	}

	if evalDryRun {
		result := engine.EvaluateDryRun(*req)
		return printJSON(result)
	}

	sink, err := buildAuditSink(cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	svc := service.NewEvaluationService(engine, sink, m, logger)

	resp := svc.Evaluate(ctx, *req)
	if err := printJSON(resp); err != nil {
		return err
	}

	if !resp.Allowed && !evalExitZero {
		// Returned, not os.Exit'ed, so deferred sink/store cleanup runs.
		return errDecisionBlocked
	}
	return nil
}

// buildStore constructs the configured policy store, loading any policy
// bundle directory and seeding the default global policy when enabled.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (policy.Store, func(), error) {
	var store policy.Store
	cleanup := func() {}

	switch cfg.Store.Backend {
	case "sqlite":
		s, err := sqlite.NewPolicyStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store = s
		cleanup = func() { _ = s.Close() }
	default:
		store = memory.NewPolicyStore()
	}

	if cfg.PolicyDir != "" {
		docs, err := bundle.LoadDir(cfg.PolicyDir)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := bundle.Seed(ctx, store, docs); err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("policy bundle loaded", "dir", cfg.PolicyDir, "documents", len(docs))
	}

	if cfg.ShouldSeedDefaults() {
		if err := service.SeedDefaultPolicy(ctx, store, logger); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	return store, cleanup, nil
}

// buildAuditSink constructs the configured decision record sink.
func buildAuditSink(cfg *config.Config) (audit.Sink, error) {
	if strings.HasPrefix(cfg.Audit.Output, "file://") {
		path := strings.TrimPrefix(cfg.Audit.Output, "file://")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		return &fileSink{AuditSink: memory.NewAuditSinkWithWriter(f, cfg.Audit.BufferSize), f: f}, nil
	}
	return memory.NewAuditSink(cfg.Audit.BufferSize), nil
}

// fileSink closes its file when the sink closes.
type fileSink struct {
	*memory.AuditSink
	f *os.File
}

func (s *fileSink) Close() error {
	if err := s.AuditSink.Close(); err != nil {
		return err
	}
	return s.f.Close()
}

// readRequest parses a YAML (or JSON, a YAML subset) request file.
func readRequest(path string) (*policy.Request, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request file: %w", err)
	}
	var req policy.Request
	if err := yaml.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("parse request file: %w", err)
	}
	return &req, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
