// Package cmd provides the CLI commands for policygate.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Policy-Gate/policygate/internal/config"
)

var cfgFile string

// errDecisionBlocked marks a non-allow evaluation decision. Execute maps it
// to exit code 2 after deferred cleanup has run.
var errDecisionBlocked = errors.New("decision blocked")

var rootCmd = &cobra.Command{
	Use:   "policygate",
	Short: "policygate - policy evaluation engine",
	Long: `policygate is a rule-based authorization engine that decides whether an
action (code change, deployment, agent action) is allowed, denied, flagged
for warning, or requires human approval.

Policies are declarative YAML documents scoped globally, per organization,
or per repository. Child scopes extend or override their parents, and rules
compete on priority: the highest-priority matching rule wins.

Quick start:
  1. Put policy documents in a directory (see 'policygate lint')
  2. Evaluate a request: policygate evaluate --org acme --repo acme/api -f request.yaml

Configuration:
  Config is loaded from policygate.yaml in the current directory,
  $HOME/.policygate/, or /etc/policygate/.

  Environment variables can override config values with the POLICYGATE_ prefix.
  Example: POLICYGATE_CACHE_MAX_SIZE=5000

Commands:
  evaluate    Resolve the policy chain and evaluate a request
  lint        Validate and compile policy documents
  version     Print version information`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errDecisionBlocked) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit status: 0 for success,
// 2 for a blocked decision, 1 for everything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errDecisionBlocked):
		return 2
	default:
		return 1
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./policygate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// newLogger builds the process logger from the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
