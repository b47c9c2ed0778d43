package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Policy-Gate/policygate/internal/adapter/outbound/bundle"
	celcompiler "github.com/Policy-Gate/policygate/internal/adapter/outbound/cel"
	"github.com/Policy-Gate/policygate/internal/domain/policy"
)

var lintCmd = &cobra.Command{
	Use:   "lint <path>...",
	Short: "Validate and compile policy files without loading them",
	Long: `Lint parses the given policy files (or directories of .yaml/.yml
files), validates the document structure, and compiles every rule,
including expression conditions. It reports the first error per file and
exits non-zero if any file fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLint,
}

func init() {
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	exprCompiler, err := celcompiler.NewCompiler()
	if err != nil {
		return fmt.Errorf("create expression compiler: %w", err)
	}
	compiler := policy.NewCompiler(exprCompiler)

	failed := 0
	for _, arg := range args {
		for _, path := range lintTargets(arg) {
			if err := lintFile(compiler, path); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed++
				continue
			}
			fmt.Printf("%s: ok\n", path)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d policy file(s) failed lint", failed)
	}
	return nil
}

// lintTargets expands a directory argument into its policy files. A path
// that cannot be read is returned as-is so lintFile reports the error.
func lintTargets(arg string) []string {
	info, err := os.Stat(arg)
	if err != nil || !info.IsDir() {
		return []string{arg}
	}
	entries, err := os.ReadDir(arg)
	if err != nil {
		return []string{arg}
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		paths = append(paths, filepath.Join(arg, entry.Name()))
	}
	return paths
}

func lintFile(compiler *policy.Compiler, path string) error {
	doc, err := bundle.LoadFile(path)
	if err != nil {
		return err
	}
	if _, err := compiler.Compile(doc); err != nil {
		return err
	}
	return nil
}
