package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/blackcoderx/corpusctl/pkg/collector/adapter"
	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
	"github.com/blackcoderx/corpusctl/pkg/collector/config"
	"github.com/blackcoderx/corpusctl/pkg/collector/orchestrator"
	"github.com/blackcoderx/corpusctl/pkg/collector/output"
	"github.com/blackcoderx/corpusctl/pkg/collector/sources/fixture"
	"github.com/blackcoderx/corpusctl/pkg/collector/state"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	cfgFile   string
	verbose   bool
	dryRun    bool
	ruleNames []string
	level     = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	rootCmd = &cobra.Command{
		Use:   "corpusctl",
		Short: "corpusctl collects and normalizes content from configured sources into a local markdown corpus",
		RunE:  runCollect,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to the collector config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would happen without writing files, applying actions, or recording state")
	rootCmd.Flags().StringSliceVar(&ruleNames, "rule", nil, "restrict the run to these rule names (default: all)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("corpusctl %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})
}

func newLogger() *zap.Logger {
	if verbose {
		level.SetLevel(zapcore.DebugLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func runCollect(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", zap.Error(err))
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	store, err := state.Open(cfg.StateFile)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := adapter.NewRegistry()
	registerSources(registry, cfg)

	out := output.New(cfg.OutputDir)
	orch := orchestrator.New(registry, store, out, logger, dryRun)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	summary, err := orch.Run(ctx, cfg, ruleNames)
	printSummary(summary)
	if err != nil {
		return err
	}
	return nil
}

// registerSources registers a fixture adapter for each distinct
// rule.Source whose first rule sets source_options.fixture_path; the
// adapter is registered under the name "fixture" whatever rule.Source
// says. Rules without a fixture_path get no adapter here. Only the
// fixture reference adapter ships with this runtime; real sources
// (mail, reddit, Q&A, web-scrape) are out of scope.
func registerSources(registry *adapter.Registry, cfg *config.Config) {
	seen := make(map[string]bool)
	for _, rule := range cfg.Rules {
		if seen[rule.Source] {
			continue
		}
		seen[rule.Source] = true
		if path, ok := rule.SourceOptions["fixture_path"].(string); ok {
			registry.Register(fixture.New(path))
		}
	}
}

func printSummary(s orchestrator.Summary) {
	fmt.Printf("rules processed: %d\n", s.RulesProcessed)
	fmt.Printf("items saved:     %d\n", s.ItemsSaved)
	fmt.Printf("items skipped:   %d\n", s.ItemsSkipped)
	fmt.Printf("items errored:   %d\n", s.ItemsErrored)
	for kind, count := range s.ActionCounts {
		fmt.Printf("  %-10s %d\n", kind, count)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if ce, ok := cerrors.As(err); ok {
			fmt.Fprintf(os.Stderr, "error [%s]: %s\n", ce.Kind, remediationHint(ce))
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// remediationHint maps a cerrors.Kind to a short human-readable next
// step, satisfying spec.md §7's "stable error-code identifier and a
// human-readable remediation hint".
func remediationHint(e *cerrors.Error) string {
	switch e.Kind {
	case cerrors.KindConfig:
		return e.Error() + " -- check the config file referenced by --config"
	case cerrors.KindAuth:
		return e.Error() + " -- check the credentials configured for this source"
	case cerrors.KindState:
		return e.Error() + " -- the state file may be locked by another run or corrupted"
	case cerrors.KindSSRF, cerrors.KindPathTraversal, cerrors.KindInputValidation, cerrors.KindInjection:
		return e.Error() + " -- this is a security check failure, not a transient error"
	default:
		return e.Error()
	}
}
