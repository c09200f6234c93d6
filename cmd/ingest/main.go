package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/smart-finance-ingest/pkg/config"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Financial document ingestion and review pipeline",
		Long: `Ingest stores bank statements, receipts and spreadsheet exports,
extracts candidate transactions from them, holds every extraction
for human review and writes approved transactions to the ledger.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("ingest %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	})

	rootCmd.AddCommand(
		migrateCmd(),
		storeCmd(),
		listCmd(),
		showCmd(),
		processCmd(),
		reviewCmd(),
		finalizeCmd(),
		resetCmd(),
		searchCmd(),
		summaryCmd(),
		serveCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run loads configuration, wires the dependencies and hands them to fn. The
// context is cancelled on SIGINT or SIGTERM.
func run(fn func(ctx context.Context, d *Dependencies) error) {
	cfg, err := config.Load()
	if err != nil {
		exitWithError(fmt.Errorf("failed to load config: %w", err))
	}
	logger := newLogger(cfg.Observability)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := InitDependencies(ctx, cfg, logger)
	if err != nil {
		exitWithError(err)
	}

	err = fn(ctx, deps)
	deps.Cleanup()
	if err != nil {
		exitWithError(err)
	}
}

// newLogger writes to stderr so command output on stdout stays parseable.
func newLogger(cfg config.ObservabilityConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func exitWithError(err error) {
	if jsonOutput {
		printJSON(map[string]interface{}{"ok": false, "message": err.Error()})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}
