// Command consensus runs multi-agent LLM negotiation experiments.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"consensus/pkg/agent"
	llmmetrics "consensus/pkg/agent/middleware/metrics"
	"consensus/pkg/config"
	"consensus/pkg/experiment"
	"consensus/pkg/logx"
	"consensus/pkg/metrics"
	"consensus/pkg/persistence"
	"consensus/pkg/version"
)

// Exit codes.
const (
	exitOK      = 0
	exitConfig  = 1
	exitFailure = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run contains the main application logic and returns an exit code.
// This allows defers to execute before os.Exit is called.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return exitConfig
	}
	if opts.showVersion {
		fmt.Fprintln(stdout, version.String())
		return exitOK
	}
	opts.applyDebug()

	cfg, err := opts.loadConfig()
	if err != nil {
		return report(stderr, err)
	}

	if opts.encryptKeys {
		dst := cfg.Credentials.KeysFile + ".enc"
		if err := encryptKeys(cfg.Credentials.KeysFile, dst, stderr); err != nil {
			return report(stderr, err)
		}
		fmt.Fprintf(stdout, "🔒 Encrypted %s -> %s\n", cfg.Credentials.KeysFile, dst)
		return exitOK
	}

	if err := runExperiment(ctx, cfg, stdout, stderr); err != nil {
		return report(stderr, err)
	}
	return exitOK
}

// report prints err and maps it to an exit code.
func report(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "❌ %v\n", err)
	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return exitConfig
	}
	return exitFailure
}

func runExperiment(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	logger := logx.NewLogger("consensus")

	pool, err := loadPool(cfg, stderr)
	if err != nil {
		return err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.Info("placement seed %d", seed)

	reg := prometheus.NewRegistry()
	usage := llmmetrics.NewInternalRecorder()
	factory, err := agent.NewClientFactory(*cfg, pool,
		llmmetrics.Tee(llmmetrics.NewPrometheusRecorder(reg), usage))
	if err != nil {
		return err //nolint:wrapcheck // ConfigurationError is reported as is
	}

	deps := experiment.Deps{
		Clients:  factory,
		Recorder: metrics.NewPrometheusRecorder(reg),
		Files:    persistence.NewFileStore(cfg.OutputDir),
		RunID:    persistence.NewRunID(),
		Seed:     seed,
	}
	if cfg.Persistence.SQLitePath != "" {
		db, err := persistence.OpenSQLite(cfg.Persistence.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		defer func() {
			if cerr := db.Close(); cerr != nil {
				logger.Warn("failed to close sqlite store: %v", cerr)
			}
		}()
		deps.DB = db
	}

	runner, err := experiment.New(*cfg, deps)
	if err != nil {
		return err //nolint:wrapcheck // ConfigurationError is reported as is
	}

	rep, runErr := runner.Run(ctx)

	if cfg.Metrics.Enabled {
		if path, err := metrics.WriteSnapshot(reg, cfg.OutputDir); err != nil {
			logger.Warn("failed to write metrics snapshot: %v", err)
		} else {
			logger.Info("metrics snapshot written to %s", path)
		}
	}

	if rep != nil {
		printReport(stdout, rep, usage.Totals())
	}
	if runErr != nil {
		return fmt.Errorf("run %s: %w", deps.RunID, runErr)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("run %s interrupted: %w", deps.RunID, ctx.Err())
	}
	return nil
}

func printReport(w io.Writer, rep *experiment.Report, usage llmmetrics.AgentMetrics) {
	fmt.Fprintf(w, "Run %s (%s): %d/%d instances succeeded in %s\n",
		rep.RunID, rep.Variant, rep.Succeeded, rep.Instances, rep.Duration.Round(time.Millisecond))
	for _, f := range rep.Failed {
		fmt.Fprintf(w, "  instance %d failed: %v\n", f.Instance, f.Err)
	}

	out := rep.Output
	if out.Saved {
		fmt.Fprintf(w, "Record: %s (%d entries)\n", out.DataPath, out.Entries)
	} else {
		fmt.Fprintf(w, "⚠️  Record saved to fallback %s (%d entries)\n", out.DataPath, out.Entries)
	}
	if out.TrajectoryPath != "" {
		fmt.Fprintf(w, "Trajectory: %s\n", out.TrajectoryPath)
	}
	if out.SQLitePath != "" {
		fmt.Fprintf(w, "SQLite: %s\n", out.SQLitePath)
	}
	fmt.Fprintf(w, "Tokens: %d accounted, %d requests (%d failed), $%.4f estimated\n",
		out.Tokens, usage.RequestCount, usage.FailedCount, usage.TotalCost)
}
