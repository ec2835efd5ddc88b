package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/modullar/violations-tracker-backend/internal/cli"
	"github.com/modullar/violations-tracker-backend/internal/config"
	"github.com/modullar/violations-tracker-backend/internal/consolidate"
	"github.com/modullar/violations-tracker-backend/internal/db"
	"github.com/modullar/violations-tracker-backend/internal/logging"
)

// runConsolidate executes one batch consolidation pass over the corpus. Dry
// run is the default; --apply is the only way to mutate the database.
func runConsolidate(args []string) int {
	fs := flag.NewFlagSet("consolidate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	apply := fs.Bool("apply", false, "Apply planned merges instead of only reporting them")
	violationType := fs.String("type", "", "Restrict the run to one violation type")
	from := fs.String("from", "", "Only consider records occurring on or after this date (YYYY-MM-DD)")
	to := fs.String("to", "", "Only consider records occurring before this date (YYYY-MM-DD)")
	threshold := fs.Float64("threshold", 0, "Override the similarity threshold (0 keeps the configured value)")
	minCorpus := fs.Int("min-corpus", 0, "Override the minimum corpus size gate (0 keeps the configured value)")
	maxDeletions := fs.Int("max-deletions", 0, "Override the per-run deletion cap (0 keeps the configured value)")
	preferNew := fs.Bool("prefer-new", false, "Prefer newer field values when merging")
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	opts := consolidate.Options{
		DryRun:               !*apply,
		MinCorpusSize:        cfg.ConsolidationMinCorpus,
		MaxDeletionsPerRun:   cfg.ConsolidationMaxDeletions,
		SimilarityThreshold:  cfg.SimilarityThreshold,
		LocationRadiusMeters: cfg.LocationRadiusMeters,
		Weights:              scorerWeightsFrom(cfg),
		PreferNew:            *preferNew,
	}
	if *threshold > 0 {
		opts.SimilarityThreshold = *threshold
	}
	if *minCorpus > 0 {
		opts.MinCorpusSize = *minCorpus
	}
	if *maxDeletions > 0 {
		opts.MaxDeletionsPerRun = *maxDeletions
	}

	if *violationType != "" {
		vt := db.ViolationType(*violationType)
		known := false
		for _, candidate := range db.KnownViolationTypes {
			if candidate == vt {
				known = true
				break
			}
		}
		if !known {
			fmt.Fprintf(os.Stderr, "Unknown violation type %q\n", *violationType)
			return 2
		}
		opts.Filter.Type = vt
	}
	if opts.Filter.From, err = parseDateFlag(*from); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --from: %v\n", err)
		return 2
	}
	if opts.Filter.To, err = parseDateFlag(*to); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --to: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("consolidate failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	runner := consolidate.NewRunner(pool, logger, opts)

	report, err := runner.Run(ctx)
	if err != nil {
		if errors.Is(err, consolidate.ErrCorpusTooSmall) || errors.Is(err, consolidate.ErrDeletionCapExceeded) {
			fmt.Fprintf(os.Stderr, "Run aborted: %v\n", err)
			return 1
		}
		logger.Error().Err(err).Msg("consolidation run failed")
		fmt.Fprintf(os.Stderr, "Consolidation run failed: %v\n", err)
		return 1
	}

	fmt.Println(report.RenderTable())
	return 0
}

func parseDateFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}
