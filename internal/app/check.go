package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/modullar/violations-tracker-backend/internal/cli"
	"github.com/modullar/violations-tracker-backend/internal/config"
	"github.com/modullar/violations-tracker-backend/internal/db"
	"github.com/modullar/violations-tracker-backend/internal/dedup"
	"github.com/modullar/violations-tracker-backend/internal/logging"
	reportschema "github.com/modullar/violations-tracker-backend/internal/schema"
)

// runCheck scores one report file against the corpus and prints the verdict
// without writing anything.
func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	file := fs.String("file", "", "Path to a violation report .json file")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
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

	incoming, err := loadReportViolation(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load report: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("check failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	checker := dedup.NewService(pool, checkConfigFrom(cfg), logger)

	result, err := checker.Check(ctx, incoming)
	if err != nil {
		logger.Error().Err(err).Msg("duplicate check failed")
		fmt.Fprintf(os.Stderr, "Duplicate check failed: %v\n", err)
		return 1
	}

	if result.Kind == dedup.MatchNone {
		fmt.Println("no duplicate found")
		return 0
	}

	fmt.Printf("match kind=%s violation_uuid=%s total=%.3f\n",
		result.Kind, result.Match.ViolationUUID, result.Result.Total)
	breakdown, _ := json.MarshalIndent(result.Result, "", "  ")
	fmt.Println(string(breakdown))
	return 0
}

func loadReportViolation(path string) (*db.Violation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	report, err := reportschema.ValidateReportPayload(json.RawMessage(raw))
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}

	violation, err := report.ToViolation()
	if err != nil {
		return nil, err
	}
	violation.ContentHash = dedup.ContentHash(violation)
	return violation, nil
}

func checkConfigFrom(cfg *config.Config) dedup.CheckConfig {
	check := dedup.DefaultCheckConfig()
	check.Thresholds.BatchTotal = cfg.SimilarityThreshold
	check.Thresholds.CreationTotal = cfg.CreationThreshold
	check.Scorer.Weights = scorerWeightsFrom(cfg)
	check.Scorer.LocationRadiusMeters = cfg.CreationRadiusMeters
	check.WindowSpan = time.Duration(cfg.TimeWindowHours) * time.Hour / 2
	return check
}

func scorerWeightsFrom(cfg *config.Config) dedup.Weights {
	return dedup.Weights{
		Type:        cfg.WeightType,
		Time:        cfg.WeightTime,
		Location:    cfg.WeightLocation,
		Perpetrator: cfg.WeightPerpetrator,
		Casualties:  cfg.WeightCasualties,
		Description: cfg.WeightDescription,
	}
}
