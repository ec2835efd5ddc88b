package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/modullar/violations-tracker-backend/internal/cli"
	"github.com/modullar/violations-tracker-backend/internal/config"
	"github.com/modullar/violations-tracker-backend/internal/db"
	"github.com/modullar/violations-tracker-backend/internal/dedup"
	"github.com/modullar/violations-tracker-backend/internal/geo"
	"github.com/modullar/violations-tracker-backend/internal/logging"
)

// runSubmit validates a report file, checks it against the corpus, and either
// creates a new record or merges the submission into the matched one. The same
// flow the HTTP submission endpoint runs, driven from a file.
func runSubmit(args []string) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	file := fs.String("file", "", "Path to a violation report .json file")
	noGeocode := fs.Bool("no-geocode", false, "Skip geocoding for name-only locations")
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
		logger.Error().Err(err).Msg("submit failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	if !*noGeocode && !incoming.HasCoordinates() && !incoming.LocationName.Empty() {
		geocoder := geo.NewClient(geo.ClientOptions{
			BaseURL:   cfg.GeocoderBaseURL,
			UserAgent: cfg.GeocoderUserAgent,
		})
		place, geoErr := geo.ResolveBilingual(
			ctx,
			geocoder,
			incoming.LocationName.EN,
			incoming.LocationName.AR,
			incoming.AdminDivision.EN,
			incoming.AdminDivision.AR,
		)
		if geoErr != nil {
			logger.Error().
				Err(geoErr).
				Str("location_en", incoming.LocationName.EN).
				Msg("geocoding failed, rejecting submission")
			fmt.Fprintf(os.Stderr, "Failed to geocode location %q: %v (use --no-geocode to submit name-only)\n",
				incoming.LocationName.EN, geoErr)
			return 1
		}
		incoming.Latitude = &place.Lat
		incoming.Longitude = &place.Lon
		// Coordinates change the content fingerprint.
		incoming.ContentHash = dedup.ContentHash(incoming)
	}

	checker := dedup.NewService(pool, checkConfigFrom(cfg), logger)

	check, err := checker.Check(ctx, incoming)
	if err != nil {
		logger.Error().Err(err).Msg("duplicate check failed")
		fmt.Fprintf(os.Stderr, "Duplicate check failed: %v\n", err)
		return 1
	}

	switch check.Kind {
	case dedup.MatchExact:
		return mergeSubmission(ctx, pool, logger, check, incoming)
	case dedup.MatchSimilarity:
		if cfg.MergeOnCreation {
			return mergeSubmission(ctx, pool, logger, check, incoming)
		}
		fmt.Fprintf(os.Stderr, "Refusing to create: %v (matched %s, total %.3f)\n",
			dedup.ErrAmbiguousDuplicates, check.Match.ViolationUUID, check.Result.Total)
		return 1
	}

	if err := pool.InsertViolation(ctx, incoming); err != nil {
		if errors.Is(err, db.ErrDuplicateContent) {
			existing, lookupErr := pool.FindByContentHash(ctx, incoming.ContentHash)
			if lookupErr == nil && existing != nil {
				retry := dedup.CheckResult{Kind: dedup.MatchExact, Match: existing}
				return mergeSubmission(ctx, pool, logger, retry, incoming)
			}
		}
		logger.Error().Err(err).Msg("insert violation failed")
		fmt.Fprintf(os.Stderr, "Failed to create violation: %v\n", err)
		return 1
	}

	fmt.Printf("created violation_uuid=%s\n", incoming.ViolationUUID)
	return 0
}

func mergeSubmission(ctx context.Context, pool *db.Pool, logger zerolog.Logger, check dedup.CheckResult, incoming *db.Violation) int {
	canonical := check.Match

	dedup.Merge(canonical, []db.Violation{*incoming}, dedup.MergePolicy{PreferNew: true}, time.Now().UTC(), incoming.CreatedBy)
	canonical.ContentHash = dedup.ContentHash(canonical)

	if err := pool.SaveViolation(ctx, canonical); err != nil {
		logger.Error().Err(err).Str("violation_uuid", canonical.ViolationUUID).Msg("merge save failed")
		fmt.Fprintf(os.Stderr, "Failed to merge into existing violation: %v\n", err)
		return 1
	}

	fmt.Printf("merged into violation_uuid=%s kind=%s\n", canonical.ViolationUUID, check.Kind)
	return 0
}
