package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/modullar/violations-tracker-backend/internal/cli"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	stats, err := pool.QueryTrackerStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query tracker stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	typeRows := make([][]string, 0, len(stats.ByType)+1)
	for _, row := range stats.ByType {
		typeRows = append(typeRows, []string{
			string(row.Type),
			fmt.Sprintf("%d", row.Count),
		})
	}
	typeRows = append(typeRows, []string{
		"TOTAL",
		fmt.Sprintf("%d", stats.ActiveViolations),
	})

	if err := writeTable([]string{"type", "active"}, typeRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render type table: %v\n", err)
		return 1
	}

	fmt.Println()
	corpusRows := [][]string{
		{"active_violations", fmt.Sprintf("%d", stats.ActiveViolations)},
		{"deleted_violations", fmt.Sprintf("%d", stats.DeletedViolations)},
		{"verified_count", fmt.Sprintf("%d", stats.VerifiedCount)},
		{"total_deaths", fmt.Sprintf("%d", stats.TotalDeaths)},
		{"merge_count", fmt.Sprintf("%d", stats.MergeCount)},
		{"last_recorded_at", formatUTCTimestampPtr(stats.LastRecordedAt)},
	}
	if err := writeTable([]string{"metric", "value"}, corpusRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render corpus table: %v\n", err)
		return 1
	}

	return 0
}
