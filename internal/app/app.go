package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "check":
		return runCheck(args[1:])
	case "submit":
		return runSubmit(args[1:])
	case "consolidate":
		return runConsolidate(args[1:])
	case "stats":
		return runStats(args[1:])
	case "serve":
		return runServe(args[1:])
	case "daemon":
		return runDaemon(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "tracker CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  tracker <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health       Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  validate     Validate violation report JSON files against the v1 schema")
	fmt.Fprintln(os.Stderr, "  check        Run the duplicate check for a report file without writing")
	fmt.Fprintln(os.Stderr, "  submit       Validate, check, and create-or-merge a report file")
	fmt.Fprintln(os.Stderr, "  consolidate  Run the batch duplicate consolidation pass")
	fmt.Fprintln(os.Stderr, "  stats        Show corpus and merge counters")
	fmt.Fprintln(os.Stderr, "  serve        Start the Echo API server")
	fmt.Fprintln(os.Stderr, "  daemon       Manage systemd units for serve and scheduled consolidation")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"tracker <command> -h\" for command-specific flags.")
}
