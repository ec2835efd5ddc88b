package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	daemonServeUnitName       = "tracker-serve.service"
	daemonConsolidateUnitName = "tracker-consolidate.service"
	daemonConsolidateTimer    = "tracker-consolidate.timer"
	systemdUnitDir            = "/etc/systemd/system"
)

// tracker-consolidate.service is timer-activated, so only the serve unit and
// the timer are enabled and started directly.
var daemonEnabledUnits = []string{
	daemonServeUnitName,
	daemonConsolidateTimer,
}

var daemonAllUnits = []string{
	daemonServeUnitName,
	daemonConsolidateUnitName,
	daemonConsolidateTimer,
}

func runDaemon(args []string) int {
	if len(args) == 0 {
		printDaemonUsage()
		return 2
	}

	action := strings.ToLower(strings.TrimSpace(args[0]))
	switch action {
	case "help", "-h", "--help":
		printDaemonUsage()
		return 0
	case "install":
		return runDaemonInstall(args[1:])
	case "uninstall":
		return runDaemonUninstall(args[1:])
	case "start":
		return runDaemonServiceAction("start", args[1:], true)
	case "stop":
		return runDaemonServiceAction("stop", args[1:], true)
	case "restart":
		return runDaemonServiceAction("restart", args[1:], true)
	case "status":
		return runDaemonServiceAction("status", args[1:], false)
	default:
		fmt.Fprintf(os.Stderr, "unknown daemon action: %s\n\n", args[0])
		printDaemonUsage()
		return 2
	}
}

func runDaemonInstall(args []string) int {
	fs := flag.NewFlagSet("daemon install", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	defaultUser := strings.TrimSpace(os.Getenv("USER"))
	if defaultUser == "" {
		defaultUser = "root"
	}

	userName := fs.String("user", defaultUser, "Run services as this Linux user")
	port := fs.Int("port", 8080, "Port for tracker-serve")
	binaryPath := fs.String("binary", "", "Path to the tracker binary (auto-detected if empty)")
	workDir := fs.String("work-dir", "", "Working directory holding the .env file (binary directory if empty)")
	schedule := fs.String("schedule", "*-*-* 03:00:00", "OnCalendar expression for the consolidation timer")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon install does not accept positional args")
		return 2
	}
	if err := validatePort(*port, "--port"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if strings.TrimSpace(*userName) == "" {
		fmt.Fprintln(os.Stderr, "--user must not be empty")
		return 2
	}
	if strings.TrimSpace(*schedule) == "" {
		fmt.Fprintln(os.Stderr, "--schedule must not be empty")
		return 2
	}
	if err := requireRoot("install"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	resolvedBinary, err := resolveTrackerBinary(*binaryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve --binary: %v\n", err)
		return 2
	}
	resolvedWorkDir := strings.TrimSpace(*workDir)
	if resolvedWorkDir == "" {
		resolvedWorkDir = filepath.Dir(resolvedBinary)
	} else {
		resolvedWorkDir, err = filepath.Abs(resolvedWorkDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to resolve --work-dir: %v\n", err)
			return 2
		}
		if !isDir(resolvedWorkDir) {
			fmt.Fprintf(os.Stderr, "--work-dir %q is not a directory\n", resolvedWorkDir)
			return 2
		}
	}

	user := strings.TrimSpace(*userName)
	units := map[string]string{
		daemonServeUnitName:       buildServeUnitFile(user, resolvedWorkDir, resolvedBinary, *port),
		daemonConsolidateUnitName: buildConsolidateUnitFile(user, resolvedWorkDir, resolvedBinary),
		daemonConsolidateTimer:    buildConsolidateTimerFile(strings.TrimSpace(*schedule)),
	}
	for _, unitName := range daemonAllUnits {
		if err := writeUnitFile(unitName, units[unitName]); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", unitName, err)
			return 1
		}
	}
	if err := runSystemctl("daemon-reload"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload systemd units: %v\n", err)
		return 1
	}

	enableArgs := append([]string{"enable"}, daemonEnabledUnits...)
	if err := runSystemctl(enableArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enable services: %v\n", err)
		return 1
	}

	fmt.Printf("Installed %s\n", strings.Join(daemonAllUnits, ", "))
	fmt.Println("Units are enabled on boot. Run `tracker daemon start` to start them now.")
	return 0
}

func runDaemonUninstall(args []string) int {
	fs := flag.NewFlagSet("daemon uninstall", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon uninstall does not accept positional args")
		return 2
	}
	if err := requireRoot("uninstall"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	stopArgs := append([]string{"stop"}, daemonEnabledUnits...)
	if err := runSystemctl(stopArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to stop one or more units: %v\n", err)
	}

	disableArgs := append([]string{"disable"}, daemonEnabledUnits...)
	if err := runSystemctl(disableArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to disable one or more units: %v\n", err)
	}

	for _, unitName := range daemonAllUnits {
		unitPath := filepath.Join(systemdUnitDir, unitName)
		if err := os.Remove(unitPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Failed to remove %s: %v\n", unitPath, err)
			return 1
		}
	}

	if err := runSystemctl("daemon-reload"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload systemd units: %v\n", err)
		return 1
	}

	fmt.Printf("Removed %s\n", strings.Join(daemonAllUnits, ", "))
	return 0
}

func runDaemonServiceAction(action string, args []string, requireRootPrivileges bool) int {
	fs := flag.NewFlagSet("daemon "+action, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "daemon %s does not accept positional args\n", action)
		return 2
	}
	if requireRootPrivileges {
		if err := requireRoot(action); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	units := daemonEnabledUnits
	if action == "status" {
		units = daemonAllUnits
	}

	systemctlArgs := make([]string, 0, 3+len(units))
	systemctlArgs = append(systemctlArgs, action)
	if action == "status" {
		systemctlArgs = append(systemctlArgs, "--no-pager")
	}
	systemctlArgs = append(systemctlArgs, units...)

	if err := runSystemctl(systemctlArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to %s units: %v\n", action, err)
		return 1
	}
	return 0
}

func validatePort(port int, flagName string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", flagName)
	}
	return nil
}

func requireRoot(action string) error {
	if os.Geteuid() == 0 {
		return nil
	}
	return fmt.Errorf("daemon %s requires root privileges; run with sudo: sudo tracker daemon %s", action, action)
}

func resolveTrackerBinary(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		absPath, err := filepath.Abs(trimmed)
		if err != nil {
			return "", fmt.Errorf("normalize path %q: %w", trimmed, err)
		}
		if !isExecutableFile(absPath) {
			return "", fmt.Errorf("%q is not an executable file", absPath)
		}
		return absPath, nil
	}

	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("unable to locate the running binary; use --binary: %w", err)
	}
	if resolvedPath, err := filepath.EvalSymlinks(exePath); err == nil {
		exePath = resolvedPath
	}
	return exePath, nil
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func buildServeUnitFile(userName, workDir, binaryPath string, port int) string {
	lines := []string{
		"[Unit]",
		"Description=Violations tracker API service",
		"After=network.target postgresql.service",
		"",
		"[Service]",
		"Type=simple",
		"User=" + userName,
		"WorkingDirectory=" + workDir,
		"ExecStart=" + binaryPath + " serve --host 0.0.0.0 --port " + strconv.Itoa(port),
		"Restart=on-failure",
		"RestartSec=5",
		"",
		"[Install]",
		"WantedBy=multi-user.target",
		"",
	}
	return strings.Join(lines, "\n")
}

func buildConsolidateUnitFile(userName, workDir, binaryPath string) string {
	lines := []string{
		"[Unit]",
		"Description=Violations tracker batch consolidation run",
		"After=network.target postgresql.service",
		"",
		"[Service]",
		"Type=oneshot",
		"User=" + userName,
		"WorkingDirectory=" + workDir,
		"ExecStart=" + binaryPath + " consolidate --apply",
		"",
		"[Install]",
		"WantedBy=multi-user.target",
		"",
	}
	return strings.Join(lines, "\n")
}

func buildConsolidateTimerFile(schedule string) string {
	lines := []string{
		"[Unit]",
		"Description=Schedule for the violations tracker consolidation run",
		"",
		"[Timer]",
		"OnCalendar=" + schedule,
		"Persistent=true",
		"Unit=" + daemonConsolidateUnitName,
		"",
		"[Install]",
		"WantedBy=timers.target",
		"",
	}
	return strings.Join(lines, "\n")
}

func writeUnitFile(name, content string) error {
	unitPath := filepath.Join(systemdUnitDir, name)
	return os.WriteFile(unitPath, []byte(content), 0o644)
}

func runSystemctl(args ...string) error {
	cmd := exec.Command("systemctl", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

func printDaemonUsage() {
	fmt.Fprintln(os.Stderr, "tracker daemon")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  tracker daemon <action> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Actions:")
	fmt.Fprintln(os.Stderr, "  install     Write unit files, daemon-reload, and enable units on boot")
	fmt.Fprintln(os.Stderr, "  uninstall   Stop, disable, and remove unit files")
	fmt.Fprintln(os.Stderr, "  start       Start the API service and the consolidation timer")
	fmt.Fprintln(os.Stderr, "  stop        Stop the API service and the consolidation timer")
	fmt.Fprintln(os.Stderr, "  restart     Restart the API service and the consolidation timer")
	fmt.Fprintln(os.Stderr, "  status      Show status for all units")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Install flags:")
	fmt.Fprintln(os.Stderr, "  --user <name>       Service user (default: $USER)")
	fmt.Fprintln(os.Stderr, "  --port <n>          API port (default: 8080)")
	fmt.Fprintln(os.Stderr, "  --binary <path>     Tracker binary (the running binary by default)")
	fmt.Fprintln(os.Stderr, "  --work-dir <path>   Working directory (binary directory by default)")
	fmt.Fprintln(os.Stderr, "  --schedule <expr>   OnCalendar schedule (default: daily at 03:00 UTC)")
}
