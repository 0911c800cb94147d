package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/azkit/internal/config"
	"github.com/mattjoyce/azkit/internal/doctor"
	"github.com/mattjoyce/azkit/internal/lock"
)

func runConfigNoun(args []string) int {
	action, rest, code, ok := nounAction(args, printConfigNounHelp)
	if !ok {
		return code
	}
	if hasHelpFlag(rest) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	switch action {
	case "check":
		return runConfigCheck(rest)
	case "lock":
		return runConfigLock(rest)
	case "get":
		return runConfigGet(rest)
	case "set":
		return runConfigSet(rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: azkit config <action> [--config-dir PATH] [flags]")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  check [--json] [--strict]      Validate config.yaml, its integrity lock and profiles")
	fmt.Fprintln(w, "  lock [-v] [--dry-run]          Record config.yaml hashes in .checksums")
	fmt.Fprintln(w, "  get <path> [--json]            Read a value (dot path or profile:<name>)")
	fmt.Fprintln(w, "  set <path>=<value> [--dry-run | --apply]")
}

func resolveConfigDir(configDir string) (string, error) {
	dir, err := config.DiscoverConfigDir(configDir)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return "", fmt.Errorf("--config-dir must be a directory: %s", dir)
	}
	return dir, nil
}

type checkReport struct {
	Valid     bool     `json:"valid"`
	ConfigDir string   `json:"config_dir"`
	Profiles  []string `json:"profiles"`
	Warnings  []string `json:"warnings,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configDir := fs.String("config-dir", "", "Path to configuration directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	strict := fs.Bool("strict", false, "Treat warnings as errors")
	if _, err := parseInterspersed(fs, args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	dir, err := resolveConfigDir(*configDir)
	if err != nil {
		return fail("%v", err)
	}

	report := checkReport{Valid: true, ConfigDir: dir}
	integrity, err := config.VerifyIntegrity(dir)
	if err != nil {
		report.Valid = false
		report.Errors = append(report.Errors, err.Error())
	} else {
		report.Warnings = append(report.Warnings, integrity.Warnings...)
		report.Errors = append(report.Errors, integrity.Errors...)
		report.Valid = integrity.Passed
	}

	if report.Valid {
		cfg, err := config.Load(dir)
		if err != nil {
			report.Valid = false
			report.Errors = append(report.Errors, err.Error())
		} else {
			report.Profiles = cfg.ProfileNames()
			diag := doctor.New(cfg).Validate()
			for _, issue := range diag.Errors {
				report.Errors = append(report.Errors, formatIssue(issue))
			}
			for _, issue := range diag.Warnings {
				report.Warnings = append(report.Warnings, formatIssue(issue))
			}
			report.Valid = diag.Valid
		}
	}

	if *jsonOut {
		if code := printJSON(report); code != 0 {
			return code
		}
	} else {
		for _, e := range report.Errors {
			fmt.Printf("  ERROR %s\n", e)
		}
		for _, w := range report.Warnings {
			fmt.Printf("  WARN  %s\n", w)
		}
		if report.Valid {
			fmt.Printf("Config %s: ✓ valid (%d profile(s): %s)\n", dir, len(report.Profiles), strings.Join(report.Profiles, ", "))
		} else {
			fmt.Printf("Config %s: invalid (%d error(s))\n", dir, len(report.Errors))
		}
	}

	if !report.Valid {
		return 1
	}
	if *strict && len(report.Warnings) > 0 {
		return 2
	}
	return 0
}

func formatIssue(i doctor.Issue) string {
	if i.Field == "" {
		return fmt.Sprintf("[%s] %s", i.Category, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Category, i.Field, i.Message)
}

func runConfigLock(args []string) int {
	var verbose, verboseShort bool
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configDir := fs.String("config-dir", "", "Path to configuration directory")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	dryRun := fs.Bool("dry-run", false, "Show hashes without writing .checksums")
	if _, err := parseInterspersed(fs, args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	dir, err := resolveConfigDir(*configDir)
	if err != nil {
		return fail("%v", err)
	}
	if !*dryRun {
		edit, err := lock.Acquire(dir)
		if err != nil {
			return fail("%v", err)
		}
		defer edit.Release()
	}
	// Refuse to lock a config that does not load.
	if _, err := config.LoadUnverified(dir); err != nil {
		return fail("%v", err)
	}

	report, err := config.GenerateChecksums(dir, config.LockedFiles, *dryRun)
	if err != nil {
		return fail("failed to lock config in %s: %v", dir, err)
	}

	if verbose || verboseShort || *dryRun {
		for _, f := range report.Files {
			if f.Exists {
				fmt.Printf("  HASH %s %s\n", f.Hash, f.Filename)
			} else {
				fmt.Printf("  SKIP %s (missing)\n", f.Filename)
			}
		}
	}
	if report.Written {
		fmt.Printf("Locked %s\n", report.ChecksumPath)
	} else {
		fmt.Printf("Dry-run: %s not written\n", report.ChecksumPath)
	}
	return 0
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	configDir := fs.String("config-dir", "", "Path to configuration directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	positionals, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positionals) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: azkit config get <path> [--json]")
		return 1
	}

	cfg, err := loadConfig(*configDir, true)
	if err != nil {
		return fail("%v", err)
	}
	val, err := cfg.GetPath(positionals[0])
	if err != nil {
		return fail("%v", err)
	}

	if *jsonOut {
		return printJSON(val)
	}
	switch val.(type) {
	case map[string]any, []any, config.Profile:
		data, err := yaml.Marshal(val)
		if err != nil {
			return fail("%v", err)
		}
		fmt.Print(string(data))
	default:
		fmt.Printf("%v\n", val)
	}
	return 0
}

func runConfigSet(args []string) int {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	configDir := fs.String("config-dir", "", "Path to configuration directory")
	dryRun := fs.Bool("dry-run", false, "Preview changes")
	apply := fs.Bool("apply", false, "Apply changes")
	positionals, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positionals) != 1 || !strings.Contains(positionals[0], "=") {
		fmt.Fprintln(os.Stderr, "Usage: azkit config set <path>=<value> [--dry-run | --apply]")
		return 1
	}
	if *dryRun == *apply {
		return fail("exactly one of --dry-run or --apply must be specified")
	}

	path, value, _ := strings.Cut(positionals[0], "=")
	cfg, err := loadConfig(*configDir, true)
	if err != nil {
		return fail("%v", err)
	}

	if *dryRun {
		if err := cfg.SetPath(path, value, false); err != nil {
			return fail("dry-run validation failed: %v", err)
		}
		fmt.Printf("Dry-run: would set %q to %q\n", path, value)
		return 0
	}

	edit, err := lock.Acquire(cfg.Root)
	if err != nil {
		return fail("%v", err)
	}
	defer edit.Release()

	if err := cfg.SetPath(path, value, true); err != nil {
		return fail("apply failed: %v", err)
	}
	fmt.Printf("Successfully set %q to %q\n", path, value)
	if _, err := os.Stat(filepath.Join(cfg.Root, ".checksums")); err == nil {
		fmt.Println("Note: config.yaml changed; run 'azkit config lock' to re-authorize it.")
	}
	return 0
}
