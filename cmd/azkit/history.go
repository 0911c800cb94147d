package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattjoyce/azkit/internal/history"
)

func runHistoryNoun(args []string) int {
	action, rest, code, ok := nounAction(args, printHistoryNounHelp)
	if !ok {
		return code
	}
	if hasHelpFlag(rest) {
		printHistoryNounHelp(os.Stdout)
		return 0
	}

	switch action {
	case "list":
		return runHistoryList(rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown history action: %s\n", action)
		return 1
	}
}

func printHistoryNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: azkit history list [--limit N] [--uploads | --executions] [--json] [--config-dir PATH]")
	fmt.Fprintln(w, "Show recorded uploads and executions, newest first.")
}

type historyListing struct {
	Uploads    []history.Upload    `json:"uploads,omitempty"`
	Executions []history.Execution `json:"executions,omitempty"`
}

func runHistoryList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configDir := fs.String("config-dir", "", "Path to configuration directory")
	limit := fs.Int("limit", history.DefaultListLimit, "Maximum records per kind")
	uploadsOnly := fs.Bool("uploads", false, "Only list uploads")
	execsOnly := fs.Bool("executions", false, "Only list executions")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if _, err := parseInterspersed(fs, args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *uploadsOnly && *execsOnly {
		return fail("use only one of --uploads or --executions")
	}

	cfg, err := loadConfig(*configDir, false)
	if err != nil {
		return fail("%v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := history.Open(ctx, cfg.StatePath())
	if err != nil {
		return fail("%v", err)
	}
	defer store.Close()

	var listing historyListing
	if !*execsOnly {
		if listing.Uploads, err = store.ListUploads(ctx, *limit); err != nil {
			return fail("%v", err)
		}
	}
	if !*uploadsOnly {
		if listing.Executions, err = store.ListExecutions(ctx, *limit); err != nil {
			return fail("%v", err)
		}
	}

	if *jsonOut {
		return printJSON(listing)
	}

	if !*execsOnly {
		fmt.Printf("Uploads (%d):\n", len(listing.Uploads))
		for _, u := range listing.Uploads {
			fmt.Printf("  %s  %-20s %-8s %s  %s\n",
				u.UploadedAt.Local().Format(time.DateTime), u.Project, versionLabel(u.Version), shortDigest(u.Digest), u.URL)
		}
	}
	if !*uploadsOnly {
		fmt.Printf("Executions (%d):\n", len(listing.Executions))
		for _, e := range listing.Executions {
			jobs := "all jobs"
			if len(e.Jobs) > 0 {
				jobs = strings.Join(e.Jobs, ",")
			}
			fmt.Printf("  %s  #%-6d %s/%s  %s  %s\n",
				e.SubmittedAt.Local().Format(time.DateTime), e.ExecID, e.Project, e.Flow, jobs, e.URL)
		}
	}
	return 0
}

func versionLabel(v string) string {
	if v == "" {
		return "-"
	}
	return "v" + v
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
