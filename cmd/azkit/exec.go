package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mattjoyce/azkit/internal/tui/watch"
	"github.com/mattjoyce/azkit/internal/workflow"
)

func runExecNoun(args []string) int {
	action, rest, code, ok := nounAction(args, printExecNounHelp)
	if !ok {
		return code
	}
	if hasHelpFlag(rest) {
		printExecNounHelp(os.Stdout)
		return 0
	}

	switch action {
	case "status":
		return runExecStatus(rest)
	case "logs":
		return runExecLogs(rest)
	case "cancel":
		return runExecCancel(rest)
	case "watch":
		return runExecWatch(rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown exec action: %s\n", action)
		return 1
	}
}

func printExecNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: azkit exec <action> [flags]")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  status (-p PROFILE | ENDPOINT) EXEC_ID [--json]")
	fmt.Fprintln(w, "  logs   (-p PROFILE | ENDPOINT) EXEC_ID JOB [--offset N] [--limit N]")
	fmt.Fprintln(w, "  cancel (-p PROFILE | ENDPOINT) EXEC_ID")
	fmt.Fprintln(w, "  watch  (-p PROFILE | ENDPOINT) EXEC_ID [--exit] [--interval D]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Keybindings (watch):")
	fmt.Fprintln(w, "  q, Ctrl+C        Quit")
	fmt.Fprintln(w, "  ↑/↓, k/j         Navigate nodes")
}

func runExecStatus(args []string) int {
	var rf remoteFlags
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	rf.register(fs)
	jsonOut := fs.Bool("json", false, "Print the raw response as JSON")
	positionals, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	r, rest, err := connect(ctx, rf, positionals, 1)
	if err != nil {
		return fail("%v", err)
	}
	defer r.close(ctx)

	id, err := parseExecID(rest[0])
	if err != nil {
		return fail("%v", err)
	}
	out, err := r.client.ExecutionStatus(ctx, id)
	if err != nil {
		return fail("%v", err)
	}
	if *jsonOut {
		return printJSON(out)
	}

	exec, err := workflow.ParseExecution(out)
	if err != nil {
		return fail("%v", err)
	}
	fmt.Printf("Execution %d of %s/%s: %s\n", exec.ID, exec.Project, exec.Flow, exec.Status)
	for _, n := range exec.Nodes {
		fmt.Printf("  %-24s %s\n", n.ID, n.Status)
	}
	counts := exec.Counts()
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Printf("%s=%d ", s, counts[s])
	}
	if len(statuses) > 0 {
		fmt.Println()
	}
	return 0
}

func runExecLogs(args []string) int {
	var rf remoteFlags
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	rf.register(fs)
	offset := fs.Int("offset", 0, "Byte offset to start from")
	limit := fs.Int("limit", workflow.DefaultLogLimit, "Maximum bytes to fetch")
	positionals, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	r, rest, err := connect(ctx, rf, positionals, 2)
	if err != nil {
		return fail("%v", err)
	}
	defer r.close(ctx)

	id, err := parseExecID(rest[0])
	if err != nil {
		return fail("%v", err)
	}
	out, err := r.client.JobLogs(ctx, id, rest[1], *offset, *limit)
	if err != nil {
		return fail("%v", err)
	}
	fmt.Print(stringField(out, "data"))
	return 0
}

func runExecCancel(args []string) int {
	var rf remoteFlags
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	rf.register(fs)
	positionals, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	r, rest, err := connect(ctx, rf, positionals, 1)
	if err != nil {
		return fail("%v", err)
	}
	defer r.close(ctx)

	id, err := parseExecID(rest[0])
	if err != nil {
		return fail("%v", err)
	}
	if _, err := r.client.CancelExecution(ctx, id); err != nil {
		return fail("%v", err)
	}
	fmt.Printf("Cancelled execution %d\n", id)
	return 0
}

func runExecWatch(args []string) int {
	var rf remoteFlags
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	rf.register(fs)
	exit := fs.Bool("exit", false, "Quit when the execution finishes")
	interval := fs.Duration("interval", watch.DefaultInterval, "Status poll interval")
	positionals, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	r, rest, err := connect(ctx, rf, positionals, 1)
	if err != nil {
		return fail("%v", err)
	}
	defer r.close(ctx)

	id, err := parseExecID(rest[0])
	if err != nil {
		return fail("%v", err)
	}
	opts := []watch.Option{watch.WithInterval(*interval)}
	if *exit {
		opts = append(opts, watch.WithExitOnFinish())
	}
	final, err := watch.Run(ctx, r.client, id, opts...)
	if err != nil {
		return fail("%v", err)
	}
	return exitForExecution(final)
}

// exitForExecution maps a watched execution to an exit code: 0 unless it
// finished in a failed state.
func exitForExecution(exec *workflow.Execution) int {
	if exec == nil {
		return 0
	}
	fmt.Printf("Execution %d: %s\n", exec.ID, exec.Status)
	switch exec.Status {
	case "FAILED", "KILLED", "CANCELLED":
		return 1
	}
	return 0
}
