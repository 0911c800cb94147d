package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattjoyce/azkit/internal/history"
	"github.com/mattjoyce/azkit/internal/tui/picker"
	"github.com/mattjoyce/azkit/internal/tui/watch"
	"github.com/mattjoyce/azkit/internal/workflow"
)

func runFlowNoun(args []string) int {
	action, rest, code, ok := nounAction(args, printFlowNounHelp)
	if !ok {
		return code
	}
	if hasHelpFlag(rest) {
		printFlowNounHelp(os.Stdout)
		return 0
	}

	switch action {
	case "info":
		return runFlowInfo(rest)
	case "run":
		return runFlowRun(rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown flow action: %s\n", action)
		return 1
	}
}

func printFlowNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: azkit flow <action> [flags]")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  info (-p PROFILE | ENDPOINT) PROJECT FLOW [--json]")
	fmt.Fprintln(w, "  run  (-p PROFILE | ENDPOINT) PROJECT FLOW [--job J]... [--pick] [--block] [--watch] [--json]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "run without --job or --pick executes the whole flow. --block skips the")
	fmt.Fprintln(w, "submission when the flow is already running.")
}

func runFlowInfo(args []string) int {
	var rf remoteFlags
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	rf.register(fs)
	jsonOut := fs.Bool("json", false, "Print the raw response as JSON")
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

	projectName, flowName := rest[0], rest[1]
	info, err := r.client.WorkflowInfo(ctx, projectName, flowName)
	if err != nil {
		return fail("%v", err)
	}
	if *jsonOut {
		return printJSON(info)
	}

	nodes, _ := info["nodes"].([]any)
	fmt.Printf("Flow %s/%s (%d jobs)\n", projectName, flowName, len(nodes))
	for _, raw := range nodes {
		node, _ := raw.(map[string]any)
		line := "  " + stringField(node, "id")
		if t := stringField(node, "type"); t != "" {
			line += " [" + t + "]"
		}
		if deps, ok := node["in"].([]any); ok && len(deps) > 0 {
			names := make([]string, 0, len(deps))
			for _, d := range deps {
				names = append(names, fmt.Sprint(d))
			}
			line += " <- " + strings.Join(names, ", ")
		}
		fmt.Println(line)
	}
	return 0
}

func runFlowRun(args []string) int {
	var rf remoteFlags
	var jobs stringList
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	rf.register(fs)
	fs.Var(&jobs, "job", "Job to run (repeatable or comma separated); others are disabled")
	pick := fs.Bool("pick", false, "Choose jobs interactively")
	block := fs.Bool("block", false, "Skip if the flow is already running")
	follow := fs.Bool("watch", false, "Watch the execution after submitting")
	jsonOut := fs.Bool("json", false, "Print the raw response as JSON")
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

	req := workflow.RunRequest{Project: rest[0], Flow: rest[1], Jobs: jobs, Block: *block}
	if *pick {
		nodes, err := r.client.FlowNodes(ctx, req.Project, req.Flow)
		if err != nil {
			return fail("%v", err)
		}
		selected, err := picker.Run(ctx, req.Flow, nodes, req.Jobs)
		if err != nil {
			return fail("%v", err)
		}
		req.Jobs = selected
	}

	out, err := r.client.RunWorkflow(ctx, req)
	if err != nil {
		return fail("%v", err)
	}
	exec, err := workflow.ParseExecution(out)
	if err != nil {
		return fail("%v", err)
	}

	option := workflow.ConcurrentAllow
	if req.Block {
		option = workflow.ConcurrentSkip
	}
	if r.history != nil {
		if _, err := r.history.RecordExecution(ctx, history.Execution{
			URL:              r.session.URL(),
			Project:          req.Project,
			Flow:             req.Flow,
			ExecID:           exec.ID,
			Jobs:             req.Jobs,
			ConcurrentOption: option,
		}); err != nil {
			r.logger.Warn("failed to record execution", "error", err)
		}
	}

	if *jsonOut {
		if code := printJSON(out); code != 0 {
			return code
		}
	} else {
		fmt.Printf("Submitted execution %d of %s/%s\n", exec.ID, req.Project, req.Flow)
		fmt.Printf("%s/executor?execid=%d\n", r.session.URL(), exec.ID)
	}

	if *follow {
		final, err := watch.Run(ctx, r.client, exec.ID, watch.WithExitOnFinish())
		if err != nil {
			return fail("%v", err)
		}
		return exitForExecution(final)
	}
	return 0
}
