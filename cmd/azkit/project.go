package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattjoyce/azkit/internal/history"
	"github.com/mattjoyce/azkit/internal/manifest"
	"github.com/mattjoyce/azkit/internal/options"
	"github.com/mattjoyce/azkit/internal/project"
)

func runProjectNoun(args []string) int {
	action, rest, code, ok := nounAction(args, printProjectNounHelp)
	if !ok {
		return code
	}
	if hasHelpFlag(rest) {
		printProjectNounHelp(os.Stdout)
		return 0
	}

	switch action {
	case "build":
		return runProjectBuild(rest)
	case "view":
		return runProjectView(rest)
	case "upload":
		return runProjectUpload(rest)
	case "create":
		return runProjectCreate(rest)
	case "delete":
		return runProjectDelete(rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown project action: %s\n", action)
		return 1
	}
}

func printProjectNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: azkit project <action> [flags]")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  build  -f FILE [-o PATH]")
	fmt.Fprintln(w, "  view   -f FILE [--json]")
	fmt.Fprintln(w, "  upload -f FILE (-p PROFILE | ENDPOINT) [--create] [--description D]")
	fmt.Fprintln(w, "  create (-p PROFILE | ENDPOINT) NAME [--description D]")
	fmt.Fprintln(w, "  delete (-p PROFILE | ENDPOINT) NAME")
}

func runProjectBuild(args []string) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	file := fs.String("f", "", "Project manifest (.yaml, .yml or .hcl)")
	output := fs.String("o", "", "Archive destination (default <project>.zip)")
	if _, err := parseInterspersed(fs, args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *file == "" {
		return fail("-f FILE is required")
	}

	p, err := manifest.LoadProject(*file)
	if err != nil {
		return fail("%v", err)
	}
	dest := *output
	if dest == "" {
		dest = p.Name() + ".zip"
	}
	if err := p.Build(dest); err != nil {
		return fail("%v", err)
	}
	digest, err := project.Digest(dest)
	if err != nil {
		return fail("%v", err)
	}

	fmt.Printf("Built %s (%d jobs, %d files)\n", dest, len(p.JobNames()), len(p.Files()))
	fmt.Printf("blake3: %s\n", digest)
	return 0
}

type projectView struct {
	Name  string                    `json:"name"`
	Jobs  map[string]map[string]any `json:"jobs"`
	Files map[string]string         `json:"files"`
}

func runProjectView(args []string) int {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	file := fs.String("f", "", "Project manifest (.yaml, .yml or .hcl)")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if _, err := parseInterspersed(fs, args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *file == "" {
		return fail("-f FILE is required")
	}

	p, err := manifest.LoadProject(*file)
	if err != nil {
		return fail("%v", err)
	}

	view := projectView{Name: p.Name(), Jobs: map[string]map[string]any{}, Files: map[string]string{}}
	for _, name := range p.JobNames() {
		job, _ := p.Job(name)
		if err := job.Prepare(p, name); err != nil {
			return fail("%v", err)
		}
		view.Jobs[name] = job.Options()
	}
	for path, archivePath := range p.Files() {
		view.Files[path] = project.ArchivePath(path, archivePath)
	}

	if *jsonOut {
		return printJSON(view)
	}

	fmt.Printf("Project: %s\n", view.Name)
	fmt.Printf("\nJobs (%d):\n", len(view.Jobs))
	for _, name := range p.JobNames() {
		var buf bytes.Buffer
		if err := options.Render(&buf, view.Jobs[name]); err != nil {
			return fail("%v", err)
		}
		fmt.Printf("  %s.job\n", name)
		for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
			fmt.Printf("    %s\n", line)
		}
	}

	paths := make([]string, 0, len(view.Files))
	for path := range view.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	fmt.Printf("\nFiles (%d):\n", len(paths))
	for _, path := range paths {
		fmt.Printf("  %s -> %s\n", path, view.Files[path])
	}
	return 0
}

func runProjectUpload(args []string) int {
	var rf remoteFlags
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	rf.register(fs)
	file := fs.String("f", "", "Project manifest (.yaml, .yml or .hcl)")
	create := fs.Bool("create", false, "Create the project first if it does not exist")
	description := fs.String("description", "", "Description used with --create")
	positionals, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *file == "" {
		return fail("-f FILE is required")
	}

	p, err := manifest.LoadProject(*file)
	if err != nil {
		return fail("%v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	r, _, err := connect(ctx, rf, positionals, 0)
	if err != nil {
		return fail("%v", err)
	}
	defer r.close(ctx)

	archive, cleanup, err := p.BuildTemp("")
	if err != nil {
		return fail("%v", err)
	}
	defer cleanup()

	digest, err := project.Digest(archive)
	if err != nil {
		return fail("%v", err)
	}
	info, err := os.Stat(archive)
	if err != nil {
		return fail("%v", err)
	}

	if *create {
		desc := *description
		if desc == "" {
			desc = p.Name()
		}
		if _, err := r.client.CreateProject(ctx, p.Name(), desc); err != nil {
			if !strings.Contains(err.Error(), "already exists") {
				return fail("%v", err)
			}
			r.logger.Debug("project already exists", "project", p.Name())
		}
	}

	out, err := r.client.UploadProject(ctx, p.Name(), archive)
	if err != nil {
		return fail("%v", err)
	}
	r.logger.Info("archive uploaded", "project", p.Name(), "digest", digest, "size", info.Size())

	rec := history.Upload{
		URL:       r.session.URL(),
		Project:   p.Name(),
		Digest:    digest,
		Size:      info.Size(),
		Version:   stringField(out, "version"),
		ProjectID: stringField(out, "projectId"),
	}
	if r.history != nil {
		if _, err := r.history.RecordUpload(ctx, rec); err != nil {
			r.logger.Warn("failed to record upload", "error", err)
		}
	}

	fmt.Printf("Uploaded %s to %s", p.Name(), r.session.URL())
	if rec.Version != "" {
		fmt.Printf(" (version %s)", rec.Version)
	}
	fmt.Println()
	return 0
}

func runProjectCreate(args []string) int {
	var rf remoteFlags
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	rf.register(fs)
	description := fs.String("description", "", "Project description (default: the name)")
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

	name := rest[0]
	desc := *description
	if desc == "" {
		desc = name
	}
	if _, err := r.client.CreateProject(ctx, name, desc); err != nil {
		return fail("%v", err)
	}
	fmt.Printf("Created project %s\n", name)
	return 0
}

func runProjectDelete(args []string) int {
	var rf remoteFlags
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
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

	if err := r.client.DeleteProject(ctx, rest[0]); err != nil {
		return fail("%v", err)
	}
	fmt.Printf("Deleted project %s\n", rest[0])
	return 0
}

// stringField renders a scalar response field, or "" when absent.
func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
