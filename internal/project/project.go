// Package project assembles jobs and auxiliary files into a deployable archive.
//
// A Project is built once per call: Build renders every job's flattened
// options into a <name>.job member and copies every registered file into the
// ZIP at its archive path. The archive is a pure function of the project's
// contents at call time.
//
// A Project is not safe for concurrent mutation.
package project

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattjoyce/azkit/internal/errdefs"
	"github.com/mattjoyce/azkit/internal/log"
)

// Project owns the job registry and the auxiliary-file registry.
type Project struct {
	name   string
	jobs   map[string]Job
	files  map[string]string
	logger *slog.Logger
}

// New creates an empty project.
func New(name string) *Project {
	return &Project{
		name:   name,
		jobs:   make(map[string]Job),
		files:  make(map[string]string),
		logger: log.WithProject(name),
	}
}

// Name returns the project name.
func (p *Project) Name() string { return p.name }

// AddFile includes the file at path in the archive. An empty archivePath
// stores the file at its absolute path with the leading separator removed.
//
// path must be absolute so nothing lands outside the archive root.
// Registering the same path twice is a no-op only if archivePath matches.
func (p *Project) AddFile(path, archivePath string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: relative path not allowed: %q", errdefs.ErrValidation, path)
	}
	if existing, ok := p.files[path]; ok {
		if existing != archivePath {
			return fmt.Errorf("%w: inconsistent duplicate: %q", errdefs.ErrConflict, path)
		}
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: file missing: %q", errdefs.ErrMissingResource, path)
	}
	p.files[path] = archivePath
	p.logger.Debug("file added", "path", path, "archive_path", archivePath)
	return nil
}

// AddJob registers job under name and runs its Attach hook.
func (p *Project) AddJob(name string, job Job) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: job name is empty", errdefs.ErrValidation)
	}
	if _, ok := p.jobs[name]; ok {
		return fmt.Errorf("%w: duplicate job name: %q", errdefs.ErrConflict, name)
	}
	p.jobs[name] = job
	p.logger.Debug("job added", "job", name)
	if err := job.Attach(p, name); err != nil {
		delete(p.jobs, name)
		return fmt.Errorf("attach job %q: %w", name, err)
	}
	return nil
}

// Job returns the job registered under name.
func (p *Project) Job(name string) (Job, bool) {
	j, ok := p.jobs[name]
	return j, ok
}

// JobNames returns the registered job names, sorted.
func (p *Project) JobNames() []string {
	names := make([]string, 0, len(p.jobs))
	for name := range p.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Files returns a copy of the file registry (source path to archive path, as registered).
func (p *Project) Files() map[string]string {
	out := make(map[string]string, len(p.files))
	for k, v := range p.files {
		out[k] = v
	}
	return out
}

// ArchivePath returns the member name a registered file is written to.
func ArchivePath(path, archivePath string) string {
	if archivePath != "" {
		return filepath.ToSlash(archivePath)
	}
	trimmed := strings.TrimPrefix(path, filepath.VolumeName(path))
	return strings.TrimLeft(filepath.ToSlash(trimmed), "/")
}
