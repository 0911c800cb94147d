// Package manifest loads project definitions from YAML or HCL files and turns
// them into a project.Project ready to build.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattjoyce/azkit/internal/errdefs"
	"github.com/mattjoyce/azkit/internal/project"
)

// Manifest is the decoded form of a project definition file.
type Manifest struct {
	Project  string
	Defaults map[string]any
	Files    []File
	Jobs     map[string]JobSpec

	// Dir is the directory relative paths resolve against.
	Dir string
}

// File is an auxiliary file shipped in the archive.
type File struct {
	Path        string
	ArchivePath string
}

// JobSpec declares one job. A non-empty Script makes it a script job of Type.
type JobSpec struct {
	Type      string
	Script    string
	Options   []map[string]any
	DependsOn []string
}

// Load reads the manifest at path. The format follows the extension:
// .yaml and .yml are YAML, .hcl is HCL.
func Load(path string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: manifest %q", errdefs.ErrMissingResource, path)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m *Manifest
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".yaml", ".yml":
		m, err = decodeYAML(data)
	case ".hcl":
		m, err = decodeHCL(abs, data)
	default:
		return nil, fmt.Errorf("%w: unsupported manifest format %q", errdefs.ErrValidation, filepath.Ext(abs))
	}
	if err != nil {
		return nil, err
	}
	m.Dir = filepath.Dir(abs)
	return m, nil
}

// LoadProject loads the manifest at path and builds its project.
func LoadProject(path string) (*project.Project, error) {
	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	return m.Build()
}

// Build registers every file and job of the manifest on a new project.
//
// Layers for each job, highest precedence first: the job type, each entry of
// options in order, then the manifest defaults.
func (m *Manifest) Build() (*project.Project, error) {
	if strings.TrimSpace(m.Project) == "" {
		return nil, fmt.Errorf("%w: manifest has no project name", errdefs.ErrValidation)
	}
	p := project.New(m.Project)

	for _, f := range m.Files {
		if err := p.AddFile(m.resolve(f.Path), f.ArchivePath); err != nil {
			return nil, fmt.Errorf("file %q: %w", f.Path, err)
		}
	}

	names := make([]string, 0, len(m.Jobs))
	for name := range m.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		job, err := m.job(m.Jobs[name])
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", name, err)
		}
		if err := p.AddJob(name, job); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (m *Manifest) job(spec JobSpec) (project.Job, error) {
	layers := make([]map[string]any, 0, len(spec.Options)+1)
	layers = append(layers, spec.Options...)
	if len(m.Defaults) > 0 {
		layers = append(layers, m.Defaults)
	}

	if spec.Script != "" {
		if spec.Type == "" {
			return nil, fmt.Errorf("%w: script job needs a type", errdefs.ErrValidation)
		}
		job, err := project.NewScriptJob(spec.Type, m.resolve(spec.Script), layers...)
		if err != nil {
			return nil, err
		}
		job.DependsOn(spec.DependsOn...)
		return job, nil
	}

	if spec.Type != "" {
		layers = append([]map[string]any{{"type": spec.Type}}, layers...)
	}
	job := project.NewJob(layers...)
	job.DependsOn(spec.DependsOn...)
	return job, nil
}

func (m *Manifest) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.Dir, path)
}
