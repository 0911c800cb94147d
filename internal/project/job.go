package project

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattjoyce/azkit/internal/errdefs"
	"github.com/mattjoyce/azkit/internal/options"
)

// Job is a unit of work rendered into one <name>.job archive member.
//
// Attach runs once when the job is registered with a project; job types use it
// to register auxiliary files. Prepare runs on every build right before the
// job file is rendered and may still change the job's options.
type Job interface {
	Options() map[string]any
	Attach(p *Project, name string) error
	Prepare(p *Project, name string) error
}

// BaseJob is a job defined only by its option layers. Its hooks do nothing
// beyond resolving declared dependencies.
type BaseJob struct {
	layers       []map[string]any
	separator    string
	dependencies []string
}

var _ Job = (*BaseJob)(nil)

// NewJob creates a job from option layers. Earlier layers take precedence.
func NewJob(layers ...map[string]any) *BaseJob {
	return &BaseJob{layers: layers, separator: options.DefaultSeparator}
}

// Options returns the flattened, merged option mapping.
func (j *BaseJob) Options() map[string]any {
	return options.Merge(j.separator, j.layers...)
}

// Layers returns the option layers in precedence order.
func (j *BaseJob) Layers() []map[string]any {
	return append([]map[string]any(nil), j.layers...)
}

// Override adds a layer that takes precedence over every existing layer.
func (j *BaseJob) Override(layer map[string]any) {
	j.layers = append([]map[string]any{layer}, j.layers...)
}

// Fallback adds a layer that loses to every existing layer.
func (j *BaseJob) Fallback(layer map[string]any) {
	j.layers = append(j.layers, layer)
}

// DependsOn declares upstream jobs. They are checked against the project and
// rendered as the dependencies option at build time.
func (j *BaseJob) DependsOn(names ...string) {
	j.dependencies = append(j.dependencies, names...)
}

// Dependencies returns the declared upstream jobs.
func (j *BaseJob) Dependencies() []string {
	return append([]string(nil), j.dependencies...)
}

func (j *BaseJob) Attach(p *Project, name string) error { return nil }

// Prepare resolves declared dependencies into the dependencies option.
func (j *BaseJob) Prepare(p *Project, name string) error {
	if len(j.dependencies) == 0 {
		return nil
	}
	for _, dep := range j.dependencies {
		if dep == name {
			return fmt.Errorf("%w: job %q depends on itself", errdefs.ErrValidation, name)
		}
		if _, ok := p.Job(dep); !ok {
			return fmt.Errorf("%w: job %q depends on unknown job %q", errdefs.ErrValidation, name, dep)
		}
	}
	j.Override(map[string]any{"dependencies": strings.Join(j.dependencies, ",")})
	j.dependencies = nil
	return nil
}

// ScriptJob runs a script file of a given job type (pig, hive, ...). The script
// is shipped inside the project archive.
type ScriptJob struct {
	*BaseJob
	Type string
	Path string
}

var _ Job = (*ScriptJob)(nil)

// NewScriptJob creates a job of jobType running the script at path. The first
// layer is {type: jobType, <jobType>.script: path}; layers follow with lower precedence.
func NewScriptJob(jobType, path string, layers ...map[string]any) (*ScriptJob, error) {
	if strings.TrimSpace(jobType) == "" {
		return nil, fmt.Errorf("%w: script job type is empty", errdefs.ErrValidation)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s script missing: %q", errdefs.ErrMissingResource, jobType, path)
	}
	base := map[string]any{
		"type":              jobType,
		jobType + ".script": path,
	}
	return &ScriptJob{
		BaseJob: NewJob(append([]map[string]any{base}, layers...)...),
		Type:    jobType,
		Path:    path,
	}, nil
}

// Attach registers the script with the project at its default archive path.
func (j *ScriptJob) Attach(p *Project, name string) error {
	return p.AddFile(j.Path, "")
}
