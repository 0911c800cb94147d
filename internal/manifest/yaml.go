package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/azkit/internal/errdefs"
)

type yamlManifest struct {
	Project  string             `yaml:"project"`
	Defaults map[string]any     `yaml:"defaults"`
	Files    []yamlFile         `yaml:"files"`
	Jobs     map[string]yamlJob `yaml:"jobs"`
}

type yamlFile struct {
	Path        string `yaml:"path"`
	ArchivePath string `yaml:"archive_path"`
}

type yamlJob struct {
	Type      string           `yaml:"type"`
	Script    string           `yaml:"script"`
	Options   []map[string]any `yaml:"options"`
	DependsOn []string         `yaml:"depends_on"`
}

func decodeYAML(data []byte) (*Manifest, error) {
	var raw yamlManifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse manifest: %v", errdefs.ErrValidation, err)
	}

	m := &Manifest{
		Project:  raw.Project,
		Defaults: raw.Defaults,
		Jobs:     make(map[string]JobSpec, len(raw.Jobs)),
	}
	for _, f := range raw.Files {
		m.Files = append(m.Files, File{Path: f.Path, ArchivePath: f.ArchivePath})
	}
	for name, j := range raw.Jobs {
		m.Jobs[name] = JobSpec{
			Type:      j.Type,
			Script:    j.Script,
			Options:   j.Options,
			DependsOn: j.DependsOn,
		}
	}
	return m, nil
}
