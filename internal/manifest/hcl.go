package manifest

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/mattjoyce/azkit/internal/errdefs"
)

type hclManifest struct {
	Project  string     `hcl:"project"`
	Defaults cty.Value  `hcl:"defaults,optional"`
	Files    []*hclFile `hcl:"file,block"`
	Jobs     []*hclJob  `hcl:"job,block"`
}

type hclFile struct {
	Path        string `hcl:"path,label"`
	ArchivePath string `hcl:"archive_path,optional"`
}

type hclJob struct {
	Name      string    `hcl:"name,label"`
	Type      string    `hcl:"type,optional"`
	Script    string    `hcl:"script,optional"`
	Options   cty.Value `hcl:"options,optional"`
	DependsOn []string  `hcl:"depends_on,optional"`
}

func decodeHCL(filename string, data []byte) (*Manifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: parse manifest %s: %v", errdefs.ErrValidation, filename, diags)
	}

	var raw hclManifest
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("%w: decode manifest %s: %v", errdefs.ErrValidation, filename, diags)
	}
	defaults, err := ctyToMap(raw.Defaults)
	if err != nil {
		return nil, fmt.Errorf("%w: defaults: %v", errdefs.ErrValidation, err)
	}
	m := &Manifest{
		Project:  raw.Project,
		Defaults: defaults,
		Jobs:     make(map[string]JobSpec, len(raw.Jobs)),
	}
	for _, f := range raw.Files {
		m.Files = append(m.Files, File{Path: f.Path, ArchivePath: f.ArchivePath})
	}
	for _, j := range raw.Jobs {
		if _, dup := m.Jobs[j.Name]; dup {
			return nil, fmt.Errorf("%w: job %q declared twice", errdefs.ErrConflict, j.Name)
		}
		opts, err := ctyToLayers(j.Options)
		if err != nil {
			return nil, fmt.Errorf("%w: job %q options: %v", errdefs.ErrValidation, j.Name, err)
		}
		m.Jobs[j.Name] = JobSpec{
			Type:      j.Type,
			Script:    j.Script,
			Options:   opts,
			DependsOn: j.DependsOn,
		}
	}
	return m, nil
}

func ctyToMap(v cty.Value) (map[string]any, error) {
	native, err := ctyToNative(v)
	if err != nil || native == nil {
		return nil, err
	}
	m, ok := native.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %s", v.Type().FriendlyName())
	}
	return m, nil
}

func ctyToLayers(v cty.Value) ([]map[string]any, error) {
	native, err := ctyToNative(v)
	if err != nil || native == nil {
		return nil, err
	}
	list, ok := native.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of objects, got %s", v.Type().FriendlyName())
	}
	layers := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("element %d is not an object", i)
		}
		layers = append(layers, m)
	}
	return layers, nil
}

// ctyToNative converts a cty value into plain Go maps, slices and scalars.
// Numbers become float64.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("convert number: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
