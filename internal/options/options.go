// Package options merges layered job option maps into a single flat mapping
// and renders it in the line-oriented job file format.
package options

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// DefaultSeparator joins nested keys.
const DefaultSeparator = "."

// Flatten collapses nested maps into dotted keys. Non-map values are leaves.
func Flatten(m map[string]any, sep string) map[string]any {
	if sep == "" {
		sep = DefaultSeparator
	}
	out := make(map[string]any, len(m))
	flattenInto(out, m, "", sep)
	return out
}

func flattenInto(out map[string]any, m map[string]any, prefix, sep string) {
	for key, value := range m {
		full := key
		if prefix != "" {
			full = prefix + sep + key
		}
		switch v := value.(type) {
		case map[string]any:
			flattenInto(out, v, full, sep)
		case map[string]string:
			nested := make(map[string]any, len(v))
			for k, s := range v {
				nested[k] = s
			}
			flattenInto(out, nested, full, sep)
		default:
			out[full] = value
		}
	}
}

// Merge flattens every layer and combines them. On a key collision the
// earliest layer wins.
func Merge(sep string, layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for i := len(layers) - 1; i >= 0; i-- {
		for k, v := range Flatten(layers[i], sep) {
			out[k] = v
		}
	}
	return out
}

// SortedKeys returns the option keys in rendering order.
func SortedKeys(opts map[string]any) []string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Render writes opts as sorted key=value lines, each LF-terminated.
func Render(w io.Writer, opts map[string]any) error {
	bw := bufio.NewWriter(w)
	for _, key := range SortedKeys(opts) {
		if _, err := fmt.Fprintf(bw, "%s=%s\n", key, FormatValue(opts[key])); err != nil {
			return fmt.Errorf("write option %q: %w", key, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush options: %w", err)
	}
	return nil
}

// FormatValue returns the textual form of a scalar option value.
// Integral floats (as decoded from YAML, JSON or HCL numbers) print without
// a fractional part or exponent.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return FormatValue(float64(val))
	default:
		return fmt.Sprintf("%v", v)
	}
}
