package options

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		sep  string
		want map[string]any
	}{
		{
			name: "flat map unchanged",
			in:   map[string]any{"type": "command", "retries": 2},
			want: map[string]any{"type": "command", "retries": 2},
		},
		{
			name: "nested maps use dotted keys",
			in: map[string]any{
				"pig": map[string]any{
					"script": "/x.pig",
					"param":  map[string]any{"day": "today"},
				},
			},
			want: map[string]any{"pig.script": "/x.pig", "pig.param.day": "today"},
		},
		{
			name: "custom separator",
			in:   map[string]any{"a": map[string]any{"b": 1}},
			sep:  "_",
			want: map[string]any{"a_b": 1},
		},
		{
			name: "string maps recurse",
			in:   map[string]any{"env": map[string]string{"HOME": "/tmp"}},
			want: map[string]any{"env.HOME": "/tmp"},
		},
		{
			name: "slices are leaves",
			in:   map[string]any{"deps": []any{"a", "b"}},
			want: map[string]any{"deps": []any{"a", "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Flatten(tt.in, tt.sep)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Flatten() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeEarliestLayerWins(t *testing.T) {
	got := Merge("", map[string]any{"a": 1}, map[string]any{"a": 2, "b": 3})
	assert.Equal(t, map[string]any{"a": 1, "b": 3}, got)
}

func TestMergeFlattensBeforeComparingKeys(t *testing.T) {
	got := Merge("",
		map[string]any{"pig": map[string]any{"script": "first.pig"}},
		map[string]any{"pig.script": "second.pig", "pig": map[string]any{"param": "x"}},
	)
	assert.Equal(t, map[string]any{"pig.script": "first.pig", "pig.param": "x"}, got)
}

func TestMergeNoLayers(t *testing.T) {
	assert.Empty(t, Merge(""))
}

func TestRenderSortedLines(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, map[string]any{"type": "pig", "pig.script": "/x.pig"})
	require.NoError(t, err)
	assert.Equal(t, "pig.script=/x.pig\ntype=pig\n", buf.String())
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"s", "s"},
		{nil, ""},
		{true, "true"},
		{3, "3"},
		{float64(2), "2"},
		{0.25, "0.25"},
		{[]any{"a", "b"}, "[a b]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in))
	}
}
