package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketch-repair/internal/types"
)

func TestDetectDelimiters(t *testing.T) {
	tests := []struct {
		name  string
		span  string
		kinds []types.IssueKind
		idx   []int
	}{
		{
			name: "balanced",
			span: "createCanvas(400, 400);\nbackground(map(x, 0, 1, 0, 255));",
		},
		{
			name:  "missing close in nested call",
			span:  "createFish(p.random(3);",
			kinds: []types.IssueKind{types.IssueMissingClose},
			idx:   []int{10},
		},
		{
			name:  "extra close",
			span:  "fill(255));",
			kinds: []types.IssueKind{types.IssueExtraClose},
			idx:   []int{9},
		},
		{
			name:  "issues ordered by index",
			span:  "f());\ng(h(1);",
			kinds: []types.IssueKind{types.IssueExtraClose, types.IssueMissingClose},
			idx:   []int{3, 7},
		},
		{
			name: "shader source is exempt",
			span: "const fragmentShader = `precision mediump float; void main() { gl_FragColor = vec4(1.0;}`;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := DetectDelimiters(tt.span)
			require.Len(t, issues, len(tt.kinds))
			for i, is := range issues {
				assert.Equal(t, tt.kinds[i], is.Kind)
				assert.Equal(t, tt.idx[i], is.Index)
			}
		})
	}
}

func TestDetectDelimiters_LineAndColumn(t *testing.T) {
	issues := DetectDelimiters("function setup() {\n  createFish(p.random(3);\n}")
	require.Len(t, issues, 1)
	assert.Equal(t, 2, issues[0].Line)
	assert.Equal(t, 13, issues[0].Column)
}

func TestContainsShaderMarkers(t *testing.T) {
	assert.True(t, ContainsShaderMarkers("uniform float time;"))
	assert.True(t, ContainsShaderMarkers("gl_Position = vec4(pos, 1.0);"))
	assert.False(t, ContainsShaderMarkers("let Uniform = 3;"))
	assert.False(t, ContainsShaderMarkers("p.fill(255);"))
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "abc", "abc", 1},
		{"both empty", "", "", 1},
		{"one empty", "", "abc", 0},
		{"order ignored", "cba", "abc", 1},
		{"seven of ten", "abcdefgXYZ", "abcdefghijklmnop", 0.7},
		{"shorter drives the ratio", "abcdefghijklmnop", "abcdefgXYZ", 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
	assert.False(t, Similarity("abcdefgXYZ", "abcdefghijklmnop") > FuzzyThreshold)
}
