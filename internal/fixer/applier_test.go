package fixer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketch-repair/internal/detector"
	"sketch-repair/internal/logger"
	"sketch-repair/internal/oracle"
	"sketch-repair/internal/types"
)

func TestBuildPrompt(t *testing.T) {
	script := "\ncreateFish(p.random(3);\n"
	issues := detector.DetectDelimiters(script)
	require.Len(t, issues, 1)

	p := BuildPrompt(script, issues)
	assert.Contains(t, p.User, "Issue 1: missing-close")
	assert.Contains(t, p.User, "at line 2, column 11")
	assert.Contains(t, p.User, ">    2 | createFish(p.random(3);")
	assert.Contains(t, p.User, `"lineNumber"`)
	assert.NotEmpty(t, p.System)
}

func TestApplyPatches(t *testing.T) {
	tests := []struct {
		name   string
		script string
		patch  types.Patch
		issues []types.Issue
		want   string
		method Method
	}{
		{
			name:   "exact",
			script: "a\ncreateFish(p.random(3);\n",
			patch:  types.Patch{LineNumber: 2, OriginalText: "p.random(3);", ReplacementText: "p.random(3));"},
			want:   "a\ncreateFish(p.random(3));\n",
			method: MethodExact,
		},
		{
			name:   "fuzzy above threshold",
			script: strings.Repeat("a", 71) + strings.Repeat("b", 29),
			patch:  types.Patch{LineNumber: 1, OriginalText: strings.Repeat("a", 100), ReplacementText: "fixed"},
			want:   "fixed",
			method: MethodFuzzy,
		},
		{
			name:   "fuzzy at threshold is not enough",
			script: strings.Repeat("a", 70) + strings.Repeat("b", 30),
			patch:  types.Patch{LineNumber: 1, OriginalText: strings.Repeat("a", 100), ReplacementText: "fixed"},
			want:   strings.Repeat("a", 70) + strings.Repeat("b", 30),
			method: MethodSkipped,
		},
		{
			name:   "heuristic missing close",
			script: "createFish(p.random(3);",
			patch:  types.Patch{LineNumber: 1, OriginalText: "zzz", ReplacementText: "whatever"},
			issues: []types.Issue{{Kind: types.IssueMissingClose, Line: 1, Column: 11}},
			want:   "createFish(p.random(3));",
			method: MethodHeuristic,
		},
		{
			name:   "heuristic extra close",
			script: "foo(1));",
			patch:  types.Patch{LineNumber: 1, OriginalText: "zzz", ReplacementText: "whatever"},
			issues: []types.Issue{{Kind: types.IssueExtraClose, Line: 1, Column: 7}},
			want:   "foo(1);",
			method: MethodHeuristic,
		},
		{
			name:   "heuristic needs an issue on the line",
			script: "foo(1));\nbar();",
			patch:  types.Patch{LineNumber: 2, OriginalText: "zzz", ReplacementText: "whatever"},
			issues: []types.Issue{{Kind: types.IssueExtraClose, Line: 1, Column: 7}},
			want:   "foo(1));\nbar();",
			method: MethodSkipped,
		},
		{
			name:   "range",
			script: "a\nb\nc\nd",
			patch:  types.Patch{StartLine: 2, EndLine: 3, OriginalText: "b\nc", ReplacementText: "bc"},
			want:   "a\nbc\nd",
			method: MethodRange,
		},
		{
			name:   "line out of range",
			script: "a\nb",
			patch:  types.Patch{LineNumber: 9, OriginalText: "a", ReplacementText: "b"},
			want:   "a\nb",
			method: MethodSkipped,
		},
		{
			name:   "identical replacement",
			script: "foo();",
			patch:  types.Patch{LineNumber: 1, OriginalText: "foo();", ReplacementText: "foo();"},
			want:   "foo();",
			method: MethodSkipped,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewPatchApplier(nil, logger.Nop())
			got, apps := a.ApplyPatches(tt.script, []types.Patch{tt.patch}, tt.issues)
			assert.Equal(t, tt.want, got)
			require.Len(t, apps, 1)
			assert.Equal(t, tt.method, apps[0].Method)
			if tt.method == MethodSkipped {
				assert.NotEmpty(t, apps[0].Reason)
			}
		})
	}
}

func TestApplyPatches_LineNumbersReferToOriginal(t *testing.T) {
	script := "one\ntwo\nthree\nfour\n"
	patches := []types.Patch{
		{StartLine: 1, EndLine: 2, OriginalText: "one\ntwo", ReplacementText: "one-two"},
		{LineNumber: 4, OriginalText: "four", ReplacementText: "FOUR"},
	}
	got, apps := NewPatchApplier(nil, nil).ApplyPatches(script, patches, nil)
	assert.Equal(t, "one-two\nthree\nFOUR\n", got)
	assert.True(t, apps[0].Applied())
	assert.True(t, apps[1].Applied())
}

func TestApplyPatches_LogsSkips(t *testing.T) {
	rec := logger.NewRecorder()
	a := NewPatchApplier(nil, rec)
	a.ApplyPatches("x", []types.Patch{{LineNumber: 3, OriginalText: "x", ReplacementText: "y"}}, nil)
	assert.True(t, rec.Contains("patch skipped"))
}

func TestApply_OracleFailureLeavesScript(t *testing.T) {
	script := "foo(1;\n"
	issues := detector.DetectDelimiters(script)

	a := NewPatchApplier(oracle.Disabled, logger.Nop())
	got, apps, err := a.Apply(context.Background(), script, issues)
	assert.Error(t, err)
	assert.Equal(t, script, got)
	assert.Empty(t, apps)

	a = NewPatchApplier(replying("I cannot help with that."), logger.Nop())
	got, _, err = a.Apply(context.Background(), script, issues)
	assert.ErrorIs(t, err, oracle.ErrNoPatches)
	assert.Equal(t, script, got)
}

func TestApply_NoIssuesSkipsOracle(t *testing.T) {
	called := false
	s := oracle.SuggesterFunc(func(context.Context, oracle.Prompt) (string, error) {
		called = true
		return "[]", nil
	})
	got, apps, err := NewPatchApplier(s, nil).Apply(context.Background(), "foo();", nil)
	require.NoError(t, err)
	assert.Equal(t, "foo();", got)
	assert.Empty(t, apps)
	assert.False(t, called)
}
