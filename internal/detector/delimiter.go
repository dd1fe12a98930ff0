package detector

import (
	"sort"
	"strings"

	"sketch-repair/internal/types"
)

// shaderMarkers identify GPU shader source. Scripts that embed shaders mix GLSL
// into string literals, and the paren scan below is not string-aware.
var shaderMarkers = []string{
	"fragmentShader",
	"vertexShader",
	"gl_FragColor",
	"gl_Position",
	"uniform ",
	"varying ",
	"precision mediump",
	"precision highp",
	"#version ",
}

// ContainsShaderMarkers reports whether span holds shader-language source.
func ContainsShaderMarkers(span string) bool {
	for _, m := range shaderMarkers {
		if strings.Contains(span, m) {
			return true
		}
	}
	return false
}

// DetectDelimiters scans span left to right with a stack of '(' positions.
// A ')' with an empty stack is an extra-close Issue; every '(' left on the
// stack is a missing-close Issue. Issues come back ordered by index. Spans
// containing shader markers produce no Issues.
func DetectDelimiters(span string) []types.Issue {
	if ContainsShaderMarkers(span) {
		return nil
	}

	var stack []int
	var issues []types.Issue
	for i := 0; i < len(span); i++ {
		switch span[i] {
		case '(':
			stack = append(stack, i)
		case ')':
			if len(stack) == 0 {
				issues = append(issues, newIssue(span, types.IssueExtraClose, i))
				continue
			}
			stack = stack[:len(stack)-1]
		}
	}
	for _, idx := range stack {
		issues = append(issues, newIssue(span, types.IssueMissingClose, idx))
	}

	sortIssues(issues)
	return issues
}

func newIssue(span string, kind types.IssueKind, idx int) types.Issue {
	before := span[:idx]
	line := strings.Count(before, "\n") + 1
	col := idx - strings.LastIndex(before, "\n")
	return types.Issue{Kind: kind, Index: idx, Line: line, Column: col}
}

func sortIssues(issues []types.Issue) {
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Index < issues[j].Index })
}

// CountParens returns the number of '(' and ')' in span.
func CountParens(span string) (opens, closes int) {
	return strings.Count(span, "("), strings.Count(span, ")")
}
