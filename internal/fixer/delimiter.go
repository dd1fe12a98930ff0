package fixer

import (
	"context"
	"sort"
	"strings"

	"sketch-repair/internal/detector"
	"sketch-repair/internal/logger"
	"sketch-repair/internal/oracle"
	"sketch-repair/internal/types"
)

// StrayCloseMarker replaces an unmatched ')'. It holds no parenthesis, so a
// second scan does not see it.
const StrayCloseMarker = "/*stray-close*/"

// PatchDelimiters detects unbalanced parentheses in span and patches them
// deterministically. It returns the patched span and the number of issues
// fixed.
func PatchDelimiters(span string) (string, int) {
	return PatchDelimiterIssues(span, detector.DetectDelimiters(span))
}

// PatchDelimiterIssues applies the deterministic patch for issues found in
// span: every extra-close becomes StrayCloseMarker and every missing-close
// gets a ')' at the end of the code on the opening paren's line, before a
// trailing ';' or '{'. Issues on the same line stack in index order.
func PatchDelimiterIssues(span string, issues []types.Issue) (string, int) {
	out, fixed := patchIssues(span, issues)
	return out, len(fixed)
}

// patchIssues is PatchDelimiterIssues returning the issues it fixed.
func patchIssues(span string, issues []types.Issue) (string, []types.Issue) {
	if len(issues) == 0 {
		return span, nil
	}
	lines := strings.Split(span, "\n")

	var extras, missing []types.Issue
	for _, is := range issues {
		switch is.Kind {
		case types.IssueExtraClose:
			extras = append(extras, is)
		case types.IssueMissingClose:
			missing = append(missing, is)
		}
	}
	// Right to left so earlier columns on the same line stay valid.
	sort.SliceStable(extras, func(i, j int) bool { return extras[i].Index > extras[j].Index })
	sort.SliceStable(missing, func(i, j int) bool { return missing[i].Index < missing[j].Index })

	var fixed []types.Issue
	for _, is := range extras {
		li, col := is.Line-1, is.Column-1
		if li < 0 || li >= len(lines) || col < 0 || col >= len(lines[li]) || lines[li][col] != ')' {
			continue
		}
		lines[li] = lines[li][:col] + StrayCloseMarker + lines[li][col+1:]
		fixed = append(fixed, is)
	}
	for _, is := range missing {
		li := is.Line - 1
		if li < 0 || li >= len(lines) {
			continue
		}
		lines[li] = closeAtCodeEnd(lines[li])
		fixed = append(fixed, is)
	}
	return strings.Join(lines, "\n"), fixed
}

// scriptIssues finds delimiter issues in the code of script, ignoring parens
// inside string literals and comments. Offsets and positions match script.
func scriptIssues(script string) []types.Issue {
	if detector.ContainsShaderMarkers(script) {
		return nil
	}
	code := strings.Join(detector.CodeOnly(strings.Split(script, "\n")), "\n")
	return detector.DetectDelimiters(code)
}

// DelimiterFixer repairs unbalanced parentheses in every inline script. The
// suggestion oracle gets the first try; whatever it leaves unbalanced is
// patched deterministically.
type DelimiterFixer struct {
	applier *PatchApplier
	log     logger.Logger
}

// NewDelimiterFixer creates a DelimiterFixer.
func NewDelimiterFixer(s oracle.Suggester, log logger.Logger) *DelimiterFixer {
	log = orDefault(log)
	return &DelimiterFixer{applier: NewPatchApplier(s, log), log: log}
}

// Fix repairs doc and returns one record per applied patch.
func (f *DelimiterFixer) Fix(ctx context.Context, doc string) Result {
	rec := newRecorder("delimiters", f.log)
	scripts := detector.InlineScripts(doc)

	// Last block first so earlier offsets survive the rewrite.
	for i := len(scripts) - 1; i >= 0; i-- {
		b := scripts[i]
		issues := scriptIssues(b.Content)
		if len(issues) == 0 {
			continue
		}
		f.log.Debug("delimiter issues found",
			logger.Int("block", i),
			logger.Int("issues", len(issues)))

		content, apps, err := f.applier.Apply(ctx, b.Content, issues)
		if err == nil {
			for _, app := range apps {
				if app.Applied() {
					line := patchLine(app.Patch)
					rec.fixed(kindForLine(issues, line), b.StartLine+line-1, "suggested patch ("+string(app.Method)+")")
				}
			}
		}

		residue := scriptIssues(content)
		patched, fixed := patchIssues(content, residue)
		for _, is := range fixed {
			rec.fixed(is.Kind, b.StartLine+is.Line-1, "deterministic patch")
		}
		if len(fixed) < len(residue) {
			rec.skipped(types.IssueExtraClose, b.StartLine, "some delimiter issues could not be located")
		}
		doc = detector.ReplaceContent(doc, b, patched)
	}
	return rec.result(doc)
}

func kindForLine(issues []types.Issue, line int) types.IssueKind {
	for _, is := range issues {
		if is.Line == line {
			return is.Kind
		}
	}
	if len(issues) > 0 {
		return issues[0].Kind
	}
	return types.IssueMissingClose
}

func patchLine(p types.Patch) int {
	if p.IsRange() {
		return p.StartLine
	}
	return p.LineNumber
}
