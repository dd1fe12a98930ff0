package fixer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"sketch-repair/internal/detector"
	"sketch-repair/internal/editor"
	"sketch-repair/internal/logger"
	"sketch-repair/internal/oracle"
	"sketch-repair/internal/types"
)

// Method records how a suggested patch was applied.
type Method string

const (
	MethodExact     Method = "exact"
	MethodFuzzy     Method = "fuzzy"
	MethodHeuristic Method = "heuristic"
	MethodRange     Method = "range"
	MethodSkipped   Method = "skipped"
)

// Application is the outcome of one suggested patch.
type Application struct {
	Patch  types.Patch
	Method Method
	Reason string
}

// Applied reports whether the patch changed the text
func (a Application) Applied() bool {
	return a.Method != MethodSkipped
}

// contextRadius is the number of source lines shown each side of an issue.
const contextRadius = 5

const delimiterSystemPrompt = `You repair JavaScript embedded in HTML pages (p5.js and three.js sketches).
You only fix unbalanced parentheses. Never reformat or rename anything.
Reply with a JSON array of patch objects and nothing else.`

var lastCloseRe = regexp.MustCompile(`\)([^)]*)$`)

// PatchApplier asks the suggestion oracle for line patches and applies them
// with exact, fuzzy and type-directed matching.
type PatchApplier struct {
	suggest   oracle.Suggester
	log       logger.Logger
	maxTokens int
}

// NewPatchApplier creates an applier backed by s.
func NewPatchApplier(s oracle.Suggester, log logger.Logger) *PatchApplier {
	return &PatchApplier{suggest: orDisabled(s), log: orDefault(log), maxTokens: 1024}
}

// BuildPrompt describes each issue with its 1-based position and a window of
// surrounding lines, and asks for a strict JSON array of patches.
func BuildPrompt(script string, issues []types.Issue) oracle.Prompt {
	lines := editor.SplitLines(script)
	var sb strings.Builder
	sb.WriteString("The script below has unbalanced parentheses.\n\n")
	for i, is := range issues {
		sb.WriteString(fmt.Sprintf("Issue %d: %s (%s) at line %d, column %d\n",
			i+1, is.Kind, describeKind(is.Kind), is.Line, is.Column))
		sb.WriteString(lines.Window(is.Line, contextRadius))
		sb.WriteString("\n")
	}
	sb.WriteString(`Return a JSON array of patches, one per line you change:
[{"lineNumber": 3, "originalText": "current text of the line", "replacementText": "fixed text", "explanation": "why"}]
To replace several lines at once use "startLine" and "endLine" instead of "lineNumber".
Line numbers are the ones shown above. originalText must be copied exactly from the current line.`)
	return oracle.Prompt{System: delimiterSystemPrompt, User: sb.String()}
}

func describeKind(k types.IssueKind) string {
	switch k {
	case types.IssueMissingClose:
		return "an opening parenthesis is never closed"
	case types.IssueExtraClose:
		return "a closing parenthesis has no matching opening parenthesis"
	default:
		return string(k)
	}
}

// Suggest asks the oracle for patches covering issues. Any oracle or parse
// failure is returned as an error and no patches.
func (a *PatchApplier) Suggest(ctx context.Context, script string, issues []types.Issue) ([]types.Patch, error) {
	prompt := BuildPrompt(script, issues)
	prompt.MaxTokens = a.maxTokens
	reply, err := a.suggest.Suggest(ctx, prompt)
	if err != nil {
		return nil, err
	}
	patches, err := oracle.ExtractPatches(reply)
	if err != nil {
		a.log.Warn("suggestion had no usable patches", logger.Int("replyChars", len(reply)))
		return nil, err
	}
	return patches, nil
}

// Apply suggests and applies patches for issues in script. On any oracle
// failure it returns script unchanged with no applications.
func (a *PatchApplier) Apply(ctx context.Context, script string, issues []types.Issue) (string, []Application, error) {
	if len(issues) == 0 {
		return script, nil, nil
	}
	patches, err := a.Suggest(ctx, script, issues)
	if err != nil {
		if oracle.IsSoftFailure(err) {
			a.log.Debug("suggestion oracle unavailable", logger.Err(err))
		} else {
			a.log.Warn("suggestion oracle failed", logger.Err(err))
		}
		return script, nil, err
	}
	out, apps := a.ApplyPatches(script, patches, issues)
	return out, apps, nil
}

// ApplyPatches applies patches to script in order. Line numbers refer to the
// script as it was before any patch, so a multi-line replacement does not
// shift later patches. A patch that targets a line outside the script, or
// that matches neither exactly, fuzzily nor by issue type, is skipped.
func (a *PatchApplier) ApplyPatches(script string, patches []types.Patch, issues []types.Issue) (string, []Application) {
	lines := editor.SplitLines(script)
	slots := lines.Slice()
	deleted := make([]bool, len(slots))
	apps := make([]Application, 0, len(patches))

	for _, p := range patches {
		var app Application
		if p.IsRange() {
			app = applyRange(slots, deleted, p)
		} else {
			app = applyLine(slots, p, issues)
		}
		if !app.Applied() {
			a.log.Info("patch skipped",
				logger.Int("line", p.LineNumber),
				logger.String("reason", app.Reason))
		} else {
			a.log.Debug("patch applied",
				logger.Int("line", p.LineNumber),
				logger.String("method", string(app.Method)))
		}
		apps = append(apps, app)
	}

	kept := make([]string, 0, len(slots))
	for i, s := range slots {
		if !deleted[i] {
			kept = append(kept, s)
		}
	}
	out := strings.Join(kept, "\n")
	if strings.HasSuffix(script, "\n") {
		out += "\n"
	}
	return out, apps
}

func applyLine(slots []string, p types.Patch, issues []types.Issue) Application {
	n := p.LineNumber
	if n < 1 || n > len(slots) {
		return Application{Patch: p, Method: MethodSkipped, Reason: fmt.Sprintf("line %d out of range", n)}
	}
	current := slots[n-1]

	if p.OriginalText != "" && strings.Contains(current, p.OriginalText) {
		next := strings.Replace(current, p.OriginalText, p.ReplacementText, 1)
		return commit(slots, n, current, next, p, MethodExact)
	}

	if detector.Similarity(current, p.OriginalText) > detector.FuzzyThreshold {
		return commit(slots, n, current, p.ReplacementText, p, MethodFuzzy)
	}

	for _, is := range issues {
		if is.Line != n {
			continue
		}
		switch is.Kind {
		case types.IssueMissingClose:
			return commit(slots, n, current, closeAtCodeEnd(current), p, MethodHeuristic)
		case types.IssueExtraClose:
			return commit(slots, n, current, lastCloseRe.ReplaceAllString(current, "$1"), p, MethodHeuristic)
		}
	}
	return Application{Patch: p, Method: MethodSkipped, Reason: "original text does not match"}
}

func commit(slots []string, n int, current, next string, p types.Patch, m Method) Application {
	if next == current {
		return Application{Patch: p, Method: MethodSkipped, Reason: "replacement is identical"}
	}
	slots[n-1] = next
	return Application{Patch: p, Method: m}
}

func applyRange(slots []string, deleted []bool, p types.Patch) Application {
	s, e := p.StartLine, p.EndLine
	if s < 1 || e > len(slots) {
		return Application{Patch: p, Method: MethodSkipped, Reason: fmt.Sprintf("range %d-%d out of range", s, e)}
	}
	for i := s - 1; i < e; i++ {
		if deleted[i] {
			return Application{Patch: p, Method: MethodSkipped, Reason: "range overlaps an earlier range patch"}
		}
	}
	current := strings.Join(slots[s-1:e], "\n")

	var next string
	switch {
	case p.OriginalText != "" && strings.Contains(current, p.OriginalText):
		next = strings.Replace(current, p.OriginalText, p.ReplacementText, 1)
	case detector.Similarity(current, p.OriginalText) > detector.FuzzyThreshold:
		next = p.ReplacementText
	default:
		return Application{Patch: p, Method: MethodSkipped, Reason: "original range does not match"}
	}
	if next == current {
		return Application{Patch: p, Method: MethodSkipped, Reason: "replacement is identical"}
	}

	slots[s-1] = next
	for i := s; i < e; i++ {
		deleted[i] = true
	}
	return Application{Patch: p, Method: MethodRange}
}

// closeAtCodeEnd inserts ')' at the end of the code on line: before a
// trailing ';' or '{' when there is one, and before any trailing comment.
func closeAtCodeEnd(line string) string {
	code := detector.CodeOnly([]string{line})[0]
	end := len(strings.TrimRight(code, " \t\r"))
	head, tail := line[:end], line[end:]
	if strings.HasSuffix(head, ";") || strings.HasSuffix(head, "{") {
		body := strings.TrimRight(head[:len(head)-1], " \t")
		return body + ")" + head[len(body):] + tail
	}
	return head + ")" + tail
}
