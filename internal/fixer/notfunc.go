package fixer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"sketch-repair/internal/detector"
	"sketch-repair/internal/logger"
	"sketch-repair/internal/oracle"
	"sketch-repair/internal/types"
)

const notFunctionSystemPrompt = `You disable broken JavaScript in HTML pages (p5.js and three.js sketches).
Comment out the whole block you are given. Every line of your answer must start with //.
Reply with the commented block in a code block and nothing else.`

var commentMarkers = []string{"//", "/*", "*"}

// NotAFunctionFixer comments out the statements that call a method reported
// as not a function.
type NotAFunctionFixer struct {
	suggest oracle.Suggester
	log     logger.Logger
}

// NewNotAFunctionFixer creates a NotAFunctionFixer.
func NewNotAFunctionFixer(s oracle.Suggester, log logger.Logger) *NotAFunctionFixer {
	return &NotAFunctionFixer{suggest: orDisabled(s), log: orDefault(log)}
}

// Fix comments out, for every reported object.method pair, the enclosing
// block of each call site. One block is one fix.
func (f *NotAFunctionFixer) Fix(ctx context.Context, doc string, refs []detector.NotFunctionRef) Result {
	rec := newRecorder("not-a-function", f.log)
	for _, ref := range refs {
		callRe := regexp.MustCompile(`(?:^|[^\w$])` + regexp.QuoteMeta(ref.Object) +
			`\s*\.\s*` + regexp.QuoteMeta(ref.Method) + `\s*\(`)

		scripts := detector.InlineScripts(doc)
		found := false
		for i := len(scripts) - 1; i >= 0; i-- {
			b := scripts[i]
			content, sites := f.fixScript(ctx, b, ref, callRe, rec)
			if sites > 0 {
				found = true
			}
			if content != b.Content {
				doc = detector.ReplaceContent(doc, b, content)
			}
		}
		if !found {
			rec.skipped(types.IssueNotAFunction, ref.Line, ref.Key()+" has no call site in the document")
		}
	}
	return rec.result(doc)
}

func (f *NotAFunctionFixer) fixScript(ctx context.Context, b types.EmbeddedBlock, ref detector.NotFunctionRef,
	callRe *regexp.Regexp, rec *recorder) (string, int) {

	lines := strings.Split(b.Content, "\n")
	code := detector.CodeOnly(lines)

	sites := 0
	var spans []detector.Span
	for i, c := range code {
		if !callRe.MatchString(c) {
			continue
		}
		sites++
		span, ok := detector.InferBlock(lines, i)
		if !ok {
			rec.skipped(types.IssueNotAFunction, b.StartLine+i, ref.Key()+": no balanced block around the call")
			continue
		}
		if overlapsAny(spans, span) {
			continue
		}
		spans = append(spans, span)
	}
	if len(spans) == 0 {
		return b.Content, sites
	}

	// Bottom-up so earlier spans keep their line numbers.
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start > spans[j].Start })
	for _, s := range spans {
		block := append([]string(nil), lines[s.Start:s.End+1]...)
		replacement, source := f.commentOut(ctx, block, ref)

		next := make([]string, 0, len(lines)-len(block)+len(replacement))
		next = append(next, lines[:s.Start]...)
		next = append(next, replacement...)
		next = append(next, lines[s.End+1:]...)
		lines = next

		start, end := s.OneBased()
		rec.fixed(types.IssueNotAFunction, b.StartLine+s.Start,
			fmt.Sprintf("%s: commented out lines %d-%d (%s)", ref.Key(), start, end, source))
	}
	return strings.Join(lines, "\n"), sites
}

func overlapsAny(spans []detector.Span, s detector.Span) bool {
	for _, o := range spans {
		if o.Overlaps(s) {
			return true
		}
	}
	return false
}

func (f *NotAFunctionFixer) commentOut(ctx context.Context, block []string, ref detector.NotFunctionRef) ([]string, string) {
	prompt := oracle.Prompt{
		System: notFunctionSystemPrompt,
		User: fmt.Sprintf("%s.%s is not a function, so this block cannot run:\n\n%s\n",
			ref.Object, ref.Method, strings.Join(block, "\n")),
		MaxTokens: 1024,
	}
	reply, err := f.suggest.Suggest(ctx, prompt)
	if err == nil {
		candidate := strings.Split(oracle.StripCodeFence(reply), "\n")
		if IsCommentBlock(candidate) {
			return candidate, "suggestion"
		}
		f.log.Warn("suggested replacement is not fully commented", logger.String("pair", ref.Key()))
	} else {
		f.log.Debug("not-a-function suggestion unavailable", logger.Err(err))
	}
	return CommentLines(block), "fallback"
}

// IsCommentBlock reports whether every line starts with a comment marker and
// no code survives outside comments.
func IsCommentBlock(lines []string) bool {
	if len(lines) == 0 {
		return false
	}
	for _, l := range lines {
		t := strings.TrimSpace(l)
		ok := false
		for _, m := range commentMarkers {
			if strings.HasPrefix(t, m) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, c := range detector.CodeOnly(lines) {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// CommentLines prefixes every line with "// " after its indentation.
func CommentLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		indent := leadingIndent(l)
		rest := l[len(indent):]
		if rest == "" {
			out[i] = indent + "//"
			continue
		}
		out[i] = indent + "// " + rest
	}
	return out
}
