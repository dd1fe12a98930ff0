package fixer

import (
	"regexp"
	"strings"

	"sketch-repair/internal/detector"
	"sketch-repair/internal/logger"
	"sketch-repair/internal/types"
)

// MaxStyleWraps bounds the primary wrapping loop.
const MaxStyleWraps = 5

var (
	styleAnchorRe = regexp.MustCompile(`(?is)(</script\s*>|</title\s*>|<meta\b[^>]*>|<head\b[^>]*>)([^<]+)`)
	bareRuleSetRe = regexp.MustCompile(`(?i)(?:\bbody\b|\bhtml\b|[#.][A-Za-z_][\w-]*)[^{}<>]*\{[^{}<>]*\}(?:\s*[^{}<>\s][^{}<>]*\{[^{}<>]*\})*`)
	styleOpenRe   = regexp.MustCompile(`(?i)<style\b`)
	headCloseRe   = regexp.MustCompile(`(?i)</head\s*>`)
	bodyOpenRe    = regexp.MustCompile(`(?i)<body\b`)
)

// styleCandidate is a span of bare CSS directly after an anchor tag.
type styleCandidate struct {
	start, end int // trimmed CSS text
}

// anchoredCandidates returns the bare CSS spans that follow a closing script
// or title tag, a meta tag or the head tag, in document order.
func anchoredCandidates(doc string) []styleCandidate {
	var out []styleCandidate
	for _, m := range styleAnchorRe.FindAllStringSubmatchIndex(doc, -1) {
		text := doc[m[4]:m[5]]
		trimmed := strings.TrimSpace(text)
		if !detector.IsLikelyCSS(trimmed) {
			continue
		}
		start := m[4] + strings.Index(text, trimmed)
		out = append(out, styleCandidate{start: start, end: start + len(trimmed)})
	}
	return out
}

func wrapStyle(css string) string {
	return "<style>\n" + css + "\n</style>"
}

// InferStyleBlocks wraps CSS rule text that sits outside any <style> tag. The
// primary strategy wraps CSS found directly after an anchor tag, in place, and
// looks again since a wrap can expose more CSS; it stops after MaxStyleWraps.
// Only when that finds nothing and the document has no <style> at all does the
// secondary strategy move a bare selector rule set into a new style block
// before </head>, else before <body>, else in place.
func InferStyleBlocks(doc string, log logger.Logger) Result {
	rec := newRecorder("style-inference", orDefault(log))

	worklist := anchoredCandidates(doc)
	for len(worklist) > 0 && len(rec.records) < MaxStyleWraps {
		c := worklist[0]
		css := doc[c.start:c.end]
		doc = doc[:c.start] + wrapStyle(css) + doc[c.end:]
		line := strings.Count(doc[:c.start], "\n") + 1
		rec.fixed(types.IssueUnwrappedStyle, line, "wrapped bare CSS in <style>")
		worklist = anchoredCandidates(doc)
	}
	if len(rec.records) > 0 || styleOpenRe.MatchString(doc) {
		return rec.result(doc)
	}

	scripts := detector.ExtractBlocks(doc, types.BlockScript)
	for _, m := range bareRuleSetRe.FindAllStringIndex(doc, -1) {
		if detector.InsideBlocks(scripts, m[0]) || insideTag(doc, m[0]) {
			continue
		}
		css := doc[m[0]:m[1]]
		if !detector.IsLikelyCSS(css) {
			continue
		}
		doc = moveStyle(doc, m[0], m[1], css)
		rec.fixed(types.IssueUnwrappedStyle, 0, "moved bare CSS rule set into <style>")
		break
	}
	return rec.result(doc)
}

// moveStyle removes doc[start:end] and inserts css wrapped in a style block
// before </head>, else before <body>, else at start.
func moveStyle(doc string, start, end int, css string) string {
	removed := doc[:start] + doc[end:]
	if loc := headCloseRe.FindStringIndex(removed); loc != nil {
		return removed[:loc[0]] + wrapStyle(css) + "\n" + removed[loc[0]:]
	}
	if loc := bodyOpenRe.FindStringIndex(removed); loc != nil {
		return removed[:loc[0]] + wrapStyle(css) + "\n" + removed[loc[0]:]
	}
	return doc[:start] + wrapStyle(css) + doc[end:]
}

// insideTag reports whether offset sits between a '<' and its '>'.
func insideTag(doc string, offset int) bool {
	open := strings.LastIndex(doc[:offset], "<")
	if open == -1 {
		return false
	}
	return !strings.Contains(doc[open:offset], ">")
}
