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

// PlaceholderProperty names a property that lost its name.
const PlaceholderProperty = "--restored-property"

const cssSystemPrompt = `You repair CSS inside <style> blocks of HTML pages.
Return the corrected stylesheet only, in a css code block, or the exact words "no changes needed".`

var (
	bareValuePairRe = regexp.MustCompile(`(?m)(^|[;{])([ \t]*):[ \t]*([^;{}\n]+)([;}])`)
	unterminatedRe  = regexp.MustCompile(`([^;{}\s])(\s*)\}`)
	cssImperativeRe = regexp.MustCompile(`\b(?:function|var|const|let|return)\b`)
	noChangesRe     = regexp.MustCompile(`(?i)^\W*no changes needed\W*$`)
)

// CSSFixer repairs malformed CSS inside <style> blocks.
type CSSFixer struct {
	suggest oracle.Suggester
	log     logger.Logger
}

// NewCSSFixer creates a CSSFixer.
func NewCSSFixer(s oracle.Suggester, log logger.Logger) *CSSFixer {
	return &CSSFixer{suggest: orDisabled(s), log: orDefault(log)}
}

// Fix checks every style block and repairs the malformed ones. A block counts
// as fixed only when its whitespace-normalised text changed.
func (f *CSSFixer) Fix(ctx context.Context, doc string) Result {
	rec := newRecorder("css", f.log)
	blocks := detector.ExtractBlocks(doc, types.BlockStyle)

	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		issues := detector.CheckCSS(b.Content)
		if len(issues) == 0 {
			continue
		}

		repaired, source := f.repair(ctx, b.Content, issues)
		if normalizeSpace(repaired) == normalizeSpace(b.Content) {
			rec.skipped(types.IssueMalformedCSS, b.StartLine, "no effective change")
			continue
		}
		doc = detector.ReplaceContent(doc, b, preserveEdges(b.Content, repaired))
		rec.fixed(types.IssueMalformedCSS, b.StartLine,
			fmt.Sprintf("%s (%s)", strings.Join(detector.Categories(issues), ", "), source))
	}
	return rec.result(doc)
}

func (f *CSSFixer) repair(ctx context.Context, css string, issues []types.Issue) (string, string) {
	prompt := oracle.Prompt{
		System: cssSystemPrompt,
		User: "Stylesheet:\n" + editor.SplitLines(css).Numbered() +
			"\nDetected problems:\n" + detector.DescribeCSSIssues(issues) +
			"\nFix only these problems. Do not include the line numbers in your answer.",
		MaxTokens: 2048,
	}
	reply, err := f.suggest.Suggest(ctx, prompt)
	if err == nil {
		if noChangesRe.MatchString(strings.TrimSpace(reply)) {
			return css, "suggestion"
		}
		if candidate := oracle.StripCodeFence(reply); looksLikeCSS(candidate) {
			return candidate, "suggestion"
		}
		f.log.Warn("suggested stylesheet rejected", logger.Int("replyChars", len(reply)))
	} else {
		f.log.Debug("css suggestion unavailable", logger.Err(err))
	}
	return MechanicalCSSRepair(css), "fallback"
}

// looksLikeCSS accepts a suggested stylesheet when its braces balance, it
// has at least one rule and it carries no script or leftover fences.
func looksLikeCSS(s string) bool {
	if strings.TrimSpace(s) == "" || strings.Contains(s, "```") {
		return false
	}
	if !strings.Contains(s, "{") || strings.Count(s, "{") != strings.Count(s, "}") {
		return false
	}
	return !cssImperativeRe.MatchString(s)
}

// MechanicalCSSRepair gives a bare ": value" pair the PlaceholderProperty
// name and terminates the last declaration before a '}' with ';'.
func MechanicalCSSRepair(css string) string {
	out := bareValuePairRe.ReplaceAllString(css, "$1$2"+PlaceholderProperty+": $3$4")
	return unterminatedRe.ReplaceAllString(out, "$1;$2}")
}

// preserveEdges keeps the leading and trailing whitespace of the original
// block content around a repaired stylesheet.
func preserveEdges(original, repaired string) string {
	lead := original[:len(original)-len(strings.TrimLeft(original, " \t\r\n"))]
	trail := original[len(strings.TrimRight(original, " \t\r\n")):]
	return lead + strings.TrimSpace(repaired) + trail
}
