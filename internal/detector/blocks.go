// Package detector holds the pure text analysis used by the repair passes:
// embedded block extraction, delimiter balance, block boundary inference, CSS
// structure checks and runtime error classification. Nothing here mutates a
// document or talks to an oracle.
package detector

import (
	"regexp"
	"strings"

	"sketch-repair/internal/types"
)

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b([^>]*)>(.*?)</script\s*>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style\b([^>]*)>(.*?)</style\s*>`)
	srcAttrRe     = regexp.MustCompile(`(?i)\bsrc\s*=`)
	typeAttrRe    = regexp.MustCompile(`(?i)\btype\s*=\s*["']?([^"'\s>]+)`)
)

// ExtractBlocks returns every script or style block of doc in document order.
func ExtractBlocks(doc string, kind types.BlockKind) []types.EmbeddedBlock {
	re := scriptBlockRe
	if kind == types.BlockStyle {
		re = styleBlockRe
	}

	var blocks []types.EmbeddedBlock
	for _, m := range re.FindAllStringSubmatchIndex(doc, -1) {
		b := types.EmbeddedBlock{
			Kind:         kind,
			Attrs:        doc[m[2]:m[3]],
			Start:        m[0],
			ContentStart: m[4],
			ContentEnd:   m[5],
			End:          m[1],
			Content:      doc[m[4]:m[5]],
		}
		b.StartLine = strings.Count(doc[:m[4]], "\n") + 1
		blocks = append(blocks, b)
	}
	return blocks
}

// InlineScripts returns the script blocks that carry inline JavaScript: no src
// attribute, non-blank content and no non-JavaScript type.
func InlineScripts(doc string) []types.EmbeddedBlock {
	var out []types.EmbeddedBlock
	for _, b := range ExtractBlocks(doc, types.BlockScript) {
		if srcAttrRe.MatchString(b.Attrs) || strings.TrimSpace(b.Content) == "" {
			continue
		}
		if t := ScriptType(b); t != "" && !isJavaScriptType(t) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// ScriptType returns the lower-cased type attribute of a script block, or "".
func ScriptType(b types.EmbeddedBlock) string {
	if m := typeAttrRe.FindStringSubmatch(b.Attrs); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

func isJavaScriptType(t string) bool {
	switch t {
	case "text/javascript", "application/javascript", "module", "text/babel":
		return true
	}
	return false
}

// ReplaceContent returns doc with the content of b replaced by content.
func ReplaceContent(doc string, b types.EmbeddedBlock, content string) string {
	return doc[:b.ContentStart] + content + doc[b.ContentEnd:]
}

// BlockAtLine returns the block whose content spans the 1-based document line.
func BlockAtLine(blocks []types.EmbeddedBlock, line int) (types.EmbeddedBlock, bool) {
	for _, b := range blocks {
		end := b.StartLine + strings.Count(b.Content, "\n")
		if line >= b.StartLine && line <= end {
			return b, true
		}
	}
	return types.EmbeddedBlock{}, false
}

// InsideBlocks reports whether offset falls inside the content of any block.
func InsideBlocks(blocks []types.EmbeddedBlock, offset int) bool {
	for _, b := range blocks {
		if offset >= b.Start && offset < b.End {
			return true
		}
	}
	return false
}
