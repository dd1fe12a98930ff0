package fixer

import (
	"html"
	"regexp"
	"strings"

	"sketch-repair/internal/logger"
	"sketch-repair/internal/types"
)

// encodedAttrs matches the attribute text of an entity-encoded tag without
// running past its closing &gt;.
const encodedAttrs = `(?:[^<>&\n]|&quot;|&#34;|&#39;|&amp;)*?`

var (
	encodedScriptSrcRe = regexp.MustCompile(`(?i)&lt;script\b` + encodedAttrs +
		`\bsrc\s*=\s*(?:"|&quot;|&#34;|'|&#39;)([^"'<>\s&]*(?:&amp;[^"'<>\s&]*)*)(?:"|&quot;|&#34;|'|&#39;)` +
		encodedAttrs + `&gt;(?:\s*&lt;/script\s*&gt;)?`)
	encodedTitleRe = regexp.MustCompile(`&lt;&gt;([^&<>\n]*?)&lt;/&gt;`)
	encodedTagRe   = regexp.MustCompile(`(?i)&lt;(/?)(script|title|style|link|meta)\b(` + encodedAttrs + `)&gt;`)
	titleTagRe     = regexp.MustCompile(`(?i)<title\b`)
)

// NormalizeMarkup rewrites entity-encoded tags back into markup: encoded
// script tags with a src, the empty-bracket title fragment, and encoded tags
// whose name is script, title, style, link or meta. Other encoded tags are
// left alone as displayed text. Every rewrite is one fix.
func NormalizeMarkup(doc string, log logger.Logger) Result {
	rec := newRecorder("markup", orDefault(log))

	doc = encodedScriptSrcRe.ReplaceAllStringFunc(doc, func(m string) string {
		src := html.UnescapeString(encodedScriptSrcRe.FindStringSubmatch(m)[1])
		rec.fixed(types.IssueEncodedMarkup, 0, "encoded script tag for "+src)
		return `<script src="` + src + `"></script>`
	})

	if !titleTagRe.MatchString(doc) {
		if loc := encodedTitleRe.FindStringSubmatchIndex(doc); loc != nil {
			text := doc[loc[2]:loc[3]]
			doc = doc[:loc[0]] + "<title>" + html.UnescapeString(text) + "</title>" + doc[loc[1]:]
			rec.fixed(types.IssueEncodedMarkup, 0, "encoded title fragment")
		}
	}

	doc = encodedTagRe.ReplaceAllStringFunc(doc, func(m string) string {
		sub := encodedTagRe.FindStringSubmatch(m)
		name := strings.ToLower(sub[2])
		rec.fixed(types.IssueEncodedMarkup, 0, "encoded <"+sub[1]+name+"> tag")
		return "<" + sub[1] + name + html.UnescapeString(sub[3]) + ">"
	})

	return rec.result(doc)
}
