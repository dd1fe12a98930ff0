package detector

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"sketch-repair/internal/types"
)

var (
	cssPropertyRe   = regexp.MustCompile(`[a-zA-Z-]+\s*:\s*[^;{}]+[;}]`)
	cssSelectorRe   = regexp.MustCompile(`[^{}]+\{[^{}]*\}`)
	cssImperativeRe = regexp.MustCompile(`\b(?:function|var|const|let|return|else)\b|\b(?:if|for|while)\s*\(`)
	cssCommonPropRe = regexp.MustCompile(`(?i)\b(?:color|background(?:-color)?|margin|padding|font-size|font-family|width|height|display|position|border|overflow|top|left|right|bottom|text-align|opacity|z-index|transform|cursor|box-sizing|line-height|flex|justify-content|align-items)\s*:`)

	cssCommentRe      = regexp.MustCompile(`(?s)/\*.*?\*/`)
	cssLeadingPropRe  = regexp.MustCompile(`^\s*[a-zA-Z-]+\s*:\s*[^;{}]+;`)
	cssBareValueRe    = regexp.MustCompile(`^\s*:\s*[^;{}]+`)
	cssHasSelectorRe  = regexp.MustCompile(`[^{}@;\s][^{};]*\{`)
	cssNamedPropRe    = regexp.MustCompile(`[a-zA-Z-]+\s*:`)
	cssPairRe         = regexp.MustCompile(`[a-zA-Z-]+\s*:\s*[^;{}]+;`)
	cssRuleBodyRe     = regexp.MustCompile(`\{([^{}]*)\}`)
	cssPropertyLineRe = regexp.MustCompile(`^\s*[a-zA-Z-]+\s*:`)
)

// shortCSSLength is the length under which a candidate must name a common
// property to count as CSS.
const shortCSSLength = 100

// IsLikelyCSS reports whether text looks like a stylesheet fragment: it has a
// property: value pair, a selector { ... } block, no imperative code tokens,
// and, when short, at least one common property name.
func IsLikelyCSS(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if !cssPropertyRe.MatchString(text) || !cssSelectorRe.MatchString(text) {
		return false
	}
	if cssImperativeRe.MatchString(text) {
		return false
	}
	if len(text) < shortCSSLength && !cssCommonPropRe.MatchString(text) {
		return false
	}
	return true
}

// CSS issue categories reported by CheckCSS
const (
	CSSLeadingProperty  = "property before any selector"
	CSSUnbalancedBraces = "unbalanced braces"
	CSSBareValue        = "value without property name"
	CSSMultipleColons   = "multiple colons on one line"
	CSSMissingSemicolon = "missing semicolon"
)

// CheckCSS runs the structural heuristics over the content of a style block and
// returns one Issue per finding. Content that has a selector, a named property
// and a complete pair, and whose findings fall into at most one category, is
// treated as valid.
func CheckCSS(css string) []types.Issue {
	// Comments become spaces so offsets and line numbers stay put.
	clean := cssCommentRe.ReplaceAllStringFunc(css, func(c string) string {
		return strings.Map(func(r rune) rune {
			if r == '\n' {
				return r
			}
			return ' '
		}, c)
	})

	var issues []types.Issue
	add := func(category string, line int) {
		issues = append(issues, types.Issue{
			Kind:   types.IssueMalformedCSS,
			Line:   line,
			Detail: category,
		})
	}

	if m := cssLeadingPropRe.FindStringIndex(clean); m != nil {
		if brace := strings.Index(clean, "{"); brace == -1 || brace > m[1] {
			add(CSSLeadingProperty, 1)
		}
	}

	if strings.Count(clean, "{") != strings.Count(clean, "}") {
		add(CSSUnbalancedBraces, 0)
	}

	lines := strings.Split(clean, "\n")
	for i, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if cssBareValueRe.MatchString(t) {
			add(CSSBareValue, i+1)
		}
		if strings.Count(t, ":") > 1 && !strings.Contains(t, "::") &&
			!strings.HasPrefix(t, "@media") && !strings.HasPrefix(t, "@supports") {
			add(CSSMultipleColons, i+1)
		}
	}

	for _, m := range cssRuleBodyRe.FindAllStringSubmatchIndex(clean, -1) {
		body := clean[m[2]:m[3]]
		bodyLine := strings.Count(clean[:m[2]], "\n") + 1
		bodyLines := strings.Split(body, "\n")
		last := -1
		for i := len(bodyLines) - 1; i >= 0; i-- {
			if strings.TrimSpace(bodyLines[i]) != "" {
				last = i
				break
			}
		}
		for i, bl := range bodyLines {
			t := strings.TrimSpace(bl)
			if i == last || t == "" || !cssPropertyLineRe.MatchString(t) {
				continue
			}
			if !strings.HasSuffix(t, ";") {
				add(CSSMissingSemicolon, bodyLine+i)
			}
		}
	}

	if len(issues) == 0 {
		return nil
	}
	if cssHasSelectorRe.MatchString(clean) && cssNamedPropRe.MatchString(clean) &&
		cssPairRe.MatchString(clean) && len(Categories(issues)) <= 1 {
		return nil
	}
	return issues
}

// Categories returns the distinct issue details, sorted.
func Categories(issues []types.Issue) []string {
	seen := make(map[string]bool)
	var out []string
	for _, is := range issues {
		if !seen[is.Detail] {
			seen[is.Detail] = true
			out = append(out, is.Detail)
		}
	}
	sort.Strings(out)
	return out
}

// DescribeCSSIssues renders issues as a bullet list for prompts.
func DescribeCSSIssues(issues []types.Issue) string {
	var sb strings.Builder
	for _, is := range issues {
		if is.Line > 0 {
			sb.WriteString(fmt.Sprintf("- line %d: %s\n", is.Line, is.Detail))
		} else {
			sb.WriteString(fmt.Sprintf("- %s\n", is.Detail))
		}
	}
	return sb.String()
}
