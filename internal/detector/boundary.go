package detector

import (
	"regexp"
	"strings"
)

// Span is an inclusive, 0-based line range within a script.
type Span struct {
	Start int
	End   int
}

// OneBased returns the span as 1-based line numbers for prompts and logs.
func (s Span) OneBased() (int, int) {
	return s.Start + 1, s.End + 1
}

// Len returns the number of lines in the span.
func (s Span) Len() int {
	return s.End - s.Start + 1
}

// Overlaps reports whether s and o share a line.
func (s Span) Overlaps(o Span) bool {
	return s.Start <= o.End && o.Start <= s.End
}

var (
	continuationSuffixes = []string{"(", "{", ".", "=>", "&&", "||", "?", ":"}
	chainPrefixes        = []string{".", "&&", "||", "?", ":"}
	controlOpenerRe      = regexp.MustCompile(`^(?:\}\s*)?(?:if|for|while|function|try|catch|else|switch|do)\b`)
)

// InferBlock returns the minimal balanced statement or block that contains
// line idx. It walks backward over continuation lines and control openers,
// then forward until brace and paren counts balance. A single-line result
// whose line has no statement terminator is re-derived from the surrounding
// terminators. ok is false when no balanced span contains idx; a returned
// span always has zero net braces and parens.
func InferBlock(lines []string, idx int) (Span, bool) {
	if idx < 0 || idx >= len(lines) {
		return Span{}, false
	}
	code := CodeOnly(lines)

	start := idx
	for start > 0 && (isContinuation(code[start-1]) || startsWithChain(code[start])) {
		start--
	}

	end := idx
	braces, parens := netCounts(code, start, end)
	for (braces != 0 || parens != 0) && end < len(code)-1 {
		end++
		b, p := counts(code[end])
		braces += b
		parens += p
	}

	span := Span{Start: start, End: end}
	if span.Start == span.End && !terminated(code[idx]) {
		span = statementBounds(code, idx)
	}

	if isBalanced(code, span) {
		return span, true
	}
	single := Span{Start: idx, End: idx}
	if isBalanced(code, single) {
		return single, true
	}
	return Span{}, false
}

func isContinuation(code string) bool {
	t := strings.TrimSpace(code)
	if t == "" {
		return false
	}
	for _, s := range continuationSuffixes {
		if strings.HasSuffix(t, s) {
			return true
		}
	}
	return controlOpenerRe.MatchString(t)
}

func startsWithChain(code string) bool {
	t := strings.TrimSpace(code)
	for _, p := range chainPrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

func terminated(code string) bool {
	t := strings.TrimSpace(code)
	return strings.HasSuffix(t, ";") || strings.HasSuffix(t, "{") || strings.HasSuffix(t, "}")
}

// statementBounds widens idx to the lines between the nearest statement
// terminators before and after it.
func statementBounds(code []string, idx int) Span {
	s := idx
	for s > 0 && strings.TrimSpace(code[s-1]) != "" && !terminated(code[s-1]) {
		s--
	}
	e := idx
	for e < len(code)-1 && !terminated(code[e]) && strings.TrimSpace(code[e+1]) != "" {
		e++
	}
	return Span{Start: s, End: e}
}

func counts(code string) (braces, parens int) {
	for i := 0; i < len(code); i++ {
		switch code[i] {
		case '{':
			braces++
		case '}':
			braces--
		case '(':
			parens++
		case ')':
			parens--
		}
	}
	return braces, parens
}

func netCounts(code []string, start, end int) (braces, parens int) {
	for i := start; i <= end; i++ {
		b, p := counts(code[i])
		braces += b
		parens += p
	}
	return braces, parens
}

// isBalanced requires zero net counts and no prefix dipping below zero, so a
// span never closes a block it did not open.
func isBalanced(code []string, span Span) bool {
	braces, parens := 0, 0
	for i := span.Start; i <= span.End; i++ {
		for j := 0; j < len(code[i]); j++ {
			switch code[i][j] {
			case '{':
				braces++
			case '}':
				braces--
			case '(':
				parens++
			case ')':
				parens--
			}
			if braces < 0 || parens < 0 {
				return false
			}
		}
	}
	return braces == 0 && parens == 0
}

// CodeOnly blanks string literals and comments in lines, keeping line lengths,
// so delimiter counting ignores text that is not code. Block comments carry
// across lines; string literals do not.
func CodeOnly(lines []string) []string {
	out := make([]string, len(lines))
	inBlock := false
	for i, line := range lines {
		b := []byte(line)
		var quote byte
		for j := 0; j < len(b); j++ {
			c := b[j]
			switch {
			case inBlock:
				if c == '*' && j+1 < len(b) && b[j+1] == '/' {
					inBlock = false
					b[j], b[j+1] = ' ', ' '
					j++
					continue
				}
				b[j] = ' '
			case quote != 0:
				if c == '\\' && j+1 < len(b) {
					b[j], b[j+1] = ' ', ' '
					j++
					continue
				}
				if c == quote {
					quote = 0
					continue
				}
				b[j] = ' '
			case c == '"' || c == '\'' || c == '`':
				quote = c
			case c == '/' && j+1 < len(b) && b[j+1] == '/':
				for k := j; k < len(b); k++ {
					b[k] = ' '
				}
				j = len(b)
			case c == '/' && j+1 < len(b) && b[j+1] == '*':
				inBlock = true
				b[j], b[j+1] = ' ', ' '
				j++
			}
		}
		out[i] = string(b)
	}
	return out
}
