package detector

import (
	"regexp"
	"strings"
)

type blockKind int

const (
	blockPlain blockKind = iota
	blockConditional
	blockFunction
)

var blockKeywordRe = regexp.MustCompile(`\b(if|else|for|while|do|try|catch|finally|switch|function|class)\b|=>`)

// Declaration is one var/let/const declaration of an identifier.
type Declaration struct {
	Offset      int  // offset of the declaring keyword
	Line        int  // 1-based
	TopLevel    bool // not inside any block
	Conditional bool // innermost block is conditional, or bare outside any function
	InFunction  bool
}

// FindDeclarations locates var/let/const declarations of name in script and
// classifies the block nesting each sits in. Strings and comments are ignored.
func FindDeclarations(script, name string) []Declaration {
	code := strings.Join(CodeOnly(strings.Split(script, "\n")), "\n")
	declRe := regexp.MustCompile(`\b(?:var|let|const)\s+` + regexp.QuoteMeta(name) + `\b`)
	matches := declRe.FindAllStringIndex(code, -1)
	if len(matches) == 0 {
		return nil
	}

	starts := make(map[int]bool, len(matches))
	for _, m := range matches {
		starts[m[0]] = true
	}

	var decls []Declaration
	var stack []blockKind
	segStart := 0
	for i := 0; i < len(code); i++ {
		if starts[i] {
			d := Declaration{Offset: i, Line: strings.Count(code[:i], "\n") + 1}
			d.TopLevel = len(stack) == 0
			for _, k := range stack {
				if k == blockFunction {
					d.InFunction = true
				}
			}
			if !d.TopLevel {
				switch stack[len(stack)-1] {
				case blockConditional:
					d.Conditional = true
				case blockPlain:
					d.Conditional = !d.InFunction
				}
			}
			decls = append(decls, d)
		}
		switch code[i] {
		case '{':
			stack = append(stack, classifyBlock(code[segStart:i]))
			segStart = i + 1
		case '}':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			segStart = i + 1
		case ';':
			segStart = i + 1
		}
	}
	return decls
}

func classifyBlock(header string) blockKind {
	ms := blockKeywordRe.FindAllStringSubmatch(header, -1)
	if len(ms) == 0 {
		return blockPlain
	}
	last := ms[len(ms)-1]
	switch last[1] {
	case "function", "class", "":
		// "" is the arrow alternative
		return blockFunction
	default:
		return blockConditional
	}
}

// DeclaredOnlyInConditionalScope reports whether name is declared directly
// inside a conditional block, or a bare block outside any function, and never
// at top level. Such identifiers are invisible to the code after the block.
func DeclaredOnlyInConditionalScope(script, name string) bool {
	conditional := false
	for _, d := range FindDeclarations(script, name) {
		if d.TopLevel {
			return false
		}
		if d.Conditional {
			conditional = true
		}
	}
	return conditional
}

// IdentifierUsed reports whether name occurs as a whole word in the code of
// script.
func IdentifierUsed(script, name string) bool {
	code := strings.Join(CodeOnly(strings.Split(script, "\n")), "\n")
	re := regexp.MustCompile(`(?:^|[^\w$.])` + regexp.QuoteMeta(name) + `(?:[^\w$]|$)`)
	return re.MatchString(code)
}
