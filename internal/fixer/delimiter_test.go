package fixer

import (
	"context"
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketch-repair/internal/detector"
	"sketch-repair/internal/logger"
	"sketch-repair/internal/oracle"
)

// replying returns a suggester that always answers text.
func replying(text string) oracle.Suggester {
	return oracle.SuggesterFunc(func(context.Context, oracle.Prompt) (string, error) {
		return text, nil
	})
}

func sketchDoc(script string) string {
	return "<html>\n<head>\n<title>Sketch</title>\n</head>\n<body>\n<script>" + script + "</script>\n</body>\n</html>\n"
}

func TestPatchDelimiters(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		fixed int
	}{
		{"missing close before semicolon", "createFish(p.random(3);", "createFish(p.random(3));", 1},
		{"missing close before brace", "if (ready {\n}", "if (ready) {\n}", 1},
		{"missing close at line end", "let v = max(a, b", "let v = max(a, b)", 1},
		{"two missing on one line", "a(b(c;", "a(b(c));", 2},
		{"missing close before comment", "f(x; // call", "f(x); // call", 1},
		{"stray close", "foo());", "foo()" + StrayCloseMarker + ";", 1},
		{"balanced", "foo(bar());", "foo(bar());", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := PatchDelimiters(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.fixed, n)

			again, n := PatchDelimiters(got)
			assert.Equal(t, got, again, "patch must be idempotent")
			assert.Zero(t, n)
		})
	}
}

func TestPatchDelimiters_ShaderExempt(t *testing.T) {
	span := "const fragmentShader = `void main() { gl_FragColor = vec4(1.0;`;"
	got, n := PatchDelimiters(span)
	assert.Equal(t, span, got)
	assert.Zero(t, n)
}

// Property: the deterministic patch never touches '(' and leaves exactly as
// many ')' as '('.
func TestPatchDelimiters_BalanceProperty(t *testing.T) {
	const alphabet = "(()))ab; {}\n\"'/*x"
	property := func(raw []byte) bool {
		var sb strings.Builder
		for _, b := range raw {
			sb.WriteByte(alphabet[int(b)%len(alphabet)])
		}
		span := sb.String()
		opens, closes := detector.CountParens(span)

		out, n := PatchDelimiters(span)
		opens2, closes2 := detector.CountParens(out)
		if opens2 != opens || closes2 != opens {
			return false
		}
		return n >= abs(opens-closes)
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 500}); err != nil {
		t.Error(err)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func TestDelimiterFixer_ProseFallsBackToDeterministic(t *testing.T) {
	doc := sketchDoc("\ncreateFish(p.random(3);\n")
	f := NewDelimiterFixer(replying("You should add a closing parenthesis on line 2."), logger.Nop())

	res := f.Fix(context.Background(), doc)
	assert.Equal(t, 1, res.Fixes())
	assert.Contains(t, res.Text, "\ncreateFish(p.random(3));\n")
	require.Len(t, res.Records, 1)
	assert.Equal(t, "deterministic patch", res.Records[0].Detail)
	assert.Equal(t, 7, res.Records[0].Line)
}

func TestDelimiterFixer_UsesSuggestion(t *testing.T) {
	doc := sketchDoc("\ncreateFish(p.random(3);\n")
	suggestion := "```json\n[{\"lineNumber\": 2, \"originalText\": \"createFish(p.random(3);\", " +
		"\"replacementText\": \"createFish(p.random(3));\", \"explanation\": \"close the call\"}]\n```"
	f := NewDelimiterFixer(replying(suggestion), logger.Nop())

	res := f.Fix(context.Background(), doc)
	assert.Equal(t, 1, res.Fixes())
	assert.Contains(t, res.Text, "\ncreateFish(p.random(3));\n")
	assert.Equal(t, "suggested patch (exact)", res.Records[0].Detail)
}

func TestDelimiterFixer_IgnoresParensInStrings(t *testing.T) {
	doc := sketchDoc("\nconsole.log(\":(\");\n// a smiley :)\n")
	f := NewDelimiterFixer(oracle.Disabled, logger.Nop())

	res := f.Fix(context.Background(), doc)
	assert.Zero(t, res.Fixes())
	assert.Equal(t, doc, res.Text)
}

func TestDelimiterFixer_SkipsShaderScripts(t *testing.T) {
	doc := sketchDoc("\nconst frag = `uniform float t;\nvoid main() { gl_FragColor = vec4(t; }`;\n")
	res := NewDelimiterFixer(nil, logger.Nop()).Fix(context.Background(), doc)
	assert.Zero(t, res.Fixes())
	assert.Equal(t, doc, res.Text)
}

func TestDelimiterFixer_MultipleScripts(t *testing.T) {
	doc := "<script>\nfoo(1;\n</script>\n<p>text</p>\n<script>\nbar(2));\n</script>\n"
	res := NewDelimiterFixer(nil, logger.Nop()).Fix(context.Background(), doc)
	assert.Equal(t, 2, res.Fixes())
	assert.Equal(t, "<script>\nfoo(1);\n</script>\n<p>text</p>\n<script>\nbar(2)"+StrayCloseMarker+";\n</script>\n", res.Text)
}
