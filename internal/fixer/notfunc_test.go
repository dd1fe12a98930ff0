package fixer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketch-repair/internal/detector"
	"sketch-repair/internal/logger"
	"sketch-repair/internal/oracle"
)

var worldStep = detector.NotFunctionRef{Object: "world", Method: "step", Message: "TypeError: world.step is not a function"}

func TestNotAFunctionFixer_CommentsOutStatement(t *testing.T) {
	script := "\nfunction draw() {\n  background(0);\n  world.step(1 / 60);\n}\n"
	f := NewNotAFunctionFixer(oracle.Disabled, logger.Nop())

	res := f.Fix(context.Background(), sketchDoc(script), []detector.NotFunctionRef{worldStep})
	assert.Equal(t, sketchDoc("\nfunction draw() {\n  background(0);\n  // world.step(1 / 60);\n}\n"), res.Text)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "world.step: commented out lines 4-4 (fallback)", res.Records[0].Detail)
	assert.Equal(t, 9, res.Records[0].Line)

	again := f.Fix(context.Background(), res.Text, []detector.NotFunctionRef{worldStep})
	assert.Equal(t, res.Text, again.Text)
	assert.Zero(t, again.Fixes())
}

func TestNotAFunctionFixer_CommentsOutBlock(t *testing.T) {
	script := "\nif (ready) {\n  world.step(1 / 60);\n}\nnext();\n"
	res := NewNotAFunctionFixer(nil, logger.Nop()).Fix(context.Background(), sketchDoc(script), []detector.NotFunctionRef{worldStep})

	assert.Equal(t, sketchDoc("\n// if (ready) {\n  // world.step(1 / 60);\n// }\nnext();\n"), res.Text)
	assert.Equal(t, 1, res.Fixes())
}

func TestNotAFunctionFixer_UsesCommentedSuggestion(t *testing.T) {
	reply := "```js\n/* disabled */\n// if (ready) {\n//   world.step(1 / 60);\n// }\n```"
	script := "\nif (ready) {\n  world.step(1 / 60);\n}\n"
	res := NewNotAFunctionFixer(replying(reply), logger.Nop()).Fix(context.Background(), sketchDoc(script), []detector.NotFunctionRef{worldStep})

	assert.Contains(t, res.Text, "/* disabled */\n// if (ready) {")
	assert.Contains(t, res.Records[0].Detail, "(suggestion)")
}

func TestNotAFunctionFixer_RejectsLiveCode(t *testing.T) {
	reply := "```js\nif (ready && world.step) {\n  world.step(1 / 60);\n}\n```"
	script := "\nworld.step(1 / 60);\n"
	res := NewNotAFunctionFixer(replying(reply), logger.Nop()).Fix(context.Background(), sketchDoc(script), []detector.NotFunctionRef{worldStep})

	assert.Equal(t, sketchDoc("\n// world.step(1 / 60);\n"), res.Text)
	assert.Contains(t, res.Records[0].Detail, "(fallback)")
}

func TestNotAFunctionFixer_NoCallSite(t *testing.T) {
	doc := sketchDoc("\nworld.update();\n")
	res := NewNotAFunctionFixer(nil, logger.Nop()).Fix(context.Background(), doc, []detector.NotFunctionRef{worldStep})

	assert.Equal(t, doc, res.Text)
	require.Len(t, res.Records, 1)
	assert.True(t, res.Records[0].Skipped)
}

func TestIsCommentBlock(t *testing.T) {
	assert.True(t, IsCommentBlock([]string{"// a", "  // b", "/* c", " * d", " */"}))
	assert.False(t, IsCommentBlock([]string{"// a", "b();"}))
	assert.False(t, IsCommentBlock([]string{"/* a */ b();"}))
	assert.False(t, IsCommentBlock(nil))
}

func TestCommentLines(t *testing.T) {
	got := CommentLines([]string{"if (x) {", "", "  y();", "}"})
	assert.Equal(t, []string{"// if (x) {", "//", "  // y();", "// }"}, got)
}
