package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPatches(t *testing.T) {
	t.Run("fenced json block", func(t *testing.T) {
		reply := "Sure.\n```json\n[{\"lineNumber\": 4, \"originalText\": \"a(\", \"replacementText\": \"a()\"}]\n```\nDone."
		patches, err := ExtractPatches(reply)
		require.NoError(t, err)
		require.Len(t, patches, 1)
		assert.Equal(t, 4, patches[0].LineNumber)
		assert.Equal(t, "a()", patches[0].ReplacementText)
	})

	t.Run("bare array with trailing comma", func(t *testing.T) {
		reply := `Patches: [{"startLine": 2, "endLine": 3, "originalText": "x\ny", "replacementText": "xy",}]`
		patches, err := ExtractPatches(reply)
		require.NoError(t, err)
		require.Len(t, patches, 1)
		assert.True(t, patches[0].IsRange())
		assert.Equal(t, "x\ny", patches[0].OriginalText)
	})

	t.Run("broken fence falls back to bare array", func(t *testing.T) {
		reply := "```json\n[not json]\n```\n[{\"lineNumber\": 1, \"originalText\": \"a\", \"replacementText\": \"b\"}]"
		patches, err := ExtractPatches(reply)
		require.NoError(t, err)
		assert.Equal(t, "b", patches[0].ReplacementText)
	})

	t.Run("first of two bare arrays", func(t *testing.T) {
		reply := `Fix: [{"lineNumber": 1, "originalText": "a", "replacementText": "b"}, {"lineNumber": 2, "originalText": "c", "replacementText": "d"}]` +
			"\nAlternative: [{\"lineNumber\": 1, \"originalText\": \"a\", \"replacementText\": \"z\"}] (see [note {1}])"
		patches, err := ExtractPatches(reply)
		require.NoError(t, err)
		require.Len(t, patches, 2)
		assert.Equal(t, "b", patches[0].ReplacementText)
		assert.Equal(t, "d", patches[1].ReplacementText)
	})

	t.Run("prose", func(t *testing.T) {
		_, err := ExtractPatches("Add a closing parenthesis on line 3.")
		assert.ErrorIs(t, err, ErrNoPatches)
	})
}

func TestExtractPatchFields(t *testing.T) {
	reply := `{"lineNumber": 2, "originalText": "say(\"hi\"", "replacementText": "say(\"hi\")"}
and also {"lineNumber": 5, "originalText": "x", "replacementText": "y"}
and a dangling "lineNumber": 9`
	patches := ExtractPatchFields(reply)
	require.Len(t, patches, 2)
	assert.Equal(t, 2, patches[0].LineNumber)
	assert.Equal(t, `say("hi"`, patches[0].OriginalText)
	assert.Equal(t, `say("hi")`, patches[0].ReplacementText)
	assert.Equal(t, 5, patches[1].LineNumber)

	assert.Empty(t, ExtractPatchFields("nothing here"))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "body { margin: 0; }", StripCodeFence("Here:\n```css\nbody { margin: 0; }\n```\nthanks"))
	assert.Equal(t, "  // a\n  // b", StripCodeFence("```\n  // a\n  // b\n```"))
	assert.Equal(t, "plain answer", StripCodeFence("  plain answer \n"))
}
