package oracle

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"sketch-repair/internal/types"
)

// ErrNoPatches is returned when a reply holds no parseable patch array.
var ErrNoPatches = errors.New("no patch array found in suggestion")

var (
	fencedArrayRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\[.*?\\])\\s*```")
	shortArrayRe  = regexp.MustCompile(`(?s)\[\s*\{.*?\}\s*\]`)
	bareArrayRe   = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)
	codeFenceRe   = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*\\s*\\n(.*?)```")

	lineNumberFieldRe  = regexp.MustCompile(`"lineNumber"\s*:\s*(\d+)`)
	originalFieldRe    = regexp.MustCompile(`"originalText"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	replacementFieldRe = regexp.MustCompile(`"replacementText"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// ExtractPatches parses the patch array out of a suggestion reply. A fenced
// ```json block wins; otherwise the shortest bare [ {...} ] array is tried
// before the longest one.
func ExtractPatches(reply string) ([]types.Patch, error) {
	var candidates []string
	if m := fencedArrayRe.FindStringSubmatch(reply); m != nil {
		candidates = append(candidates, m[1])
	}
	for _, re := range []*regexp.Regexp{shortArrayRe, bareArrayRe} {
		if m := re.FindString(reply); m != "" {
			candidates = append(candidates, m)
		}
	}

	for _, c := range candidates {
		var patches []types.Patch
		if err := json.Unmarshal([]byte(stripTrailingCommas(c)), &patches); err == nil {
			return patches, nil
		}
	}
	return nil, ErrNoPatches
}

// ExtractPatchFields recovers patches from replies that are not valid JSON by
// matching the lineNumber, originalText and replacementText fields one by one
// and pairing them up in order.
func ExtractPatchFields(reply string) []types.Patch {
	lines := lineNumberFieldRe.FindAllStringSubmatch(reply, -1)
	originals := originalFieldRe.FindAllStringSubmatch(reply, -1)
	replacements := replacementFieldRe.FindAllStringSubmatch(reply, -1)

	n := len(lines)
	if len(originals) < n {
		n = len(originals)
	}
	if len(replacements) < n {
		n = len(replacements)
	}

	patches := make([]types.Patch, 0, n)
	for i := 0; i < n; i++ {
		num, err := strconv.Atoi(lines[i][1])
		if err != nil {
			continue
		}
		patches = append(patches, types.Patch{
			LineNumber:      num,
			OriginalText:    unquoteJSON(originals[i][1]),
			ReplacementText: unquoteJSON(replacements[i][1]),
		})
	}
	return patches
}

func unquoteJSON(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

// StripCodeFence returns the body of the first fenced code block in reply, or
// the trimmed reply when it has none.
func StripCodeFence(reply string) string {
	if m := codeFenceRe.FindStringSubmatch(reply); m != nil {
		return strings.TrimRight(m[1], " \t\n")
	}
	return strings.TrimSpace(reply)
}

// stripTrailingCommas removes commas directly before a closing } or ].
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\r' || s[j] == '\t') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
