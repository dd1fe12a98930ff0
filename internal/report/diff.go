package report

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff returns a line diff of original against repaired. Each run of changed
// lines starts with a "@@ -a +b @@" header giving the first affected line on
// either side; removed lines are prefixed "-" and added lines "+". Identical
// texts give an empty string.
func Diff(original, repaired string) string {
	if original == repaired {
		return ""
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(original, repaired)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	oldLine, newLine := 1, 1
	header := true
	for _, d := range diffs {
		chunk := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			oldLine += len(chunk)
			newLine += len(chunk)
			header = true
			continue
		}
		if header {
			fmt.Fprintf(&sb, "@@ -%d +%d @@\n", oldLine, newLine)
			header = false
		}
		prefix := "+"
		if d.Type == diffmatchpatch.DiffDelete {
			prefix = "-"
			oldLine += len(chunk)
		} else {
			newLine += len(chunk)
		}
		for _, l := range chunk {
			sb.WriteString(prefix + l + "\n")
		}
	}
	return sb.String()
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
