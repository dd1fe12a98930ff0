package editor

import (
	"fmt"
	"strings"
)

// Lines is an in-memory, 1-based line view of a text span. Fixers edit script
// and style content through it and join it back when done.
type Lines struct {
	lines         []string
	trailingNewln bool
}

// SplitLines splits text on "\n". A trailing newline is remembered so Join
// reproduces the original text when nothing was edited.
func SplitLines(text string) *Lines {
	trailing := strings.HasSuffix(text, "\n")
	if trailing {
		text = text[:len(text)-1]
	}
	return &Lines{lines: strings.Split(text, "\n"), trailingNewln: trailing}
}

// Len returns the number of lines
func (l *Lines) Len() int {
	return len(l.lines)
}

// Line returns line n (1-based)
func (l *Lines) Line(n int) (string, error) {
	if n < 1 || n > len(l.lines) {
		return "", fmt.Errorf("line number %d out of range (text has %d lines)", n, len(l.lines))
	}
	return l.lines[n-1], nil
}

// Slice returns a copy of the underlying 0-based slice
func (l *Lines) Slice() []string {
	return append([]string(nil), l.lines...)
}

// ReadLines returns lines start..end inclusive (1-based, clamped to the text)
func (l *Lines) ReadLines(start, end int) []string {
	if start < 1 {
		start = 1
	}
	if end > len(l.lines) || end == -1 {
		end = len(l.lines)
	}
	if start > end {
		return nil
	}
	return append([]string(nil), l.lines[start-1:end]...)
}

// ReplaceLine replaces a single line
func (l *Lines) ReplaceLine(n int, content string) error {
	if n < 1 || n > len(l.lines) {
		return fmt.Errorf("line number %d out of range (text has %d lines)", n, len(l.lines))
	}
	l.lines[n-1] = content
	return nil
}

// InsertLine inserts a new line at position n; n may be Len()+1 to append
func (l *Lines) InsertLine(n int, content string) error {
	if n < 1 || n > len(l.lines)+1 {
		return fmt.Errorf("line number %d out of range (text has %d lines)", n, len(l.lines))
	}
	newLines := make([]string, 0, len(l.lines)+1)
	newLines = append(newLines, l.lines[:n-1]...)
	newLines = append(newLines, content)
	newLines = append(newLines, l.lines[n-1:]...)
	l.lines = newLines
	return nil
}

// ReplaceLines replaces lines start..end inclusive with newContent
func (l *Lines) ReplaceLines(start, end int, newContent []string) error {
	if start < 1 || end > len(l.lines) || start > end {
		return fmt.Errorf("invalid line range: %d-%d (text has %d lines)", start, end, len(l.lines))
	}
	newLines := make([]string, 0, len(l.lines)-(end-start+1)+len(newContent))
	newLines = append(newLines, l.lines[:start-1]...)
	newLines = append(newLines, newContent...)
	newLines = append(newLines, l.lines[end:]...)
	l.lines = newLines
	return nil
}

// SearchLines returns the 1-based numbers of lines containing text
func (l *Lines) SearchLines(text string) []int {
	var matching []int
	for i, line := range l.lines {
		if strings.Contains(line, text) {
			matching = append(matching, i+1)
		}
	}
	return matching
}

// Join reassembles the text
func (l *Lines) Join() string {
	out := strings.Join(l.lines, "\n")
	if l.trailingNewln {
		out += "\n"
	}
	return out
}

// LineCol converts a byte offset in text to a 1-based line and column.
func LineCol(text string, offset int) (int, int) {
	if offset > len(text) {
		offset = len(text)
	}
	if offset < 0 {
		offset = 0
	}
	before := text[:offset]
	line := strings.Count(before, "\n") + 1
	col := offset - strings.LastIndex(before, "\n")
	return line, col
}

// Window returns the lines around line n (1-based), radius lines each side,
// each prefixed with its line number and a marker on line n.
func (l *Lines) Window(n, radius int) string {
	var sb strings.Builder
	start, end := n-radius, n+radius
	if start < 1 {
		start = 1
	}
	if end > len(l.lines) {
		end = len(l.lines)
	}
	for i := start; i <= end; i++ {
		marker := "  "
		if i == n {
			marker = "> "
		}
		sb.WriteString(fmt.Sprintf("%s%4d | %s\n", marker, i, l.lines[i-1]))
	}
	return sb.String()
}

// Numbered returns every line prefixed with its 1-based number.
func (l *Lines) Numbered() string {
	var sb strings.Builder
	for i, line := range l.lines {
		sb.WriteString(fmt.Sprintf("%4d | %s\n", i+1, line))
	}
	return sb.String()
}
