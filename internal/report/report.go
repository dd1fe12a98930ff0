// Package report renders repair results for the terminal.
package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sketch-repair/internal/types"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	passStyle    = lipgloss.NewStyle().Width(22)
	countStyle   = lipgloss.NewStyle().Width(4).Align(lipgloss.Right)
	fixedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	totalStyle   = lipgloss.NewStyle().Bold(true).MarginTop(1)
)

// Render summarizes r: one row per pass with its fix count, one indented line
// per fix record, and the total.
func Render(r *types.RepairResult) string {
	if r == nil {
		return errorStyle.Render("no result") + "\n"
	}

	var sb strings.Builder
	name := r.Path
	if name == "" {
		name = "(text)"
	}
	sb.WriteString(titleStyle.Render("sketch-repair: "+filepath.Base(name)) + "\n")

	for _, p := range r.Passes {
		row := passStyle.Render(p.Name) + countStyle.Render(fmt.Sprint(p.Fixes))
		switch {
		case p.Skipped:
			row = skippedStyle.Render(row + "  skipped")
		case p.Err != "":
			row += "  " + errorStyle.Render("error: "+p.Err)
		case p.Fixes > 0:
			row = fixedStyle.Render(row)
		}
		sb.WriteString(row + "\n")

		for _, rec := range p.Records {
			sb.WriteString(renderRecord(rec) + "\n")
		}
	}

	total := fmt.Sprintf("Total fixes: %d", r.Tally)
	switch {
	case r.Written:
		total += " (written"
		if r.BackupPath != "" {
			total += ", backup " + r.BackupPath
		}
		total += ")"
	case r.Tally > 0:
		total += " (not written)"
	}
	sb.WriteString(totalStyle.Render(total) + "\n")
	return sb.String()
}

func renderRecord(rec types.FixRecord) string {
	loc := ""
	if rec.Line > 0 {
		loc = fmt.Sprintf("line %d: ", rec.Line)
	}
	line := fmt.Sprintf("    %s%s", loc, rec.Detail)
	if rec.Skipped {
		return skippedStyle.Render(line + " [skipped]")
	}
	return line
}
