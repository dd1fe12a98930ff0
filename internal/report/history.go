package report

import (
	"fmt"
	"sort"
	"strings"

	"sketch-repair/internal/history"
)

const historyTimeFormat = "2006-01-02 15:04:05"

// History lists recorded runs, one line per document.
func History(entries []*history.Entry) string {
	if len(entries) == 0 {
		return skippedStyle.Render("no repairs recorded") + "\n"
	}

	var sb strings.Builder
	for _, e := range entries {
		status := fmt.Sprintf("%d fixes", e.Tally)
		switch {
		case e.Error != "":
			status = errorStyle.Render("error: " + e.Error)
		case e.Restored:
			status += ", restored"
		case e.Written:
			status = fixedStyle.Render(status + ", written")
		}
		fmt.Fprintf(&sb, "%s  %s  %s (%d runs)\n", e.Timestamp.Format(historyTimeFormat), e.Path, status, e.Runs)

		names := make([]string, 0, len(e.Fixes))
		for name := range e.Fixes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "    %s: %d\n", name, e.Fixes[name])
		}
	}
	return sb.String()
}
