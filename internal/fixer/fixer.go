// Package fixer implements the repair passes. Each fixer takes the current
// document text and returns the rewritten text together with one FixRecord
// per applied or skipped fix. Fixers that consult the suggestion oracle always
// carry a deterministic fallback.
package fixer

import (
	"strings"

	"sketch-repair/internal/logger"
	"sketch-repair/internal/oracle"
	"sketch-repair/internal/types"
)

// Result is the outcome of one fixer over a document.
type Result struct {
	Text    string
	Records []types.FixRecord
}

// Fixes returns the number of applied (not skipped) records.
func (r Result) Fixes() int {
	n := 0
	for _, rec := range r.Records {
		if !rec.Skipped {
			n++
		}
	}
	return n
}

// recorder collects FixRecords for one pass and mirrors them to the log.
type recorder struct {
	pass    string
	log     logger.Logger
	records []types.FixRecord
}

func newRecorder(pass string, log logger.Logger) *recorder {
	return &recorder{pass: pass, log: log}
}

func (r *recorder) fixed(kind types.IssueKind, line int, detail string) {
	r.records = append(r.records, types.FixRecord{Pass: r.pass, Kind: string(kind), Detail: detail, Line: line})
	r.log.Info("fix applied",
		logger.String("pass", r.pass),
		logger.String("kind", string(kind)),
		logger.Int("line", line),
		logger.String("detail", detail))
}

func (r *recorder) skipped(kind types.IssueKind, line int, detail string) {
	r.records = append(r.records, types.FixRecord{Pass: r.pass, Kind: string(kind), Detail: detail, Line: line, Skipped: true})
	r.log.Debug("fix skipped",
		logger.String("pass", r.pass),
		logger.String("kind", string(kind)),
		logger.Int("line", line),
		logger.String("detail", detail))
}

func (r *recorder) result(text string) Result {
	return Result{Text: text, Records: r.records}
}

func orDefault(log logger.Logger) logger.Logger {
	if log == nil {
		return logger.GetLogger()
	}
	return log
}

func orDisabled(s oracle.Suggester) oracle.Suggester {
	if s == nil {
		return oracle.Disabled
	}
	return s
}

// insertAtTop inserts line at the start of script, after a leading newline
// if there is one, so the opening tag keeps its own line.
func insertAtTop(script, line string) string {
	if strings.HasPrefix(script, "\r\n") {
		return "\r\n" + line + "\r\n" + script[2:]
	}
	if strings.HasPrefix(script, "\n") {
		return "\n" + line + "\n" + script[1:]
	}
	return line + "\n" + script
}

// normalizeSpace collapses every whitespace run to a single space.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func leadingIndent(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
