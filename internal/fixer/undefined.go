package fixer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"sketch-repair/internal/detector"
	"sketch-repair/internal/editor"
	"sketch-repair/internal/logger"
	"sketch-repair/internal/oracle"
	"sketch-repair/internal/types"
)

// PlaceholderShape is the object a hoisted declaration starts out as. It
// carries the members sketches most often touch before initialisation.
const PlaceholderShape = "{ x: 0, y: 0, update() {}, display() {}, show() {}, draw() {} }"

const undefinedSystemPrompt = `You repair JavaScript embedded in HTML pages (p5.js and three.js sketches).
A variable is used but never defined when the code runs. Propose the smallest patch.
Reply with a JSON array of patch objects and nothing else.`

var declKeywordRe = regexp.MustCompile(`^(?:var|let|const)\s+`)

// UndefinedFixer repairs identifiers reported as not defined.
type UndefinedFixer struct {
	suggest oracle.Suggester
	applier *PatchApplier
	log     logger.Logger
}

// NewUndefinedFixer creates an UndefinedFixer.
func NewUndefinedFixer(s oracle.Suggester, log logger.Logger) *UndefinedFixer {
	log = orDefault(log)
	return &UndefinedFixer{suggest: orDisabled(s), applier: NewPatchApplier(s, log), log: log}
}

// Fix repairs each distinct undefined identifier once. An identifier declared
// only inside a conditional block is hoisted to the top of its script; any
// other gets a suggested patch, or a placeholder declaration when the oracle
// has nothing usable. Library globals are left to the CDN pass.
func (f *UndefinedFixer) Fix(ctx context.Context, doc string, refs []detector.UndefinedRef) Result {
	rec := newRecorder("undefined-variables", f.log)
	done := make(map[string]bool)

	for _, ref := range refs {
		if done[ref.Name] {
			continue
		}
		done[ref.Name] = true

		if lib, ok := LibraryForGlobal(ref.Name); ok {
			rec.skipped(types.IssueUndefinedVar, ref.Line, ref.Name+" is provided by "+lib.Name)
			continue
		}
		b, ok := targetScript(detector.InlineScripts(doc), ref)
		if !ok {
			rec.skipped(types.IssueUndefinedVar, ref.Line, ref.Name+" does not occur in any inline script")
			continue
		}

		content, how, ok := f.fixScript(ctx, b.Content, ref)
		if !ok {
			rec.skipped(types.IssueUndefinedVar, ref.Line, ref.Name+": "+how)
			continue
		}
		doc = detector.ReplaceContent(doc, b, content)
		rec.fixed(types.IssueUndefinedVar, ref.Line, ref.Name+": "+how)
	}
	return rec.result(doc)
}

// targetScript picks the script at the reported line when it mentions the
// identifier, otherwise the first script that does.
func targetScript(scripts []types.EmbeddedBlock, ref detector.UndefinedRef) (types.EmbeddedBlock, bool) {
	mentions := func(b types.EmbeddedBlock) bool {
		return detector.IdentifierUsed(b.Content, ref.Name) || len(detector.FindDeclarations(b.Content, ref.Name)) > 0
	}
	if ref.Line > 0 {
		if b, ok := detector.BlockAtLine(scripts, ref.Line); ok && mentions(b) {
			return b, true
		}
	}
	for _, b := range scripts {
		if mentions(b) {
			return b, true
		}
	}
	return types.EmbeddedBlock{}, false
}

func (f *UndefinedFixer) fixScript(ctx context.Context, script string, ref detector.UndefinedRef) (string, string, bool) {
	if detector.DeclaredOnlyInConditionalScope(script, ref.Name) {
		return HoistDeclaration(script, ref.Name), "hoisted declaration", true
	}

	if patched, ok := f.suggestPatch(ctx, script, ref); ok {
		return patched, "suggested patch", true
	}

	for _, d := range detector.FindDeclarations(script, ref.Name) {
		if d.TopLevel {
			return script, "already declared at top level", false
		}
	}
	return insertAtTop(script, fmt.Sprintf("var %s = {};", ref.Name)), "placeholder declaration", true
}

func (f *UndefinedFixer) suggestPatch(ctx context.Context, script string, ref detector.UndefinedRef) (string, bool) {
	reply, err := f.suggest.Suggest(ctx, undefinedPrompt(script, ref))
	if err != nil {
		f.log.Debug("undefined-variable suggestion unavailable", logger.String("name", ref.Name), logger.Err(err))
		return script, false
	}
	patches, err := oracle.ExtractPatches(reply)
	if err != nil {
		patches = oracle.ExtractPatchFields(reply)
	}
	if len(patches) == 0 {
		f.log.Warn("no patch in suggestion", logger.String("name", ref.Name))
		return script, false
	}
	out, apps := f.applier.ApplyPatches(script, patches, nil)
	for _, app := range apps {
		if app.Applied() {
			return out, true
		}
	}
	return script, false
}

func undefinedPrompt(script string, ref detector.UndefinedRef) oracle.Prompt {
	lines := editor.SplitLines(script)
	code := detector.CodeOnly(lines.Slice())
	wordRe := regexp.MustCompile(`(?:^|[^\w$.])` + regexp.QuoteMeta(ref.Name) + `(?:[^\w$]|$)`)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Runtime error: %s\n", strings.TrimSpace(ref.Message)))
	sb.WriteString(fmt.Sprintf("The identifier %q is used here:\n\n", ref.Name))
	for i, c := range code {
		if !wordRe.MatchString(c) {
			continue
		}
		sb.WriteString(lines.Window(i+1, 2))
		sb.WriteString("\n")
	}
	sb.WriteString(`Prefer, in this order: a truthiness guard around the use, a sensible default initialisation, or a new declaration.
Return a JSON array of patches:
[{"lineNumber": 3, "originalText": "current text of the line", "replacementText": "fixed text", "explanation": "why"}]
Line numbers are the ones shown above. originalText must be copied exactly from the current line.`)
	return oracle.Prompt{System: undefinedSystemPrompt, User: sb.String(), MaxTokens: 1024}
}

// HoistDeclaration declares name at the top of script with PlaceholderShape
// and turns its conditional declarations into assignments, so code after the
// conditional block sees the same variable.
func HoistDeclaration(script, name string) string {
	decls := detector.FindDeclarations(script, name)
	for i := len(decls) - 1; i >= 0; i-- {
		d := decls[i]
		if !d.Conditional {
			continue
		}
		if loc := declKeywordRe.FindStringIndex(script[d.Offset:]); loc != nil {
			script = script[:d.Offset] + script[d.Offset+loc[1]:]
		}
	}
	return insertAtTop(script, fmt.Sprintf("var %s = %s;", name, PlaceholderShape))
}
