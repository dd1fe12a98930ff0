package fixer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"sketch-repair/internal/detector"
	"sketch-repair/internal/logger"
	"sketch-repair/internal/oracle"
	"sketch-repair/internal/types"
)

// DefaultPrecision is added to fragment shaders that declare none.
const DefaultPrecision = "precision mediump float;"

const shaderSystemPrompt = `You repair GLSL ES shaders embedded in HTML pages for WebGL 1.
Return the complete corrected shader source in a glsl code block and nothing else.`

var (
	shaderLiteralRe    = regexp.MustCompile("([A-Za-z_$][\\w$]*)\\s*[:=]\\s*`([^`]*)`")
	precisionRe        = regexp.MustCompile(`\bprecision\s+(?:lowp|mediump|highp)\s+float\b`)
	unterminatedDeclRe = regexp.MustCompile(`(?m)^([ \t]*(?:uniform|varying|attribute)[ \t]+\w+[ \t]+[\w\[\]]+)[ \t]*$`)
	versionLineRe      = regexp.MustCompile(`(?m)^[ \t]*#version[^\n]*\n`)
)

// ShaderSource is one piece of GLSL in the document.
type ShaderSource struct {
	Start, End int // document offsets of the source text
	Name       string
	Fragment   bool
}

// FindShaders returns the GLSL sources of doc: the content of x-shader script
// blocks, and template literals holding a main function assigned in inline
// scripts. Sources come back in document order.
func FindShaders(doc string) []ShaderSource {
	var out []ShaderSource
	for _, b := range detector.ExtractBlocks(doc, types.BlockScript) {
		t := detector.ScriptType(b)
		if strings.HasPrefix(t, "x-shader/") {
			out = append(out, ShaderSource{
				Start:    b.ContentStart,
				End:      b.ContentEnd,
				Name:     t,
				Fragment: strings.Contains(t, "fragment"),
			})
		}
	}
	for _, b := range detector.InlineScripts(doc) {
		for _, m := range shaderLiteralRe.FindAllStringSubmatchIndex(b.Content, -1) {
			name, body := b.Content[m[2]:m[3]], b.Content[m[4]:m[5]]
			if !strings.Contains(body, "void main") {
				continue
			}
			lower := strings.ToLower(name)
			out = append(out, ShaderSource{
				Start:    b.ContentStart + m[4],
				End:      b.ContentStart + m[5],
				Name:     name,
				Fragment: strings.Contains(lower, "frag") || strings.Contains(body, "gl_FragColor") || strings.Contains(body, "gl_FragData"),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// MechanicalShaderRepair terminates uniform, varying and attribute
// declarations missing a ';' and gives fragment shaders a default precision.
func MechanicalShaderRepair(src string, fragment bool) string {
	out := unterminatedDeclRe.ReplaceAllString(src, "$1;")
	if fragment && !precisionRe.MatchString(out) {
		if loc := versionLineRe.FindStringIndex(out); loc != nil {
			out = out[:loc[1]] + DefaultPrecision + "\n" + out[loc[1]:]
		} else {
			out = insertAtTop(out, DefaultPrecision)
		}
	}
	return out
}

// ShaderFixer repairs shader sources after a compile failure.
type ShaderFixer struct {
	suggest oracle.Suggester
	log     logger.Logger
}

// NewShaderFixer creates a ShaderFixer.
func NewShaderFixer(s oracle.Suggester, log logger.Logger) *ShaderFixer {
	return &ShaderFixer{suggest: orDisabled(s), log: orDefault(log)}
}

// Fix rewrites every shader source of doc that the oracle or the mechanical
// repair changes. errs are the compile errors reported for the page.
func (f *ShaderFixer) Fix(ctx context.Context, doc string, errs []types.ErrorEvent) Result {
	rec := newRecorder("shader", f.log)
	sources := FindShaders(doc)

	for i := len(sources) - 1; i >= 0; i-- {
		s := sources[i]
		src := doc[s.Start:s.End]
		next, how := f.repair(ctx, src, s, errs)
		if normalizeSpace(next) == normalizeSpace(src) {
			continue
		}
		doc = doc[:s.Start] + next + doc[s.End:]
		line := strings.Count(doc[:s.Start], "\n") + 1
		rec.fixed(types.IssueShaderCompile, line, fmt.Sprintf("%s (%s)", s.Name, how))
	}
	return rec.result(doc)
}

func (f *ShaderFixer) repair(ctx context.Context, src string, s ShaderSource, errs []types.ErrorEvent) (string, string) {
	var msgs strings.Builder
	for _, ev := range errs {
		msgs.WriteString("- " + strings.TrimSpace(ev.Message) + "\n")
	}
	kind := "vertex"
	if s.Fragment {
		kind = "fragment"
	}
	prompt := oracle.Prompt{
		System:    shaderSystemPrompt,
		User:      fmt.Sprintf("Compile errors:\n%s\n%s shader %s:\n%s\n", msgs.String(), kind, s.Name, src),
		MaxTokens: 2048,
	}

	reply, err := f.suggest.Suggest(ctx, prompt)
	if err == nil {
		candidate := oracle.StripCodeFence(reply)
		if strings.Contains(candidate, "void main") && !strings.Contains(candidate, "`") {
			return preserveEdges(src, candidate), "suggestion"
		}
		f.log.Warn("suggested shader rejected", logger.String("shader", s.Name))
	} else {
		f.log.Debug("shader suggestion unavailable", logger.Err(err))
	}
	return MechanicalShaderRepair(src, s.Fragment), "fallback"
}
