package detector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"sketch-repair/internal/types"
)

// UndefinedRef is an identifier reported as not defined.
type UndefinedRef struct {
	Name    string
	Line    int // 1-based document line, 0 when unknown
	Message string
}

// Key is the dedup key (identifier, line or 0).
func (r UndefinedRef) Key() string {
	return fmt.Sprintf("%s:%d", r.Name, r.Line)
}

// NotFunctionRef is an object.method pair reported as not a function.
type NotFunctionRef struct {
	Object  string
	Method  string
	Line    int
	Message string
}

// Key is the dedup key (object, method).
func (r NotFunctionRef) Key() string {
	return r.Object + "." + r.Method
}

// Classification groups runtime error events by remediation.
type Classification struct {
	Undefined      []UndefinedRef
	NotFunctions   []NotFunctionRef
	ShaderErrors   []types.ErrorEvent
	FailedRequests []string
}

// Empty reports whether nothing actionable was found.
func (c Classification) Empty() bool {
	return len(c.Undefined) == 0 && len(c.NotFunctions) == 0 &&
		len(c.ShaderErrors) == 0 && len(c.FailedRequests) == 0
}

const identPattern = `[A-Za-z_$][\w$]*`

var (
	undefinedRe = regexp.MustCompile(`(` + identPattern + `) is not defined`)

	// not-a-function patterns in priority order
	notFnMessageRe = regexp.MustCompile(`(` + identPattern + `)\.(` + identPattern + `) is not a function`)
	notFnStackRe   = regexp.MustCompile(`TypeError:[^\n]*?(` + identPattern + `)\.(` + identPattern + `) is not a function`)
	notFnLooseRe   = regexp.MustCompile(`(` + identPattern + `)\.(` + identPattern + `) is not (?:a )?function`)

	stackLineColRe = regexp.MustCompile(`:(\d+):(\d+)`)
	lineWordRe     = regexp.MustCompile(`(?i)\bline (\d+)`)
	shaderErrorRe  = regexp.MustCompile(`(?i)shader error|could not compile|compileShader|shader compil|ERROR: \d+:\d+|WebGLProgram`)
)

// Classify extracts undefined identifiers, not-a-function pairs, shader
// compile failures and failed resource URLs from runtime error events.
func Classify(events []types.ErrorEvent) Classification {
	var c Classification
	seenUndef := make(map[string]bool)
	seenNotFn := make(map[string]bool)
	seenURL := make(map[string]bool)

	for _, ev := range events {
		if ev.Type == types.EventRequestFailed {
			if ev.URL != "" && !seenURL[ev.URL] {
				seenURL[ev.URL] = true
				c.FailedRequests = append(c.FailedRequests, ev.URL)
			}
			continue
		}

		if shaderErrorRe.MatchString(ev.Message) {
			c.ShaderErrors = append(c.ShaderErrors, ev)
			continue
		}

		line := EventLine(ev)

		for _, m := range undefinedRe.FindAllStringSubmatch(ev.Message, -1) {
			ref := UndefinedRef{Name: m[1], Line: line, Message: ev.Message}
			if !seenUndef[ref.Key()] {
				seenUndef[ref.Key()] = true
				c.Undefined = append(c.Undefined, ref)
			}
		}

		for _, pair := range notFunctionPairs(ev) {
			ref := NotFunctionRef{Object: pair[0], Method: pair[1], Line: line, Message: ev.Message}
			if !seenNotFn[ref.Key()] {
				seenNotFn[ref.Key()] = true
				c.NotFunctions = append(c.NotFunctions, ref)
			}
		}
	}
	return c
}

// notFunctionPairs applies the three not-a-function patterns in priority
// order and returns the pairs found by the first one that matches.
func notFunctionPairs(ev types.ErrorEvent) [][2]string {
	if m := notFnMessageRe.FindStringSubmatch(ev.Message); m != nil {
		return [][2]string{{m[1], m[2]}}
	}
	if m := notFnStackRe.FindStringSubmatch(ev.Stack); m != nil {
		return [][2]string{{m[1], m[2]}}
	}
	var pairs [][2]string
	for _, m := range notFnLooseRe.FindAllStringSubmatch(ev.Message+"\n"+ev.Stack, -1) {
		pairs = append(pairs, [2]string{m[1], m[2]})
	}
	return pairs
}

// EventLine returns the 1-based document line an event points at, or 0. A
// stack frame in the HTML document wins over any other frame; a ":line:col"
// suffix wins over a "line N" phrase.
func EventLine(ev types.ErrorEvent) int {
	text := ev.Stack + "\n" + ev.Message
	var first int
	for _, frame := range strings.Split(text, "\n") {
		m := stackLineColRe.FindStringSubmatch(frame)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if strings.Contains(frame, ".html") {
			return n
		}
		if first == 0 {
			first = n
		}
	}
	if first > 0 {
		return first
	}
	if m := lineWordRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}
