package fixer

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"sketch-repair/internal/detector"
	"sketch-repair/internal/logger"
	"sketch-repair/internal/types"
)

// Library is a script library the CDN pass knows how to reference.
type Library struct {
	Name    string
	URL     string
	Globals []string
	match   *regexp.Regexp
}

// Matches reports whether ref points at this library.
func (l Library) Matches(ref string) bool {
	return l.match.MatchString(ref)
}

// Libraries are checked in order; p5.sound before p5.
var Libraries = []Library{
	{
		Name:  "p5.sound",
		URL:   "https://cdnjs.cloudflare.com/ajax/libs/p5.js/1.9.4/addons/p5.sound.min.js",
		match: regexp.MustCompile(`(?i)p5\.sound`),
	},
	{
		Name:    "p5",
		URL:     "https://cdnjs.cloudflare.com/ajax/libs/p5.js/1.9.4/p5.min.js",
		Globals: []string{"p5", "createCanvas"},
		match:   regexp.MustCompile(`(?i)(?:^|[/@])p5(?:\.min)?(?:\.js|@|/|$)`),
	},
	{
		Name:    "three",
		URL:     "https://cdnjs.cloudflare.com/ajax/libs/three.js/r128/three.min.js",
		Globals: []string{"THREE"},
		match:   regexp.MustCompile(`(?i)(?:^|[/@])three(?:\.module)?(?:\.min)?(?:\.js|@|/|$)`),
	},
}

// hostTypos maps misspelled CDN hosts to the real ones.
var hostTypos = map[string]string{
	"cdnjs.cloudfare.com":  "cdnjs.cloudflare.com",
	"cdnjs.cloudflair.com": "cdnjs.cloudflare.com",
	"cdn.jsdeliver.net":    "cdn.jsdelivr.net",
	"cdn.jsdelivr.com":     "cdn.jsdelivr.net",
	"unpkg.org":            "unpkg.com",
}

var knownHosts = []string{"cdnjs.cloudflare.com", "cdn.jsdelivr.net", "unpkg.com", "threejs.org", "p5js.org"}

// LibraryForGlobal returns the library that defines the global name.
func LibraryForGlobal(name string) (Library, bool) {
	for _, l := range Libraries {
		for _, g := range l.Globals {
			if g == name {
				return l, true
			}
		}
	}
	return Library{}, false
}

// LibraryForURL returns the library ref points at.
func LibraryForURL(ref string) (Library, bool) {
	for _, l := range Libraries {
		if l.Matches(ref) {
			return l, true
		}
	}
	return Library{}, false
}

// CanonicalizeURL fixes a misspelled CDN host and gives scheme-less CDN
// references an https scheme, since pages are opened from file:// URLs.
func CanonicalizeURL(ref string) string {
	out := ref
	for typo, host := range hostTypos {
		out = replaceHost(out, typo, host)
	}
	switch {
	case strings.HasPrefix(out, "//"):
		out = "https:" + out
	case !strings.Contains(out, "://"):
		for _, h := range knownHosts {
			if strings.HasPrefix(out, h+"/") {
				out = "https://" + out
				break
			}
		}
	}
	return out
}

func replaceHost(ref, from, to string) string {
	for _, prefix := range []string{"https://", "http://", "//", ""} {
		if strings.HasPrefix(ref, prefix+from+"/") {
			return prefix + to + ref[len(prefix+from):]
		}
	}
	return ref
}

// resource is a script src or stylesheet href attribute in the document.
type resource struct {
	tag    string
	value  string
	offset int // of the raw tag
	raw    string
}

// resources tokenizes doc and returns its script src and link href values.
func resources(doc string) []resource {
	var out []resource
	z := html.NewTokenizer(strings.NewReader(doc))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := string(z.Raw())
		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			name, hasAttr := z.TagName()
			tag := string(name)
			want := ""
			switch tag {
			case "script":
				want = "src"
			case "link":
				want = "href"
			}
			for hasAttr && want != "" {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == want && len(val) > 0 {
					out = append(out, resource{tag: tag, value: string(val), offset: offset, raw: raw})
				}
			}
		}
		offset += len(raw)
	}
	return out
}

// rewriteResource replaces the attribute value of r inside its raw tag.
func rewriteResource(doc string, r resource, value string) (string, bool) {
	i := strings.Index(r.raw, r.value)
	if i < 0 || r.offset+len(r.raw) > len(doc) || doc[r.offset:r.offset+len(r.raw)] != r.raw {
		return doc, false
	}
	tag := r.raw[:i] + value + r.raw[i+len(r.value):]
	return doc[:r.offset] + tag + doc[r.offset+len(r.raw):], true
}

// CDNFixer repairs broken library references.
type CDNFixer struct {
	log logger.Logger
}

// NewCDNFixer creates a CDNFixer.
func NewCDNFixer(log logger.Logger) *CDNFixer {
	return &CDNFixer{log: orDefault(log)}
}

// Fix rewrites misspelled or scheme-less CDN references, replaces script
// sources the page reported as failed with the canonical URL of their
// library, and adds a script tag for p5 or three when their global is
// undefined and nothing provides it.
func (f *CDNFixer) Fix(doc string, failed []string, undefined []detector.UndefinedRef) Result {
	rec := newRecorder("cdn", f.log)

	res := resources(doc)
	for i := len(res) - 1; i >= 0; i-- {
		r := res[i]
		next := CanonicalizeURL(r.value)
		if next == r.value {
			continue
		}
		if out, ok := rewriteResource(doc, r, next); ok {
			doc = out
			rec.fixed(types.IssueBrokenCDN, lineAt(doc, r.offset), r.value+" -> "+next)
		}
	}

	if len(failed) > 0 {
		res = resources(doc)
		for i := len(res) - 1; i >= 0; i-- {
			r := res[i]
			if r.tag != "script" || !reportedFailed(failed, r.value) {
				continue
			}
			lib, ok := LibraryForURL(r.value)
			if !ok {
				rec.skipped(types.IssueBrokenCDN, lineAt(doc, r.offset), "unknown library at "+r.value)
				continue
			}
			if lib.URL == r.value {
				continue
			}
			if out, ok := rewriteResource(doc, r, lib.URL); ok {
				doc = out
				rec.fixed(types.IssueBrokenCDN, lineAt(doc, r.offset), r.value+" -> "+lib.URL)
			}
		}
	}

	for _, lib := range missingLibraries(doc, undefined) {
		doc = insertScript(doc, lib.URL)
		rec.fixed(types.IssueBrokenCDN, 0, "added "+lib.Name+" from "+lib.URL)
	}
	return rec.result(doc)
}

func reportedFailed(failed []string, src string) bool {
	bare := strings.TrimLeft(strings.TrimPrefix(src, "//"), "./")
	for _, u := range failed {
		if u == src || (bare != "" && strings.HasSuffix(u, bare)) {
			return true
		}
	}
	return false
}

// missingLibraries returns the libraries whose globals are undefined and
// that no script in doc references.
func missingLibraries(doc string, undefined []detector.UndefinedRef) []Library {
	var out []Library
	seen := make(map[string]bool)
	for _, ref := range undefined {
		lib, ok := LibraryForGlobal(ref.Name)
		if !ok || seen[lib.Name] {
			continue
		}
		seen[lib.Name] = true
		provided := false
		for _, r := range resources(doc) {
			if r.tag == "script" && lib.Matches(r.value) {
				provided = true
				break
			}
		}
		if !provided {
			out = append(out, lib)
		}
	}
	return out
}

var firstScriptOrHeadEndRe = regexp.MustCompile(`(?i)<script\b|</head\s*>`)

// insertScript adds a script tag for url before the first script or </head>,
// whichever comes first, else at the top of the document.
func insertScript(doc, url string) string {
	tag := `<script src="` + url + `"></script>` + "\n"
	if loc := firstScriptOrHeadEndRe.FindStringIndex(doc); loc != nil {
		return doc[:loc[0]] + tag + doc[loc[0]:]
	}
	return tag + doc
}

func lineAt(doc string, offset int) int {
	if offset > len(doc) {
		offset = len(doc)
	}
	return strings.Count(doc[:offset], "\n") + 1
}
