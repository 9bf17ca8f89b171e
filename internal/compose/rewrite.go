package compose

import (
	"path"
	"regexp"
	"strings"
)

// assetAttr matches src/poster attributes with single or double quotes.
var assetAttr = regexp.MustCompile(`(?i)\b(src|poster)(\s*=\s*)(?:"([^"]*)"|'([^']*)')`)

// hasScheme matches values such as https:, data:, file: and blob:.
var hasScheme = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)

// Rewriter turns relative image references in a resume fragment into
// absolute URLs.
type Rewriter struct {
	logos      map[string]struct{}
	extensions map[string]struct{}
}

// NewRewriter builds a rewriter that knows the given bare logo filenames and
// image extensions (without the dot).
func NewRewriter(logoFiles, imageExtensions []string) *Rewriter {
	r := &Rewriter{
		logos:      make(map[string]struct{}, len(logoFiles)),
		extensions: make(map[string]struct{}, len(imageExtensions)),
	}
	for _, f := range logoFiles {
		r.logos[strings.ToLower(f)] = struct{}{}
	}
	for _, e := range imageExtensions {
		r.extensions["."+strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	return r
}

// Rewrite returns fragment with every relative asset reference rooted at
// baseURL. Values that are already absolute are kept, so Rewrite is
// idempotent. An empty baseURL disables rewriting.
func (r *Rewriter) Rewrite(fragment, baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" || fragment == "" {
		return fragment
	}
	return assetAttr.ReplaceAllStringFunc(fragment, func(attr string) string {
		m := assetAttr.FindStringSubmatch(attr)
		quote, value := `"`, m[3]
		if attr[len(m[1])+len(m[2])] == '\'' {
			quote, value = "'", m[4]
		}
		abs, ok := r.absolute(value, baseURL)
		if !ok {
			return attr
		}
		return m[1] + m[2] + quote + abs + quote
	})
}

func (r *Rewriter) absolute(value, baseURL string) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" || hasScheme.MatchString(v) ||
		strings.HasPrefix(v, "/") || strings.HasPrefix(v, "#") {
		return "", false
	}

	p := v
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}

	switch {
	case strings.HasPrefix(p, "images/"):
		return baseURL + "/" + p, true
	case !strings.Contains(p, "/") && r.isLogo(stripQuery(p)):
		return baseURL + "/images/" + p, true
	case r.isImage(p):
		return baseURL + path.Clean("/"+p), true
	}
	return "", false
}

func (r *Rewriter) isLogo(name string) bool {
	_, ok := r.logos[strings.ToLower(name)]
	return ok
}

func (r *Rewriter) isImage(p string) bool {
	_, ok := r.extensions[strings.ToLower(path.Ext(stripQuery(p)))]
	return ok
}

func stripQuery(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		return p[:i]
	}
	return p
}
