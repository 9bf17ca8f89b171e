// Package compose merges a resume fragment, the page template and the
// stylesheet into the single HTML document that gets rendered.
package compose

import (
	"html"
	"sort"
	"strings"

	"resume-pdf/internal/domain"
)

// Template markers.
const (
	StyleMarker   = "<!-- CSS will be injected by server -->"
	ContentMarker = "<!-- Resume content will be injected here -->"
	UsernameToken = "{{username}}"
)

// Composer is safe for concurrent use; it keeps no per-call state.
type Composer struct {
	rewriter *Rewriter
	strict   bool
}

// NewComposer returns a composer. In strict mode a template without one of the
// two injection markers is an error instead of a document missing that part.
func NewComposer(rewriter *Rewriter, strict bool) *Composer {
	return &Composer{rewriter: rewriter, strict: strict}
}

type splice struct {
	start, end int
	text       string
}

// Compose builds the document. The stylesheet goes into the style marker, the
// rewritten fragment into the content marker, and every username token is
// replaced by the escaped username. All substitutions happen in one pass over
// the template, so injected text is never searched for markers again.
func (c *Composer) Compose(rawHTML, username, templateText, stylesheetText, baseURL string) (domain.ComposedDocument, error) {
	var (
		doc     domain.ComposedDocument
		splices []splice
	)

	style := "<style>" + sanitizeCSS(stylesheetText) + "</style>"
	content := rawHTML
	if c.rewriter != nil {
		content = c.rewriter.Rewrite(rawHTML, baseURL)
	}

	for _, m := range []struct{ marker, text string }{
		{StyleMarker, style},
		{ContentMarker, content},
	} {
		i := strings.Index(templateText, m.marker)
		if i < 0 {
			if c.strict {
				return domain.ComposedDocument{}, &domain.MissingPlaceholderError{Placeholder: m.marker}
			}
			doc.MissingPlaceholders = append(doc.MissingPlaceholders, m.marker)
			continue
		}
		splices = append(splices, splice{start: i, end: i + len(m.marker), text: m.text})
	}
	sort.Slice(splices, func(i, j int) bool { return splices[i].start < splices[j].start })

	user := html.EscapeString(username)
	var b strings.Builder
	b.Grow(len(templateText) + len(style) + len(content))
	last := 0
	for _, s := range splices {
		b.WriteString(strings.ReplaceAll(templateText[last:s.start], UsernameToken, user))
		b.WriteString(strings.ReplaceAll(s.text, UsernameToken, user))
		last = s.end
	}
	b.WriteString(strings.ReplaceAll(templateText[last:], UsernameToken, user))

	doc.HTML = b.String()
	return doc, nil
}

// sanitizeCSS keeps stylesheet text from closing the surrounding style block.
func sanitizeCSS(css string) string {
	return strings.ReplaceAll(css, "</", `<\/`)
}
