package domain

import (
	"regexp"
	"strings"
)

// DefaultUsername is used when a request carries no username.
const DefaultUsername = "Resume"

// RenderRequest is the inbound payload of POST /generate-pdf.
type RenderRequest struct {
	HTML     string `json:"html" form:"html" validate:"required"`
	Username string `json:"username" form:"username"`
}

// EffectiveUsername returns the username to print, substituting the default
// for an empty or blank value.
func (r RenderRequest) EffectiveUsername() string {
	if strings.TrimSpace(r.Username) == "" {
		return DefaultUsername
	}
	return r.Username
}

// ResolvedAssets holds the template and stylesheet text for one request.
type ResolvedAssets struct {
	Template       string
	TemplatePath   string
	Stylesheet     string
	StylesheetPath string
}

// ComposedDocument is the self-contained HTML handed to the renderer.
type ComposedDocument struct {
	HTML string
	// MissingPlaceholders lists template markers that were absent and whose
	// content is therefore not in HTML.
	MissingPlaceholders []string
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// AttachmentFilename builds "resume_<username>.pdf" with every
// non-alphanumeric character of the username replaced by an underscore.
func AttachmentFilename(username string) string {
	return "resume_" + nonAlphanumeric.ReplaceAllString(username, "_") + ".pdf"
}
