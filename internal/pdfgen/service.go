// Package pdfgen runs the resume pipeline: resolve the assets, compose the
// document, then render it (through the cache when one is configured).
package pdfgen

import (
	"context"
	"fmt"
	"strings"

	"resume-pdf/internal/compose"
	"resume-pdf/internal/domain"
	"resume-pdf/internal/infra/cache"
	"resume-pdf/internal/infra/logging"
	"resume-pdf/internal/metrics"
	"resume-pdf/internal/render"
)

// AssetLoader provides the template and stylesheet for one request.
type AssetLoader interface {
	Load(ctx context.Context) (domain.ResolvedAssets, error)
}

// PDFRenderer turns a composed document into PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, html string) (render.Result, error)
}

// Output is a generated PDF and how it was produced.
type Output struct {
	PDF      []byte
	Filename string
	Username string
	Tier     string
	Cached   bool
}

// Service is stateless apart from its collaborators and is shared by all
// requests.
type Service struct {
	Assets      AssetLoader
	Composer    *compose.Composer
	Renderer    PDFRenderer
	Cache       *cache.PDFCache
	Metrics     *metrics.Recorder
	BaseURL     string
	MaxPDFBytes int
}

// Generate produces the PDF for req. Rendering is detached from ctx's
// cancellation so a client that hangs up does not abort a render midway; each
// tier's own timeout still applies.
func (s *Service) Generate(ctx context.Context, req domain.RenderRequest) (Output, error) {
	if strings.TrimSpace(req.HTML) == "" {
		return Output{}, fmt.Errorf("%w: html is empty", domain.ErrValidation)
	}
	username := req.EffectiveUsername()
	out := Output{Username: username, Filename: domain.AttachmentFilename(username)}

	assets, err := s.Assets.Load(ctx)
	if err != nil {
		return out, err
	}
	logging.Debug("Resume assets resolved", "template", assets.TemplatePath, "stylesheet", assets.StylesheetPath)

	doc, err := s.Composer.Compose(req.HTML, username, assets.Template, assets.Stylesheet, s.BaseURL)
	if err != nil {
		return out, err
	}
	for _, m := range doc.MissingPlaceholders {
		logging.Warn("Template placeholder not found; content omitted", "placeholder", m, "template", assets.TemplatePath)
	}

	key := cache.Key(doc.HTML)
	if s.Cache != nil {
		pdf, hit := s.Cache.Get(ctx, key)
		s.Metrics.IncCacheLookup(hit)
		if hit {
			logging.Info("PDF cache hit", "key", key)
			out.PDF, out.Cached = pdf, true
			return out, nil
		}
	}

	res, err := s.Renderer.Render(context.WithoutCancel(ctx), doc.HTML)
	if err != nil {
		return out, err
	}
	if s.MaxPDFBytes > 0 && len(res.PDF) > s.MaxPDFBytes {
		return out, fmt.Errorf("generated PDF is %d bytes, limit is %d", len(res.PDF), s.MaxPDFBytes)
	}
	s.Metrics.ObservePDFSize(len(res.PDF))

	if s.Cache != nil {
		s.Cache.Set(ctx, key, res.PDF)
	}
	out.PDF, out.Tier = res.PDF, res.Tier
	return out, nil
}
