package pdfgen

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-pdf/internal/compose"
	"resume-pdf/internal/domain"
	"resume-pdf/internal/infra/cache"
	"resume-pdf/internal/render"
)

const testTemplate = `<html><head><title>{{username}}</title>` + compose.StyleMarker + `</head><body>` + compose.ContentMarker + `</body></html>`

type staticAssets struct {
	assets domain.ResolvedAssets
	err    error
}

func (s staticAssets) Load(context.Context) (domain.ResolvedAssets, error) {
	return s.assets, s.err
}

// scriptedEngine fails the tiers listed in failing and records every
// document it is asked to render.
type scriptedEngine struct {
	failing map[string]bool
	calls   atomic.Int32
	lastDoc atomic.Value
}

func (e *scriptedEngine) Render(_ context.Context, html string, opts render.Options) ([]byte, error) {
	e.calls.Add(1)
	e.lastDoc.Store(html)
	if e.failing[opts.Tier] {
		return nil, errors.New(opts.Tier + " failed")
	}
	return []byte("%PDF-" + opts.Tier), nil
}

func newService(eng *scriptedEngine, loader AssetLoader) *Service {
	tiers := []render.Options{{Tier: "primary"}, {Tier: "fallback"}}
	return &Service{
		Assets:   loader,
		Composer: compose.NewComposer(compose.NewRewriter([]string{"logo.png"}, []string{"png"}), false),
		Renderer: render.NewRenderer(eng, tiers, nil),
		BaseURL:  "https://cv.example.com",
	}
}

func okAssets() staticAssets {
	return staticAssets{assets: domain.ResolvedAssets{
		Template:       testTemplate,
		TemplatePath:   "templates/resume.html",
		Stylesheet:     "body{margin:0}",
		StylesheetPath: "css/index.css",
	}}
}

func TestGenerate_ComposesAndRenders(t *testing.T) {
	eng := &scriptedEngine{}
	svc := newService(eng, okAssets())

	out, err := svc.Generate(context.Background(), domain.RenderRequest{
		HTML:     `<p>Hello {{username}}</p><img src="./images/a.png">`,
		Username: "Jane Doe",
	})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-primary", string(out.PDF))
	assert.Equal(t, "primary", out.Tier)
	assert.Equal(t, "resume_Jane_Doe.pdf", out.Filename)
	assert.False(t, out.Cached)

	doc := eng.lastDoc.Load().(string)
	assert.Contains(t, doc, "<p>Hello Jane Doe</p>")
	assert.Contains(t, doc, `src="https://cv.example.com/images/a.png"`)
	assert.Contains(t, doc, "<style>body{margin:0}</style>")
	assert.Contains(t, doc, "<title>Jane Doe</title>")
}

func TestGenerate_DefaultUsername(t *testing.T) {
	svc := newService(&scriptedEngine{}, okAssets())
	out, err := svc.Generate(context.Background(), domain.RenderRequest{HTML: "<p>x</p>", Username: "   "})
	require.NoError(t, err)
	assert.Equal(t, "Resume", out.Username)
	assert.Equal(t, "resume_Resume.pdf", out.Filename)
}

func TestGenerate_EmptyHTMLIsValidationError(t *testing.T) {
	eng := &scriptedEngine{}
	loads := 0
	svc := newService(eng, loaderFunc(func() (domain.ResolvedAssets, error) {
		loads++
		return okAssets().assets, nil
	}))

	_, err := svc.Generate(context.Background(), domain.RenderRequest{HTML: " \n "})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 400, domain.HTTPStatus(err))
	assert.Zero(t, loads, "assets must not be read for an invalid request")
	assert.Zero(t, eng.calls.Load())
}

func TestGenerate_MissingAssetSkipsRenderer(t *testing.T) {
	eng := &scriptedEngine{}
	notFound := &domain.AssetNotFoundError{Asset: "template", Tried: []string{"a/templates/resume.html", "b/templates/resume.html"}}
	svc := newService(eng, staticAssets{err: notFound})

	_, err := svc.Generate(context.Background(), domain.RenderRequest{HTML: "<p>x</p>"})
	var nf *domain.AssetNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, 500, domain.HTTPStatus(err))
	assert.Contains(t, err.Error(), "b/templates/resume.html")
	assert.Zero(t, eng.calls.Load())
}

func TestGenerate_FallbackTier(t *testing.T) {
	eng := &scriptedEngine{failing: map[string]bool{"primary": true}}
	svc := newService(eng, okAssets())

	out, err := svc.Generate(context.Background(), domain.RenderRequest{HTML: "<p>x</p>"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", out.Tier)
	assert.Equal(t, "%PDF-fallback", string(out.PDF))
	assert.EqualValues(t, 2, eng.calls.Load())
}

func TestGenerate_AllTiersFail(t *testing.T) {
	eng := &scriptedEngine{failing: map[string]bool{"primary": true, "fallback": true}}
	svc := newService(eng, okAssets())

	_, err := svc.Generate(context.Background(), domain.RenderRequest{HTML: "<p>x</p>"})
	var rerr *domain.RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "fallback", rerr.Tier)
	assert.EqualValues(t, 2, eng.calls.Load())
}

func TestGenerate_StrictMissingPlaceholder(t *testing.T) {
	eng := &scriptedEngine{}
	svc := newService(eng, staticAssets{assets: domain.ResolvedAssets{Template: "<html></html>", Stylesheet: "a{}"}})
	svc.Composer = compose.NewComposer(nil, true)

	_, err := svc.Generate(context.Background(), domain.RenderRequest{HTML: "<p>x</p>"})
	var mp *domain.MissingPlaceholderError
	require.True(t, errors.As(err, &mp))
	assert.Zero(t, eng.calls.Load())
}

func TestGenerate_PDFTooLarge(t *testing.T) {
	svc := newService(&scriptedEngine{}, okAssets())
	svc.MaxPDFBytes = 4

	_, err := svc.Generate(context.Background(), domain.RenderRequest{HTML: "<p>x</p>"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "limit is 4"))
}

func TestGenerate_CacheHitSkipsRenderer(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	eng := &scriptedEngine{}
	svc := newService(eng, okAssets())
	svc.Cache = cache.NewPDFCache(rdb, 0)

	req := domain.RenderRequest{HTML: "<p>cached</p>", Username: "A"}
	first, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.PDF, second.PDF)
	assert.EqualValues(t, 1, eng.calls.Load())

	// A different username changes the document and therefore the key.
	_, err = svc.Generate(context.Background(), domain.RenderRequest{HTML: "<p>cached</p>", Username: "B"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, eng.calls.Load())
}

type loaderFunc func() (domain.ResolvedAssets, error)

func (f loaderFunc) Load(context.Context) (domain.ResolvedAssets, error) { return f() }
