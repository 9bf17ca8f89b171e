package render

import (
	"context"
	"errors"
	"time"

	"resume-pdf/internal/domain"
	"resume-pdf/internal/infra/logging"
	"resume-pdf/internal/metrics"
)

// Engine performs one render attempt with a headless browser.
type Engine interface {
	Render(ctx context.Context, html string, opts Options) ([]byte, error)
}

// Result is a successful render.
type Result struct {
	PDF      []byte
	Tier     string
	Attempts int
}

// Renderer tries each tier in order and returns the first non-empty PDF.
type Renderer struct {
	engine  Engine
	tiers   []Options
	metrics *metrics.Recorder
}

// NewRenderer builds a renderer. rec may be nil.
func NewRenderer(engine Engine, tiers []Options, rec *metrics.Recorder) *Renderer {
	return &Renderer{engine: engine, tiers: tiers, metrics: rec}
}

var errEmptyPDF = errors.New("renderer returned no bytes")

// Render runs the tiers in order. Each tier gets its own deadline derived from
// ctx. When every tier fails the error of the last one is returned, wrapped in
// a *domain.RenderError.
func (r *Renderer) Render(ctx context.Context, html string) (Result, error) {
	if len(r.tiers) == 0 {
		return Result{}, domain.NewRenderError("none", errors.New("no render tiers configured"))
	}

	var lastErr error
	for i, opts := range r.tiers {
		start := time.Now()
		pdf, err := r.attempt(ctx, html, opts)
		elapsed := time.Since(start)

		if err == nil {
			r.metrics.ObserveRenderAttempt(opts.Tier, metrics.OutcomeSuccess, elapsed)
			if i > 0 {
				logging.Info("PDF rendered by fallback tier", "tier", opts.Tier, "duration_ms", elapsed.Milliseconds())
			}
			return Result{PDF: pdf, Tier: opts.Tier, Attempts: i + 1}, nil
		}

		rerr := domain.NewRenderError(opts.Tier, err)
		outcome := metrics.OutcomeFailure
		if rerr.Kind == domain.RenderTimeout {
			outcome = metrics.OutcomeTimeout
		}
		r.metrics.ObserveRenderAttempt(opts.Tier, outcome, elapsed)

		if i < len(r.tiers)-1 {
			logging.Warn("Render tier failed; trying next tier", "tier", opts.Tier, "kind", string(rerr.Kind), "error", err)
		} else {
			logging.Error("All render tiers failed", "tier", opts.Tier, "kind", string(rerr.Kind), "error", err)
		}
		lastErr = rerr

		// A cancelled caller will not see the result of another tier.
		if ctx.Err() != nil {
			break
		}
	}
	return Result{}, lastErr
}

func (r *Renderer) attempt(ctx context.Context, html string, opts Options) ([]byte, error) {
	tctx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	pdf, err := r.engine.Render(tctx, html, opts)
	if err != nil {
		return nil, err
	}
	if len(pdf) == 0 {
		return nil, errEmptyPDF
	}
	return pdf, nil
}
