package render

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-pdf/internal/config"
	"resume-pdf/internal/domain"
	"resume-pdf/internal/metrics"
)

type fakeEngine struct {
	mu      sync.Mutex
	calls   []string
	results map[string]func(ctx context.Context) ([]byte, error)
}

func (f *fakeEngine) Render(ctx context.Context, _ string, opts Options) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts.Tier)
	fn := f.results[opts.Tier]
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("unexpected tier " + opts.Tier)
	}
	return fn(ctx)
}

func ok(b string) func(context.Context) ([]byte, error) {
	return func(context.Context) ([]byte, error) { return []byte(b), nil }
}

func fail(msg string) func(context.Context) ([]byte, error) {
	return func(context.Context) ([]byte, error) { return nil, errors.New(msg) }
}

func twoTiers() []Options {
	return []Options{
		{Tier: "primary", Timeout: time.Second},
		{Tier: "fallback", Timeout: time.Second},
	}
}

func TestRender_PrimarySucceeds(t *testing.T) {
	eng := &fakeEngine{results: map[string]func(context.Context) ([]byte, error){
		"primary":  ok("%PDF-primary"),
		"fallback": ok("%PDF-fallback"),
	}}
	r := NewRenderer(eng, twoTiers(), nil)

	res, err := r.Render(context.Background(), "<html/>")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-primary", string(res.PDF))
	assert.Equal(t, "primary", res.Tier)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []string{"primary"}, eng.calls)
}

func TestRender_FallbackRunsExactlyOnce(t *testing.T) {
	eng := &fakeEngine{results: map[string]func(context.Context) ([]byte, error){
		"primary":  fail("navigation failed"),
		"fallback": ok("%PDF-fallback"),
	}}
	r := NewRenderer(eng, twoTiers(), metrics.NewRecorder(nil))

	res, err := r.Render(context.Background(), "<html/>")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fallback", string(res.PDF))
	assert.Equal(t, "fallback", res.Tier)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []string{"primary", "fallback"}, eng.calls)
}

func TestRender_BothFailReturnsFallbackError(t *testing.T) {
	eng := &fakeEngine{results: map[string]func(context.Context) ([]byte, error){
		"primary":  fail("primary broke"),
		"fallback": fail("fallback broke"),
	}}
	r := NewRenderer(eng, twoTiers(), nil)

	_, err := r.Render(context.Background(), "<html/>")
	require.Error(t, err)

	var rerr *domain.RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "fallback", rerr.Tier)
	assert.Equal(t, domain.RenderFailure, rerr.Kind)
	assert.Contains(t, err.Error(), "fallback broke")
	assert.Equal(t, []string{"primary", "fallback"}, eng.calls)
}

func TestRender_TimeoutIsClassified(t *testing.T) {
	block := func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	eng := &fakeEngine{results: map[string]func(context.Context) ([]byte, error){
		"primary":  block,
		"fallback": block,
	}}
	r := NewRenderer(eng, []Options{
		{Tier: "primary", Timeout: 20 * time.Millisecond},
		{Tier: "fallback", Timeout: 20 * time.Millisecond},
	}, nil)

	_, err := r.Render(context.Background(), "<html/>")
	var rerr *domain.RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, domain.RenderTimeout, rerr.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, eng.calls, 2)
}

func TestRender_EmptyOutputIsFailure(t *testing.T) {
	eng := &fakeEngine{results: map[string]func(context.Context) ([]byte, error){
		"primary":  ok(""),
		"fallback": ok("%PDF"),
	}}
	r := NewRenderer(eng, twoTiers(), nil)

	res, err := r.Render(context.Background(), "<html/>")
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Tier)
}

func TestRender_CancelledCallerStopsAfterCurrentTier(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := &fakeEngine{results: map[string]func(context.Context) ([]byte, error){
		"primary": func(context.Context) ([]byte, error) {
			cancel()
			return nil, context.Canceled
		},
		"fallback": ok("%PDF"),
	}}
	r := NewRenderer(eng, twoTiers(), nil)

	_, err := r.Render(ctx, "<html/>")
	require.Error(t, err)
	assert.Equal(t, []string{"primary"}, eng.calls)
}

func TestRender_NoTiers(t *testing.T) {
	r := NewRenderer(&fakeEngine{}, nil, nil)
	_, err := r.Render(context.Background(), "<html/>")
	assert.Error(t, err)
}

func TestTiersFromConfig(t *testing.T) {
	cfg := config.Default()
	tiers := TiersFromConfig(cfg)
	require.Len(t, tiers, 2)

	assert.Equal(t, "primary", tiers[0].Tier)
	assert.Equal(t, config.WaitNetworkIdle, tiers[0].WaitUntil)
	assert.Equal(t, 30*time.Second, tiers[0].Timeout)
	assert.False(t, tiers[0].Isolated)

	assert.Equal(t, "fallback", tiers[1].Tier)
	assert.Equal(t, config.WaitDOMContentLoaded, tiers[1].WaitUntil)
	assert.Equal(t, 15*time.Second, tiers[1].Timeout)
	assert.True(t, tiers[1].Isolated)

	for _, o := range tiers {
		assert.Equal(t, 8.27, o.PaperWidth)
		assert.Equal(t, 11.69, o.PaperHeight)
		assert.True(t, o.PrintBackground)
	}
}
