package chrome

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"resume-pdf/internal/config"
	"resume-pdf/internal/infra/logging"
	"resume-pdf/internal/render"
)

const acquireTimeout = 5 * time.Second

// Engine renders documents with headless Chrome. Tiers that are not isolated
// borrow a tab from the pool when one is configured; everything else starts a
// throwaway browser.
type Engine struct {
	chromePath  string
	userDataDir string
	pool        *Pool
}

// NewEngine returns an engine. pool may be nil.
func NewEngine(cfg config.Config, pool *Pool) *Engine {
	return &Engine{
		chromePath:  cfg.PDF.ChromePath,
		userDataDir: cfg.PDF.UserDataDir,
		pool:        pool,
	}
}

// Pool returns the shared tab pool, or nil.
func (e *Engine) Pool() *Pool {
	return e.pool
}

// Render writes html to a temporary file, opens it, waits for the tier's
// readiness event and prints the page.
func (e *Engine) Render(ctx context.Context, html string, opts render.Options) ([]byte, error) {
	dir, err := os.MkdirTemp("", "resume-render-*")
	if err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}
	defer os.RemoveAll(dir)

	docPath := filepath.Join(dir, "resume.html")
	if err := os.WriteFile(docPath, []byte(html), 0o600); err != nil {
		return nil, fmt.Errorf("write render document: %w", err)
	}
	docURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(docPath)}).String()

	if e.pool != nil && !opts.Isolated {
		return e.renderPooled(ctx, docURL, opts)
	}
	return e.renderIsolated(ctx, dir, docURL, opts)
}

func (e *Engine) renderPooled(ctx context.Context, docURL string, opts render.Options) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, acquireTimeout)
	tab, err := e.pool.Acquire(actx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("acquire chrome tab: %w", err)
	}

	// The tab lives under the shared browser, so the caller's deadline and
	// cancellation are carried over explicitly.
	var (
		tctx    context.Context
		tcancel context.CancelFunc
	)
	if dl, ok := ctx.Deadline(); ok {
		tctx, tcancel = context.WithDeadline(tab.Ctx, dl)
	} else {
		tctx, tcancel = context.WithCancel(tab.Ctx)
	}
	stop := context.AfterFunc(ctx, tcancel)

	pdf, renderErr := printPage(tctx, docURL, opts)
	stop()
	tcancel()
	e.pool.Release(tab, renderErr)

	// Our own deadline is not a sign of a broken browser.
	if renderErr != nil && ctx.Err() == nil && IsSessionInterrupted(renderErr) {
		restarted, err := e.pool.RestartIfCurrent(tab)
		switch {
		case err != nil:
			logging.Error("Chrome pool restart failed", "error", err)
		case restarted:
			logging.Warn("Chrome session interrupted; pool restarted", "tier", opts.Tier, "error", renderErr)
		default:
			logging.Debug("Chrome session interrupted by an earlier restart", "tier", opts.Tier, "error", renderErr)
		}
	}
	return pdf, renderErr
}

func (e *Engine) renderIsolated(ctx context.Context, dir, docURL string, opts render.Options) ([]byte, error) {
	profile := filepath.Join(dir, "profile")
	if e.userDataDir != "" {
		p, err := os.MkdirTemp(e.userDataDir, "chrome-oneshot-*")
		if err != nil {
			return nil, fmt.Errorf("create chrome profile dir: %w", err)
		}
		defer os.RemoveAll(p)
		profile = p
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(e.chromePath, profile, opts.Flags)...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	return printPage(browserCtx, docURL, opts)
}

// allocatorOptions builds launch options from chromedp's defaults plus the
// tier flags, written as "name" or "name=value".
func allocatorOptions(chromePath, profileDir string, flags []string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.UserDataDir(profileDir),
		chromedp.WSURLReadTimeout(warmupTimeout),
	)
	for _, f := range flags {
		name, value, hasValue := strings.Cut(strings.TrimLeft(strings.TrimSpace(f), "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	if chromePath != "" {
		opts = append(opts, chromedp.ExecPath(chromePath))
	}
	return opts
}

// printPage navigates the tab in ctx to docURL and prints it once the
// readiness event has fired for that navigation.
func printPage(ctx context.Context, docURL string, opts render.Options) ([]byte, error) {
	w := newLifecycleWatcher()
	chromedp.ListenTarget(ctx, w.observe)

	event := lifecycleEvent(opts.WaitUntil)
	var pdf []byte
	err := chromedp.Run(ctx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var res page.NavigateReturns
			if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(docURL), &res); err != nil {
				return fmt.Errorf("navigate: %w", err)
			}
			if res.ErrorText != "" {
				return fmt.Errorf("navigate: %s", res.ErrorText)
			}
			return w.wait(ctx, res.LoaderID, event)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(opts.PrintBackground).
				WithPreferCSSPageSize(opts.PreferCSSPageSize).
				WithPaperWidth(opts.PaperWidth).
				WithPaperHeight(opts.PaperHeight).
				WithScale(opts.Scale).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

// lifecycleEvent maps a configured readiness condition to the CDP lifecycle
// event name.
func lifecycleEvent(waitUntil string) string {
	switch waitUntil {
	case config.WaitNetworkIdle:
		return "networkIdle"
	case config.WaitLoad:
		return "load"
	default:
		return "DOMContentLoaded"
	}
}

// lifecycleWatcher records lifecycle events per loader so a wait can start
// after the events it is interested in have already arrived.
type lifecycleWatcher struct {
	mu     sync.Mutex
	seen   map[cdp.LoaderID]map[string]struct{}
	notify chan struct{}
}

func newLifecycleWatcher() *lifecycleWatcher {
	return &lifecycleWatcher{
		seen:   make(map[cdp.LoaderID]map[string]struct{}),
		notify: make(chan struct{}, 1),
	}
}

func (w *lifecycleWatcher) observe(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok {
		return
	}
	w.record(e.LoaderID, e.Name)
}

func (w *lifecycleWatcher) record(loader cdp.LoaderID, name string) {
	w.mu.Lock()
	names := w.seen[loader]
	if names == nil {
		names = make(map[string]struct{})
		w.seen[loader] = names
	}
	names[name] = struct{}{}
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *lifecycleWatcher) has(loader cdp.LoaderID, name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[loader][name]
	return ok
}

func (w *lifecycleWatcher) wait(ctx context.Context, loader cdp.LoaderID, name string) error {
	for {
		if w.has(loader, name) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", name, ctx.Err())
		case <-w.notify:
		}
	}
}
