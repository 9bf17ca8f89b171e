// Package chrome drives headless Chrome through chromedp: a pool of tabs in a
// long-lived browser plus one-shot isolated browsers.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"resume-pdf/internal/config"
	"resume-pdf/internal/domain"
	"resume-pdf/internal/infra/logging"
)

const warmupTimeout = 20 * time.Second

// Tab is a browser tab borrowed from a Pool.
type Tab struct {
	Ctx    context.Context
	cancel context.CancelFunc
	// generation of the browser the tab was opened in.
	generation uint64
}

// Stats is a snapshot of the pool state.
type Stats struct {
	Enabled      bool      `json:"enabled"`
	Capacity     int       `json:"capacity"`
	Idle         int       `json:"idle"`
	InUse        int       `json:"in_use"`
	PoolSizeConf int       `json:"pool_size_conf"`
	ProfileDir   string    `json:"profile_dir"`
	Restarts     int       `json:"restarts"`
	LastRestart  time.Time `json:"last_restart,omitzero"`
}

// Pool limits concurrent renders on one shared browser. Each Acquire opens a
// fresh tab; the semaphore bounds how many are open at once.
type Pool struct {
	mu  sync.Mutex
	cfg config.Config

	sem chan struct{}

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	profileDir    string

	// generation counts browser launches; tabs remember theirs so only the
	// first failure seen on a browser replaces it.
	generation uint64

	closed      bool
	restarts    int
	lastRestart time.Time
}

// NewPool starts the shared browser. A failed warmup is logged and the pool
// is still returned; tabs fail individually until Restart succeeds.
func NewPool(cfg config.Config) (*Pool, error) {
	size := cfg.PDF.ChromePoolSize
	if size <= 0 {
		return nil, errors.New("chrome pool disabled (chrome_pool_size is 0)")
	}

	p := &Pool{cfg: cfg, sem: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		p.sem <- struct{}{}
	}
	if err := p.start(); err != nil {
		return nil, err
	}
	logging.Info("Chrome pool started", "size", size, "profile_dir", p.profileDir)
	return p, nil
}

// start launches a browser with a fresh profile. Caller holds mu or owns p.
func (p *Pool) start() error {
	dir, err := createProfileDir(p.cfg)
	if err != nil {
		return err
	}

	opts := allocatorOptions(p.cfg.PDF.ChromePath, dir, poolFlags(p.cfg))
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	p.allocCancel = allocCancel
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.profileDir = dir

	// The first Run launches the browser. It must not carry a deadline or the
	// browser dies with it; the allocator bounds startup instead.
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(browserCtx) }()
	select {
	case err := <-done:
		if err != nil {
			logging.Warn("Chrome pool warmup failed", "error", err, "chrome_path", p.cfg.PDF.ChromePath)
		}
	case <-time.After(warmupTimeout):
		logging.Warn("Chrome pool warmup timed out", "timeout", warmupTimeout.String())
	}
	return nil
}

func (p *Pool) stop() {
	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	if p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
	}
}

// Acquire waits for a free slot and opens a tab in the shared browser.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, domain.ErrPoolClosed
	}
	p.mu.Unlock()

	select {
	case <-p.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	parent, gen := p.browserCtx, p.generation
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		p.giveBack()
		return nil, err
	}
	if parent == nil {
		parent = context.Background()
	}

	tabCtx, cancel := chromedp.NewContext(parent)
	return &Tab{Ctx: tabCtx, cancel: cancel, generation: gen}, nil
}

// Release closes the tab and frees its slot. renderErr is only logged; the
// caller decides whether the browser needs a Restart.
func (p *Pool) Release(tab *Tab, renderErr error) {
	if tab != nil && tab.cancel != nil {
		tab.cancel()
	}
	if renderErr != nil {
		logging.Debug("Chrome tab released after error", "error", renderErr)
	}

	p.giveBack()
}

func (p *Pool) giveBack() {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	select {
	case p.sem <- struct{}{}:
	default:
	}
}

// Restart replaces the shared browser and its profile directory. Tabs still
// open on the old browser fail and are released normally.
func (p *Pool) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return domain.ErrPoolClosed
	}
	return p.restartLocked()
}

// RestartIfCurrent restarts the browser tab was opened in, unless it has
// already been replaced. Failures of the other tabs killed by that restart
// therefore do not trigger further restarts. It reports whether a restart
// happened.
func (p *Pool) RestartIfCurrent(tab *Tab) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false, domain.ErrPoolClosed
	}
	if tab == nil || tab.generation != p.generation {
		return false, nil
	}
	return true, p.restartLocked()
}

func (p *Pool) restartLocked() error {
	p.stop()
	p.generation++
	if err := p.start(); err != nil {
		return fmt.Errorf("restart chrome pool: %w", err)
	}
	p.restarts++
	p.lastRestart = time.Now().UTC()
	logging.Warn("Chrome pool restarted", "restarts", p.restarts, "profile_dir", p.profileDir)
	return nil
}

// Close shuts the browser down. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.stop()
}

// Stats reports the pool state. It is safe on a zero Pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{
		PoolSizeConf: p.cfg.PDF.ChromePoolSize,
		ProfileDir:   p.profileDir,
		Restarts:     p.restarts,
		LastRestart:  p.lastRestart,
	}
	if p.sem == nil || p.closed {
		return st
	}
	st.Enabled = true
	st.Capacity = cap(p.sem)
	st.Idle = len(p.sem)
	st.InUse = st.Capacity - st.Idle
	return st
}

func createProfileDir(cfg config.Config) (string, error) {
	base := cfg.PDF.UserDataDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("create chrome profile base %s: %w", base, err)
	}
	dir, err := os.MkdirTemp(base, "chrome-profile-*")
	if err != nil {
		return "", fmt.Errorf("create chrome profile dir: %w", err)
	}
	return dir, nil
}

// poolFlags returns the flags of the first tier that may use the pool.
func poolFlags(cfg config.Config) []string {
	for _, t := range cfg.PDF.Tiers {
		if !t.Isolated {
			return t.Flags
		}
	}
	return config.PrimaryFlags
}

// IsSessionInterrupted reports errors after which the shared browser should
// not be trusted any more.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "websocket") ||
		strings.Contains(msg, "browser closed")
}
