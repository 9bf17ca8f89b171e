package chrome

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"resume-pdf/internal/config"
	"resume-pdf/internal/domain"
)

func testConfig(poolSize int) config.Config {
	cfg := config.Default()
	cfg.PDF.ChromePoolSize = poolSize
	cfg.PDF.UserDataDir = filepath.Join(os.TempDir(), "resume-pdf-chrome-tests")
	return cfg
}

func TestCreateProfileDir_DefaultAndCustomBase(t *testing.T) {
	cfg := testConfig(1)
	cfg.PDF.UserDataDir = ""
	dir1, err := createProfileDir(cfg)
	if err != nil {
		t.Fatalf("createProfileDir default base failed: %v", err)
	}
	defer os.RemoveAll(dir1)
	if _, err := os.Stat(dir1); err != nil {
		t.Fatalf("expected created dir to exist: %v", err)
	}

	customBase := t.TempDir()
	cfg.PDF.UserDataDir = customBase
	dir2, err := createProfileDir(cfg)
	if err != nil {
		t.Fatalf("createProfileDir custom base failed: %v", err)
	}
	defer os.RemoveAll(dir2)
	if filepath.Dir(dir2) != customBase {
		t.Fatalf("expected profile dir under custom base %q, got %q", customBase, dir2)
	}
}

func TestCreateProfileDir_InvalidBase(t *testing.T) {
	var cfg config.Config
	cfg.PDF.UserDataDir = "/dev/null/x"
	if _, err := createProfileDir(cfg); err == nil {
		t.Fatalf("expected error for invalid base dir")
	}
}

func TestPoolAcquireReleaseAndClose(t *testing.T) {
	p := &Pool{sem: make(chan struct{}, 1), browserCtx: context.Background()}
	p.sem <- struct{}{}

	tab, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("expected acquire success, got %v", err)
	}
	if tab == nil || tab.Ctx == nil {
		t.Fatalf("expected usable tab")
	}
	if len(p.sem) != 0 {
		t.Fatalf("expected slot consumed after acquire")
	}

	p.Release(tab, nil)
	if len(p.sem) != 1 {
		t.Fatalf("expected slot returned after release")
	}

	p.closed = true
	if _, err := p.Acquire(context.Background()); !errors.Is(err, domain.ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestPoolReleaseAfterCloseKeepsSlot(t *testing.T) {
	p := &Pool{sem: make(chan struct{}, 1), browserCtx: context.Background()}
	p.sem <- struct{}{}
	tab, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Close()
	p.Release(tab, errors.New("target closed"))
	if len(p.sem) != 0 {
		t.Fatalf("closed pool must not hand slots back")
	}
}

func TestPoolAcquireContextCanceled(t *testing.T) {
	p := &Pool{sem: make(chan struct{}, 1), browserCtx: context.Background()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestPoolAcquireTimesOutWhenNoCapacity(t *testing.T) {
	p := &Pool{sem: make(chan struct{}, 1), browserCtx: context.Background()}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected acquire deadline exceeded, got %v", err)
	}
}

func TestPoolStatsAndClose(t *testing.T) {
	p := &Pool{sem: make(chan struct{}, 2), cfg: testConfig(2), profileDir: t.TempDir(), browserCtx: context.Background()}
	p.sem <- struct{}{}
	p.sem <- struct{}{}

	st := p.Stats()
	if !st.Enabled || st.Capacity != 2 || st.Idle != 2 || st.InUse != 0 || st.PoolSizeConf != 2 {
		t.Fatalf("unexpected stats before acquire: %+v", st)
	}

	tab, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if st := p.Stats(); st.InUse != 1 || st.Idle != 1 {
		t.Fatalf("expected one in use, got %+v", st)
	}
	p.Release(tab, nil)

	p.Close()
	p.Close()
	if st := p.Stats(); st.Enabled {
		t.Fatalf("expected stats disabled after close: %+v", st)
	}
}

func TestPoolStats_ZeroValue(t *testing.T) {
	var p Pool
	st := p.Stats()
	if st.Enabled || st.Capacity != 0 {
		t.Fatalf("unexpected zero-value stats: %+v", st)
	}
}

func TestPoolRestartClosed(t *testing.T) {
	p := &Pool{closed: true}
	if err := p.Restart(); !errors.Is(err, domain.ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestPoolRestart_Success(t *testing.T) {
	cfg := testConfig(1)
	cfg.PDF.ChromePath = "/bin/true"
	old := t.TempDir()
	p := &Pool{
		cfg:        cfg,
		sem:        make(chan struct{}, 1),
		profileDir: old,
	}
	p.sem <- struct{}{}

	if err := p.Restart(); err != nil {
		t.Fatalf("expected restart success, got %v", err)
	}
	if p.profileDir == "" || p.profileDir == old {
		t.Fatalf("expected new profile dir, got %q", p.profileDir)
	}
	st := p.Stats()
	if st.Restarts != 1 || st.LastRestart.IsZero() {
		t.Fatalf("expected restart to be recorded: %+v", st)
	}
	p.Close()
	if _, err := os.Stat(st.ProfileDir); !os.IsNotExist(err) {
		t.Fatalf("expected profile dir removed on close, stat err = %v", err)
	}
}

func TestPoolRestartIfCurrent_OncePerGeneration(t *testing.T) {
	cfg := testConfig(2)
	cfg.PDF.ChromePath = "/bin/true"
	p, err := NewPool(cfg)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	a, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	b, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	p.Release(a, errors.New("target closed"))
	p.Release(b, context.Canceled)

	restarted, err := p.RestartIfCurrent(a)
	if err != nil || !restarted {
		t.Fatalf("first failure should restart: restarted=%v err=%v", restarted, err)
	}
	restarted, err = p.RestartIfCurrent(b)
	if err != nil || restarted {
		t.Fatalf("tab from the replaced browser must not restart again: restarted=%v err=%v", restarted, err)
	}
	if st := p.Stats(); st.Restarts != 1 || st.Idle != 2 {
		t.Fatalf("expected exactly one restart and all slots idle: %+v", st)
	}

	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire c: %v", err)
	}
	defer p.Release(c, nil)
	if c.generation == a.generation {
		t.Fatalf("tab after restart should belong to the new browser")
	}
}

func TestPoolRestartIfCurrent_Closed(t *testing.T) {
	p := &Pool{closed: true}
	if _, err := p.RestartIfCurrent(&Tab{}); !errors.Is(err, domain.ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestNewPool_Disabled(t *testing.T) {
	if _, err := NewPool(testConfig(0)); err == nil {
		t.Fatalf("expected disabled pool error")
	}
}

func TestNewPool_WithDummyExecPath(t *testing.T) {
	cfg := testConfig(2)
	cfg.PDF.ChromePath = "/bin/true"

	p, err := NewPool(cfg)
	if err != nil {
		t.Fatalf("expected pool init success with dummy exec path, got %v", err)
	}
	defer p.Close()

	if st := p.Stats(); st.Capacity != 2 || st.Idle != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	tab, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire should work: %v", err)
	}
	p.Release(tab, nil)
}

func TestPoolFlags(t *testing.T) {
	cfg := config.Default()
	if got := poolFlags(cfg); len(got) != len(config.PrimaryFlags) {
		t.Fatalf("expected primary flags, got %v", got)
	}
	cfg.PDF.Tiers = []config.RenderTier{{Name: "only", Isolated: true, Flags: []string{"x"}}}
	if got := poolFlags(cfg); len(got) != len(config.PrimaryFlags) {
		t.Fatalf("expected primary flags when every tier is isolated, got %v", got)
	}
}

func TestIsSessionInterrupted(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "context canceled", err: context.Canceled, want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "target closed", err: errors.New("target closed"), want: true},
		{name: "websocket", err: errors.New("could not dial websocket url"), want: true},
		{name: "normal error", err: errors.New("validation failed"), want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSessionInterrupted(tc.err); got != tc.want {
				t.Fatalf("IsSessionInterrupted(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
