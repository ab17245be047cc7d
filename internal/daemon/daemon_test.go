package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"infodisplay/internal/clock"
	"infodisplay/internal/registry"
	"infodisplay/internal/scheduler"
	"infodisplay/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUpdater struct {
	mu       sync.Mutex
	calls    int
	interval time.Duration
	script   func(call int) (scheduler.Result, error)
}

func (f *fakeUpdater) UpdateDisplay(ctx context.Context) (scheduler.Result, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	script := f.script
	f.mu.Unlock()

	if script != nil {
		return script(call)
	}
	return scheduler.Result{Outcome: scheduler.OutcomeRendered}, nil
}

func (f *fakeUpdater) SetDefaultInterval(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interval = d
}

func (f *fakeUpdater) Interval() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interval
}

func (f *fakeUpdater) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// startDaemon runs Start in the background and waits until the loop is
// parked on the clock.
func startDaemon(t *testing.T, d *Daemon, clk *clock.MockClock, opts Options) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(context.Background(), opts) }()
	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	return errCh
}

func TestDaemon_TicksOnPollInterval(t *testing.T) {
	clk := clock.NewMockClock(time.Now())
	up := &fakeUpdater{}
	d := New(up, clk, zap.NewNop())

	errCh := startDaemon(t, d, clk, Options{PollTick: 30 * time.Second, DefaultInterval: 10 * time.Minute})
	assert.Equal(t, StateRunning, d.State())
	assert.Equal(t, 1, up.Calls(), "immediate update on start")
	assert.Equal(t, 10*time.Minute, up.Interval())

	for i := 2; i <= 4; i++ {
		clk.Advance(30 * time.Second)
		want := i
		assert.Eventually(t, func() bool { return up.Calls() == want && clk.Waiters() == 1 },
			time.Second, time.Millisecond)
	}

	d.Stop()
	require.NoError(t, <-errCh)
	assert.Equal(t, StateStopped, d.State())
	assert.Equal(t, 4, up.Calls())
}

func TestDaemon_SurvivesPanicsAndErrors(t *testing.T) {
	clk := clock.NewMockClock(time.Now())
	up := &fakeUpdater{script: func(call int) (scheduler.Result, error) {
		switch call {
		case 1:
			panic("renderer bug")
		case 2:
			return scheduler.Result{}, scheduler.ErrNoPluginsAvailable
		case 3:
			return scheduler.Result{Plugin: "weather", Outcome: scheduler.OutcomeFailed}, scheduler.ErrRenderFailed
		case 4:
			return scheduler.Result{}, errors.New("unexpected")
		}
		return scheduler.Result{Outcome: scheduler.OutcomeRendered}, nil
	}}
	d := New(up, clk, zap.NewNop())

	errCh := startDaemon(t, d, clk, Options{PollTick: time.Second})
	for i := 2; i <= 5; i++ {
		clk.Advance(time.Second)
		want := i
		require.Eventually(t, func() bool { return up.Calls() == want && clk.Waiters() == 1 },
			time.Second, time.Millisecond)
	}
	assert.Equal(t, StateRunning, d.State())

	d.Stop()
	require.NoError(t, <-errCh)
}

func TestDaemon_StopIsIdempotentAndPrompt(t *testing.T) {
	clk := clock.NewMockClock(time.Now())
	d := New(&fakeUpdater{}, clk, zap.NewNop())

	// stopping a stopped daemon is a no-op
	d.Stop()
	assert.Equal(t, StateStopped, d.State())

	errCh := startDaemon(t, d, clk, Options{PollTick: time.Hour})

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not interrupt the wait")
	}
	require.NoError(t, <-errCh)

	d.Stop()
	assert.Equal(t, StateStopped, d.State())
}

func TestDaemon_AlreadyRunning(t *testing.T) {
	clk := clock.NewMockClock(time.Now())
	d := New(&fakeUpdater{}, clk, zap.NewNop())
	errCh := startDaemon(t, d, clk, Options{})

	assert.ErrorIs(t, d.Start(context.Background(), Options{}), ErrAlreadyRunning)

	d.Stop()
	require.NoError(t, <-errCh)
}

func TestDaemon_CleanupsRunOncePerStart(t *testing.T) {
	clk := clock.NewMockClock(time.Now())
	d := New(&fakeUpdater{}, clk, zap.NewNop())

	var mu sync.Mutex
	var hooks []string
	d.OnShutdown(func() {
		mu.Lock()
		defer mu.Unlock()
		hooks = append(hooks, "plugins")
	})
	d.OnShutdown(func() { panic("surface already closed") })
	d.OnShutdown(func() {
		mu.Lock()
		defer mu.Unlock()
		hooks = append(hooks, "surface")
	})

	// stop path
	errCh := startDaemon(t, d, clk, Options{})
	d.Stop()
	d.Stop()
	require.NoError(t, <-errCh)

	// cancellation path, as on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() { cancelled <- d.Start(ctx, Options{}) }()
	require.Eventually(t, func() bool { return d.State() == StateRunning }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-cancelled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"plugins", "surface", "plugins", "surface"}, hooks)
	assert.Equal(t, StateStopped, d.State())
}

func TestDaemon_StopLetsCurrentRenderFinish(t *testing.T) {
	clk := clock.NewMockClock(time.Now())
	entered := make(chan struct{})
	release := make(chan struct{})
	var renderErr error
	stub := testutil.NewStub("slow", time.Minute).SetRenderFunc(func(ctx context.Context) bool {
		close(entered)
		<-release
		renderErr = ctx.Err()
		return true
	})

	h := testutil.NewHarness(stub)
	reg := registry.New(h.Catalog, h.Config, h.Surface, h.Logger)
	require.NoError(t, reg.Load(h.Config.EnabledPlugins()))
	sched := scheduler.New(reg, scheduler.Options{Clock: clk}, zap.NewNop())

	d := New(sched, clk, zap.NewNop())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(context.Background(), Options{}) }()
	<-entered

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	require.Eventually(t, func() bool { return d.State() == StateStopping }, time.Second, time.Millisecond)
	select {
	case <-stopped:
		t.Fatal("Stop returned while a render was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stopped
	require.NoError(t, <-errCh)
	assert.NoError(t, renderErr, "render context stays live until the render returns")
	assert.Equal(t, "slow", sched.Current())
	assert.Equal(t, 1, stub.Renders())
}

func TestDaemon_WithScheduler(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	clockStub := testutil.NewStub("clock", time.Minute)
	h := testutil.NewHarness(clockStub, testutil.NewStub("weather", 30*time.Minute))
	reg := registry.New(h.Catalog, h.Config, h.Surface, h.Logger)
	require.NoError(t, reg.Load(h.Config.EnabledPlugins()))
	sched := scheduler.New(reg, scheduler.Options{DefaultPlugin: "clock", Clock: clk}, zap.NewNop())

	d := New(sched, clk, zap.NewNop())
	d.OnShutdown(reg.Cleanup)
	errCh := startDaemon(t, d, clk, Options{PollTick: 30 * time.Second})

	// four ticks over two minutes render the clock twice more
	for i := 0; i < 4; i++ {
		clk.Advance(30 * time.Second)
		require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	}
	d.Stop()
	require.NoError(t, <-errCh)

	assert.Equal(t, 3, clockStub.Renders())
	assert.Equal(t, 3, h.Surface.Paints())
	assert.Equal(t, 1, clockStub.Cleanups())
	assert.Equal(t, 0, reg.Len())
}
