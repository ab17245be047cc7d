package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"infodisplay/internal/clock"
	"infodisplay/internal/registry"
	"infodisplay/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

var start = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

type fixture struct {
	sched    *Scheduler
	harness  *testutil.Harness
	registry *registry.Registry
	clock    *clock.MockClock
}

func newFixture(t require.TestingT, stubs ...*testutil.Stub) *fixture {
	h := testutil.NewHarness(stubs...)
	reg := registry.New(h.Catalog, h.Config, h.Surface, h.Logger)
	require.NoError(t, reg.Load(h.Config.EnabledPlugins()))

	clk := clock.NewMockClock(start)
	s := New(reg, Options{DefaultPlugin: h.Config.DefaultPlugin(), Clock: clk}, zap.NewNop())
	return &fixture{sched: s, harness: h, registry: reg, clock: clk}
}

func TestShouldUpdate_FollowsInterval(t *testing.T) {
	clockStub := testutil.NewStub("clock", time.Minute)
	f := newFixture(t, clockStub)

	assert.True(t, f.sched.ShouldUpdate("clock"), "never rendered")

	res, err := f.sched.Run(context.Background(), "clock", false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRendered, res.Outcome)
	assert.False(t, f.sched.ShouldUpdate("clock"))

	f.clock.Advance(59 * time.Second)
	assert.False(t, f.sched.ShouldUpdate("clock"))

	f.clock.Advance(time.Second)
	assert.True(t, f.sched.ShouldUpdate("clock"))

	assert.False(t, f.sched.ShouldUpdate("unknown"))
}

func TestRun_SkipsWhenNotDue(t *testing.T) {
	stub := testutil.NewStub("clock", time.Minute)
	f := newFixture(t, stub)

	_, err := f.sched.Run(context.Background(), "clock", false)
	require.NoError(t, err)

	res, err := f.sched.Run(context.Background(), "clock", false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.False(t, res.Success())
	assert.Equal(t, 1, stub.Renders(), "render not invoked when skipped")
}

func TestRun_ForceAlwaysRenders(t *testing.T) {
	stub := testutil.NewStub("clock", time.Hour)
	f := newFixture(t, stub)

	for i := 0; i < 3; i++ {
		res, err := f.sched.Run(context.Background(), "clock", true)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRendered, res.Outcome)
		assert.True(t, res.Forced)
	}
	assert.Equal(t, 3, stub.Renders())
	assert.Equal(t, 3, f.harness.Surface.Paints())
}

func TestRun_NotFoundLeavesState(t *testing.T) {
	f := newFixture(t, testutil.NewStub("clock", time.Minute))
	_, err := f.sched.Run(context.Background(), "clock", false)
	require.NoError(t, err)

	_, err = f.sched.Run(context.Background(), "weather", true)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "clock", f.sched.Current())

	_, ok := f.sched.LastRun("weather")
	assert.False(t, ok)
}

func TestRun_FailureLeavesState(t *testing.T) {
	clockStub := testutil.NewStub("clock", time.Minute)
	weather := testutil.NewStub("weather", time.Minute).SetResult(false)
	f := newFixture(t, clockStub, weather)

	_, err := f.sched.Run(context.Background(), "clock", false)
	require.NoError(t, err)
	before, _ := f.sched.LastRun("clock")

	res, err := f.sched.Run(context.Background(), "weather", false)
	assert.ErrorIs(t, err, ErrRenderFailed)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.NotEmpty(t, res.Error)

	assert.Equal(t, "clock", f.sched.Current())
	_, ok := f.sched.LastRun("weather")
	assert.False(t, ok)
	assert.True(t, f.sched.ShouldUpdate("weather"), "a failed render is retried on the next opportunity")

	after, _ := f.sched.LastRun("clock")
	assert.Equal(t, before, after)
}

func TestRun_PanicIsAFailure(t *testing.T) {
	stub := testutil.NewStub("weather", time.Minute).SetPanic("nil map")
	f := newFixture(t, stub)

	var res Result
	var err error
	assert.NotPanics(t, func() {
		res, err = f.sched.Run(context.Background(), "weather", true)
	})
	assert.ErrorIs(t, err, ErrRenderFailed)
	assert.Contains(t, res.Error, "panicked")
	assert.Equal(t, "", f.sched.Current())
}

func TestRun_TimeoutIsAFailure(t *testing.T) {
	stub := testutil.NewStub("weather", time.Minute).SetRenderFunc(func(ctx context.Context) bool {
		<-ctx.Done()
		return true
	})
	f := newFixture(t, stub)
	f.sched.SetRenderTimeout(10 * time.Millisecond)

	res, err := f.sched.Run(context.Background(), "weather", true)
	assert.ErrorIs(t, err, ErrRenderFailed)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Error, "deadline")
	assert.Equal(t, "", f.sched.Current())
}

func TestRun_PassesDeadlineToPlugin(t *testing.T) {
	stub := testutil.NewStub("clock", time.Minute)
	f := newFixture(t, stub)

	_, err := f.sched.Run(context.Background(), "clock", true)
	require.NoError(t, err)
	_, hasDeadline := stub.LastContext().Deadline()
	assert.False(t, hasDeadline)

	f.sched.SetRenderTimeout(time.Minute)
	_, err = f.sched.Run(context.Background(), "clock", true)
	require.NoError(t, err)
	_, hasDeadline = stub.LastContext().Deadline()
	assert.True(t, hasDeadline)
}

func TestSelectDefault(t *testing.T) {
	t.Run("current wins while loaded", func(t *testing.T) {
		f := newFixture(t, testutil.NewStub("clock", time.Minute), testutil.NewStub("weather", time.Minute))
		_, err := f.sched.Run(context.Background(), "weather", true)
		require.NoError(t, err)

		name, ok := f.sched.SelectDefault()
		assert.True(t, ok)
		assert.Equal(t, "weather", name)
	})

	t.Run("configured default when nothing current", func(t *testing.T) {
		f := newFixture(t, testutil.NewStub("clock", time.Minute), testutil.NewStub("weather", time.Minute))
		f.sched.SetDefaultPlugin("weather")

		name, ok := f.sched.SelectDefault()
		assert.True(t, ok)
		assert.Equal(t, "weather", name)
	})

	t.Run("default when current was unloaded", func(t *testing.T) {
		f := newFixture(t,
			testutil.NewStub("clock", time.Minute),
			testutil.NewStub("weather", time.Minute),
			testutil.NewStub("stock", time.Minute))
		_, err := f.sched.Run(context.Background(), "stock", true)
		require.NoError(t, err)

		f.harness.SetEnabled("weather", "clock")
		require.NoError(t, f.sched.Reload())

		name, ok := f.sched.SelectDefault()
		assert.True(t, ok)
		assert.Equal(t, "clock", name)
	})

	t.Run("first loaded when default is not loaded", func(t *testing.T) {
		f := newFixture(t, testutil.NewStub("weather", time.Minute), testutil.NewStub("stock", time.Minute))
		f.sched.SetDefaultPlugin("clock")

		name, ok := f.sched.SelectDefault()
		assert.True(t, ok)
		assert.Equal(t, "weather", name)
	})

	t.Run("none when empty", func(t *testing.T) {
		f := newFixture(t)
		name, ok := f.sched.SelectDefault()
		assert.False(t, ok)
		assert.Equal(t, "", name)
	})
}

func TestUpdateDisplay(t *testing.T) {
	f := newFixture(t)
	_, err := f.sched.UpdateDisplay(context.Background())
	assert.ErrorIs(t, err, ErrNoPluginsAvailable)

	_, err = f.sched.Cycle(context.Background())
	assert.ErrorIs(t, err, ErrNoPluginsAvailable)

	stub := testutil.NewStub("clock", time.Minute)
	f = newFixture(t, stub, testutil.NewStub("weather", time.Minute))

	res, err := f.sched.UpdateDisplay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "clock", res.Plugin)
	assert.False(t, res.Forced)

	res, err = f.sched.UpdateDisplay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, 1, stub.Renders())
}

func TestUpdateDisplay_PaintCadence(t *testing.T) {
	stub := testutil.NewStub("clock", time.Minute)
	f := newFixture(t, stub)

	// poll every 30s for ten minutes
	_, err := f.sched.UpdateDisplay(context.Background())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		f.clock.Advance(30 * time.Second)
		_, err := f.sched.UpdateDisplay(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 11, f.harness.Surface.Paints())
	assert.Equal(t, 11, stub.Renders())
}

func TestCycle_RoundRobin(t *testing.T) {
	f := newFixture(t,
		testutil.NewStub("a", time.Hour),
		testutil.NewStub("b", time.Hour),
		testutil.NewStub("c", time.Hour))

	var seen []string
	for i := 0; i < 4; i++ {
		res, err := f.sched.Cycle(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Forced, "cycle forces the render")
		seen = append(seen, res.Plugin)
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, seen)
}

func TestCycle_FailureDoesNotAdvance(t *testing.T) {
	b := testutil.NewStub("b", time.Hour).SetResult(false)
	f := newFixture(t, testutil.NewStub("a", time.Hour), b, testutil.NewStub("c", time.Hour))

	_, err := f.sched.Run(context.Background(), "a", true)
	require.NoError(t, err)

	res, err := f.sched.Cycle(context.Background())
	assert.ErrorIs(t, err, ErrRenderFailed)
	assert.Equal(t, "b", res.Plugin)
	assert.Equal(t, "a", f.sched.Current())

	res, err = f.sched.Cycle(context.Background())
	assert.ErrorIs(t, err, ErrRenderFailed)
	assert.Equal(t, "b", res.Plugin)
	assert.Equal(t, 2, b.Renders())
}

func TestListPlugins(t *testing.T) {
	f := newFixture(t, testutil.NewStub("clock", time.Minute), testutil.NewStub("weather", 0))
	f.sched.SetDefaultInterval(10 * time.Minute)

	_, err := f.sched.Run(context.Background(), "clock", false)
	require.NoError(t, err)

	list := f.sched.ListPlugins()
	require.Len(t, list, 2)

	assert.Equal(t, "clock", list[0].Name)
	assert.Equal(t, "Stub plugin clock", list[0].Description)
	assert.Equal(t, time.Minute, list[0].UpdateInterval)
	assert.Equal(t, 60, list[0].IntervalSeconds())
	require.NotNil(t, list[0].LastRun)
	assert.Equal(t, start, *list[0].LastRun)
	assert.False(t, list[0].NeedsUpdate)
	assert.True(t, list[0].IsCurrent)

	assert.Equal(t, "weather", list[1].Name)
	assert.Equal(t, 10*time.Minute, list[1].UpdateInterval, "non-positive interval falls back to the baseline")
	assert.Nil(t, list[1].LastRun)
	assert.True(t, list[1].NeedsUpdate)
	assert.False(t, list[1].IsCurrent)
}

func TestDefaultInterval(t *testing.T) {
	stub := testutil.NewStub("weather", 0)
	f := newFixture(t, stub)

	_, err := f.sched.Run(context.Background(), "weather", false)
	require.NoError(t, err)

	f.clock.Advance(DefaultInterval - time.Second)
	assert.False(t, f.sched.ShouldUpdate("weather"))
	f.clock.Advance(time.Second)
	assert.True(t, f.sched.ShouldUpdate("weather"))

	f.sched.SetDefaultInterval(0)
	f.sched.SetDefaultInterval(time.Hour)
	assert.False(t, f.sched.ShouldUpdate("weather"))
}

func TestReload_PrunesState(t *testing.T) {
	f := newFixture(t, testutil.NewStub("clock", time.Minute), testutil.NewStub("weather", time.Minute))
	_, err := f.sched.Run(context.Background(), "clock", true)
	require.NoError(t, err)
	_, err = f.sched.Run(context.Background(), "weather", true)
	require.NoError(t, err)

	f.harness.SetEnabled("clock", "missing")
	err = f.sched.Reload()
	assert.ErrorIs(t, err, registry.ErrUnknownPlugin)

	assert.Equal(t, "", f.sched.Current())
	_, ok := f.sched.LastRun("weather")
	assert.False(t, ok)
	_, ok = f.sched.LastRun("clock")
	assert.True(t, ok, "state of plugins still loaded is kept")
}

func TestObservers(t *testing.T) {
	f := newFixture(t, testutil.NewStub("clock", time.Minute), testutil.NewStub("weather", time.Minute).SetResult(false))

	var mu sync.Mutex
	var got []Result
	f.sched.AddObserver(ObserverFunc(func(r Result) {
		// the scheduler lock is released before observers run
		_ = f.sched.Current()
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	}))
	f.sched.AddObserver(ObserverFunc(func(Result) { panic("observer bug") }))

	ctx := context.Background()
	_, _ = f.sched.Run(ctx, "clock", false)
	_, _ = f.sched.Run(ctx, "clock", false) // skipped
	_, _ = f.sched.Run(ctx, "weather", false)
	_, _ = f.sched.Run(ctx, "missing", true)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, OutcomeRendered, got[0].Outcome)
	assert.Equal(t, OutcomeFailed, got[1].Outcome)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.Equal(t, start, got[0].StartedAt)
}

func TestRun_NeverConcurrent(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	render := func(ctx context.Context) bool {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return true
	}

	f := newFixture(t,
		testutil.NewStub("a", time.Minute).SetRenderFunc(render),
		testutil.NewStub("b", time.Minute).SetRenderFunc(render))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			switch i % 3 {
			case 0:
				_, _ = f.sched.Run(ctx, "a", true)
			case 1:
				_, _ = f.sched.Cycle(ctx)
			default:
				_, _ = f.sched.UpdateDisplay(ctx)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestExclusive_WaitsForRender(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	f := newFixture(t, testutil.NewStub("a", time.Minute).SetRenderFunc(func(ctx context.Context) bool {
		close(entered)
		<-release
		return true
	}))

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_, _ = f.sched.Run(context.Background(), "a", true)
	}()
	<-entered

	var ran atomic.Bool
	exclusiveDone := make(chan error, 1)
	go func() {
		exclusiveDone <- f.sched.Exclusive(func() error {
			ran.Store(true)
			return errors.New("surface busy")
		})
	}()

	assert.Never(t, ran.Load, 50*time.Millisecond, 5*time.Millisecond)

	close(release)
	<-runDone
	assert.EqualError(t, <-exclusiveDone, "surface busy")
	assert.True(t, ran.Load())
}

func TestProperty_DueAfterInterval(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		interval := time.Duration(rapid.IntRange(1, 7200).Draw(t, "interval")) * time.Second
		f := newFixture(t, testutil.NewStub("p", interval))

		if _, err := f.sched.Run(context.Background(), "p", false); err != nil {
			t.Fatalf("first run: %v", err)
		}

		var elapsed time.Duration
		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			step := time.Duration(rapid.IntRange(0, 1200).Draw(t, "step")) * time.Second
			f.clock.Advance(step)
			elapsed += step

			want := elapsed >= interval
			if got := f.sched.ShouldUpdate("p"); got != want {
				t.Fatalf("elapsed %v interval %v: ShouldUpdate=%v", elapsed, interval, got)
			}
			if want {
				break
			}
		}
	})
}

func TestProperty_CycleVisitsInLoadOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "plugins")
		stubs := make([]*testutil.Stub, n)
		names := make([]string, n)
		for i := range stubs {
			names[i] = fmt.Sprintf("p%d", i)
			stubs[i] = testutil.NewStub(names[i], time.Hour)
		}
		f := newFixture(t, stubs...)

		first := rapid.IntRange(-1, n-1).Draw(t, "first")
		if first >= 0 {
			if _, err := f.sched.Run(context.Background(), names[first], true); err != nil {
				t.Fatalf("seed run: %v", err)
			}
		}

		cycles := rapid.IntRange(1, 3*n).Draw(t, "cycles")
		for i := 1; i <= cycles; i++ {
			res, err := f.sched.Cycle(context.Background())
			if err != nil {
				t.Fatalf("cycle %d: %v", i, err)
			}
			want := names[(first+i)%n]
			if res.Plugin != want {
				t.Fatalf("cycle %d: got %s want %s", i, res.Plugin, want)
			}
		}
	})
}

func TestErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrNotFound, ErrRenderFailed))
	assert.False(t, errors.Is(ErrNoPluginsAvailable, ErrNotFound))
}
