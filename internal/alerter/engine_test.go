package alerter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdalert/alertd/internal/config"
	"github.com/wdalert/alertd/internal/notifier"
	"github.com/wdalert/alertd/internal/render"
	"github.com/wdalert/alertd/internal/state"
	"github.com/wdalert/alertd/internal/types"
)

type mockChannel struct {
	name   string
	ok     bool
	panics bool

	mu     sync.Mutex
	events []string
	closed atomic.Bool
}

func (m *mockChannel) Name() string { return m.name }

func (m *mockChannel) Send(_ context.Context, a types.Alert, _ string) bool {
	m.mu.Lock()
	m.events = append(m.events, a.Event)
	m.mu.Unlock()
	if m.panics {
		panic("boom")
	}
	return m.ok
}

func (m *mockChannel) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *mockChannel) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// blockingChannel holds every send until release is closed
type blockingChannel struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingChannel) Name() string { return "blocking" }

func (b *blockingChannel) Send(ctx context.Context, _ types.Alert, _ string) bool {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return ctx.Err() == nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *logRecorder) Log(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+" "+msg)
}

func (r *logRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func newTestDispatcher(t *testing.T, store *state.Store, clock *fakeClock, channels ...notifier.Channel) *Dispatcher {
	t.Helper()
	d := NewDispatcher(Options{
		QueueSize: 16,
		Policy:    testPolicy(),
		Renderer:  render.New(render.Options{Tag: render.DefaultTag}),
		Channels:  channels,
		Store:     store,
		Now:       clock.Now,
	}, zerolog.Nop())
	t.Cleanup(d.Stop)
	return d
}

func TestDispatcher_DiskLowScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts_state.json")
	store, err := state.Open(path)
	require.NoError(t, err)

	clock := &fakeClock{now: t0}
	a := &mockChannel{name: "telegram", ok: true}
	b := &mockChannel{name: "discord", ok: true}
	d := newTestDispatcher(t, store, clock, a, b)

	fields := map[string]any{"mount": "/data", "free_gb": 3}
	d.Emit("disk_low", types.SeverityWarning, "Disk Low", "/data at 92%", fields)
	clock.Advance(500 * time.Millisecond)
	d.Emit("disk_low", types.SeverityWarning, "Disk Low", "/data at 92%", fields)

	d.Start(context.Background())

	require.Eventually(t, func() bool {
		return d.Snapshot().SuppressedCount["disk_low"] == 1
	}, 2*time.Second, 10*time.Millisecond)
	d.Stop()

	assert.Equal(t, []string{"disk_low"}, a.Events())
	assert.Equal(t, []string{"disk_low"}, b.Events())

	reloaded, err := state.Open(path)
	require.NoError(t, err)
	snap := reloaded.Snapshot()
	assert.Equal(t, state.Unix(t0.Add(500*time.Millisecond)), snap.LastEventSent["disk_low"])
	assert.Len(t, snap.LastKeySent, 1)
}

func TestDispatcher_AnyChannelSuccessMarksSent(t *testing.T) {
	clock := &fakeClock{now: t0}
	failing := &mockChannel{name: "a", ok: false}
	working := &mockChannel{name: "b", ok: true}
	d := newTestDispatcher(t, state.NewMemoryStore(), clock, failing, working)

	d.Start(context.Background())
	d.Emit("svc_down", types.SeverityError, "Service Down", "rust exited", nil)

	require.Eventually(t, func() bool {
		_, ok := d.Snapshot().LastEventSent["svc_down"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"svc_down"}, failing.Events())
	assert.Equal(t, []string{"svc_down"}, working.Events())
	assert.Equal(t, 0, d.Snapshot().SuppressedCount["svc_down"])
}

func TestDispatcher_AllChannelsFailLeavesStateUntouched(t *testing.T) {
	clock := &fakeClock{now: t0}
	a := &mockChannel{name: "a"}
	b := &mockChannel{name: "b"}
	d := newTestDispatcher(t, state.NewMemoryStore(), clock, a, b)

	d.Start(context.Background())
	d.Emit("svc_down", types.SeverityError, "Service Down", "rust exited", nil)

	require.Eventually(t, func() bool {
		return len(a.Events()) == 1 && len(b.Events()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	d.Stop()

	assert.Equal(t, state.Empty(), d.Snapshot())
}

func TestDispatcher_FailedSendIsRetriedOnNextEmit(t *testing.T) {
	clock := &fakeClock{now: t0}
	a := &mockChannel{name: "a"}
	d := newTestDispatcher(t, state.NewMemoryStore(), clock, a)

	d.Start(context.Background())
	d.Emit("svc_down", types.SeverityError, "t", "x", nil)
	d.Emit("svc_down", types.SeverityError, "t", "x", nil)

	require.Eventually(t, func() bool {
		return len(a.Events()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, d.Snapshot().SuppressedCount["svc_down"])
}

func TestDispatcher_OverflowDropsNewest(t *testing.T) {
	clock := &fakeClock{now: t0}
	logs := &logRecorder{}
	ch := &mockChannel{name: "a", ok: true}
	d := NewDispatcher(Options{
		QueueSize: 3,
		Policy:    testPolicy(),
		Channels:  []notifier.Channel{ch},
		Log:       logs.Log,
		Now:       clock.Now,
	}, zerolog.Nop())
	t.Cleanup(d.Stop)

	for i := 0; i < 3; i++ {
		d.Emit(fmt.Sprintf("e%d", i), types.SeverityWarning, "t", "x", nil)
	}
	assert.Equal(t, 3, d.QueueDepth())
	assert.Equal(t, 3, d.QueueCapacity())

	d.Emit("low_dropped", types.SeverityWarning, "t", "x", nil)
	assert.Empty(t, logs.Lines(), "low severity drops are silent")

	d.Emit("crit_dropped", types.SeverityCritical, "t", "x", nil)
	assert.Equal(t, []string{"WARN ALERTS: queue full; dropped alert event=crit_dropped level=CRITICAL"}, logs.Lines())

	d.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(ch.Events()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	d.Stop()
	assert.Equal(t, []string{"e0", "e1", "e2"}, ch.Events())
}

func TestDispatcher_EmitNeverBlocks(t *testing.T) {
	clock := &fakeClock{now: t0}
	d := newTestDispatcher(t, state.NewMemoryStore(), clock, &mockChannel{name: "a", ok: true})

	var wg sync.WaitGroup
	start := time.Now()
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				d.Emit(fmt.Sprintf("g%d_%d", g, i), types.SeverityInfo, "t", "x", nil)
			}
		}(g)
	}
	wg.Wait()

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, d.QueueCapacity(), d.QueueDepth())
}

func TestDispatcher_DisabledWithoutChannels(t *testing.T) {
	logs := &logRecorder{}
	d := NewDispatcher(Options{Log: logs.Log}, zerolog.Nop())

	assert.False(t, d.Enabled())
	assert.Equal(t, []string{"WARN ALERTS: enabled, but no usable backends configured -> alerts disabled"}, logs.Lines())

	d.Start(context.Background())
	d.Emit("e", types.SeverityCritical, "t", "x", nil)
	assert.Equal(t, 0, d.QueueDepth())
	d.Stop()
	assert.Len(t, logs.Lines(), 1)
}

func TestDispatcher_DisabledByConfigIsSilent(t *testing.T) {
	logs := &logRecorder{}
	d := New(config.AlertsConfig{Enabled: false}, nil, zerolog.Nop(), logs.Log)

	assert.False(t, d.Enabled())
	assert.Empty(t, logs.Lines())
	d.Emit("e", types.SeverityCritical, "t", "x", nil)
	assert.Equal(t, 0, d.QueueDepth())
}

func TestDispatcher_PanickingLogCallback(t *testing.T) {
	assert.NotPanics(t, func() {
		NewDispatcher(Options{Log: func(string, string) { panic("bad logger") }}, zerolog.Nop())
	})
}

func TestDispatcher_PanickingChannelIsContained(t *testing.T) {
	clock := &fakeClock{now: t0}
	bad := &mockChannel{name: "bad", panics: true}
	good := &mockChannel{name: "good", ok: true}
	d := newTestDispatcher(t, state.NewMemoryStore(), clock, bad, good)

	d.Start(context.Background())
	d.Emit("first", types.SeverityError, "t", "x", nil)
	d.Emit("second", types.SeverityError, "t", "x", nil)

	require.Eventually(t, func() bool {
		return len(good.Events()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, bad.Events())

	require.Eventually(t, func() bool {
		return len(d.Snapshot().LastEventSent) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcher_StopClosesChannels(t *testing.T) {
	clock := &fakeClock{now: t0}
	ch := &mockChannel{name: "a", ok: true}
	d := newTestDispatcher(t, state.NewMemoryStore(), clock, ch)

	d.Start(context.Background())
	d.Stop()
	d.Stop()

	assert.True(t, ch.closed.Load())
	d.Emit("late", types.SeverityInfo, "t", "x", nil)
	assert.Equal(t, 0, d.QueueDepth(), "emit after stop is ignored")
}

func TestDispatcher_StopWaitsForInFlightDelivery(t *testing.T) {
	clock := &fakeClock{now: t0}
	ch := &blockingChannel{started: make(chan struct{}), release: make(chan struct{})}
	d := newTestDispatcher(t, state.NewMemoryStore(), clock, ch)

	d.Start(context.Background())
	d.Emit("svc_down", types.SeverityCritical, "Service Down", "rust exited", nil)

	select {
	case <-ch.started:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never started")
	}

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a delivery was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(ch.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the delivery finished")
	}

	snap := d.Snapshot()
	assert.Contains(t, snap.LastEventSent, "svc_down", "in-flight delivery must complete and be recorded")
	assert.Len(t, snap.LastKeySent, 1)
}

func TestDispatcher_ContextCancelStopsWorker(t *testing.T) {
	clock := &fakeClock{now: t0}
	ch := &mockChannel{name: "a", ok: true}
	d := newTestDispatcher(t, state.NewMemoryStore(), clock, ch)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}

func TestDispatcher_PersistErrorIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	store, err := state.Open(filepath.Join(blocker, "state.json"))
	require.Error(t, err)

	clock := &fakeClock{now: t0}
	ch := &mockChannel{name: "a", ok: true}
	d := newTestDispatcher(t, store, clock, ch)

	d.Start(context.Background())
	d.Emit("first", types.SeverityError, "t", "x", nil)
	d.Emit("second", types.SeverityError, "t", "x", nil)

	require.Eventually(t, func() bool {
		return len(d.Snapshot().LastEventSent) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, ch.Events())
}

func TestNew_FromConfig(t *testing.T) {
	t.Setenv("TEST_DISCORD_HOOK", "http://127.0.0.1:1/hook")

	cfg := config.Default().Alerts
	cfg.Enabled = true
	cfg.StatePath = filepath.Join(t.TempDir(), "state.json")
	cfg.MaxQueue = 7
	cfg.Backends = []string{"discord", "telegram"}
	cfg.Discord.WebhookEnv = "TEST_DISCORD_HOOK"
	cfg.Telegram.TokenEnv = "TEST_TG_UNSET"

	logs := &logRecorder{}
	d := New(cfg, nil, zerolog.Nop(), logs.Log)
	t.Cleanup(d.Stop)

	assert.True(t, d.Enabled())
	assert.Equal(t, []string{"discord"}, d.ChannelNames())
	assert.Equal(t, 7, d.QueueCapacity())
	assert.Empty(t, logs.Lines())
}

func TestNew_NoUsableBackends(t *testing.T) {
	cfg := config.Default().Alerts
	cfg.Enabled = true
	cfg.StatePath = ""
	cfg.Backends = []string{"telegram"}
	cfg.Telegram.TokenEnv = "TEST_TG_UNSET"

	logs := &logRecorder{}
	d := New(cfg, nil, zerolog.Nop(), logs.Log)

	assert.False(t, d.Enabled())
	assert.Equal(t, []string{"WARN ALERTS: enabled, but no usable backends configured -> alerts disabled"}, logs.Lines())
}

func TestAnyDelivered(t *testing.T) {
	assert.False(t, anyDelivered(nil))
	assert.False(t, anyDelivered([]bool{false, false}))
	assert.True(t, anyDelivered([]bool{false, true}))
}
