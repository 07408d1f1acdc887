package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dotphrase/internal/expand"
	"dotphrase/internal/inject"
	"dotphrase/internal/keystroke"
	"dotphrase/internal/logging"
	"dotphrase/internal/metrics"
	"dotphrase/internal/store"
)

const waitFor = 2 * time.Second

type expansion struct {
	trigger string
	outcome expand.Outcome
}

// countingStore records how many lookups reach the store.
type countingStore struct {
	expand.Lookuper
	mu      sync.Mutex
	lookups int
	err     error
}

func (c *countingStore) Lookup(ctx context.Context, trigger string) (string, bool, error) {
	c.mu.Lock()
	c.lookups++
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return "", false, err
	}
	return c.Lookuper.Lookup(ctx, trigger)
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups
}

// harness wires a simulated keyboard, an in-memory screen and a real
// engine. Screen output is echoed back into the keyboard stream, tagged
// synthetic, the way a shared OS input channel would report it.
type harness struct {
	t          *testing.T
	sim        *keystroke.Simulated
	screen     *inject.Screen
	store      *countingStore
	metrics    *metrics.Metrics
	ctrl       *Controller
	expansions chan expansion
	done       chan error
}

func newHarness(t *testing.T, phrases map[string]string, opts ...Option) *harness {
	t.Helper()

	mem := store.NewMemory()
	for k, v := range phrases {
		require.NoError(t, mem.Insert(context.Background(), k, v))
	}

	h := &harness{
		t:          t,
		sim:        keystroke.NewSimulated(),
		screen:     inject.NewScreen(),
		store:      &countingStore{Lookuper: mem},
		metrics:    metrics.New(),
		expansions: make(chan expansion, 16),
		done:       make(chan error, 1),
	}
	h.screen.Echo(func(ev keystroke.Event) { h.sim.Emit(ev) })

	logger := logging.Discard().Logger
	engine := expand.New(h.store, h.screen, expand.WithLogger(logger), expand.WithMetrics(h.metrics))

	opts = append([]Option{
		WithLogger(logger),
		WithMetrics(h.metrics),
		OnExpansion(func(trigger string, outcome expand.Outcome) {
			h.expansions <- expansion{trigger, outcome}
		}),
	}, opts...)
	h.ctrl = New(h.sim, engine, opts...)
	return h
}

func (h *harness) start(ctx context.Context) {
	h.t.Helper()
	go func() { h.done <- h.ctrl.Run(ctx) }()
	require.Eventually(h.t, h.sim.IsRunning, waitFor, time.Millisecond)
	require.Equal(h.t, Listening, h.ctrl.State())
}

// emit shows a user key press on the screen and sends press and release.
// The release may find the source already stopped after a cancel key.
func (h *harness) emit(ev keystroke.Event) {
	h.screen.Observe(ev)
	require.True(h.t, h.sim.Emit(ev))
	h.sim.Emit(ev.Released())
}

func (h *harness) typeText(text string) {
	for _, r := range text {
		h.emit(keystroke.EventForRune(r, keystroke.SourceHardware))
	}
}

func (h *harness) press(k keystroke.Kind) {
	h.emit(keystroke.EventForKind(k, keystroke.SourceHardware))
}

func (h *harness) waitExpansion() expansion {
	h.t.Helper()
	select {
	case e := <-h.expansions:
		return e
	case <-time.After(waitFor):
		h.t.Fatal("no expansion attempt")
		return expansion{}
	}
}

func (h *harness) wait() error {
	h.t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(waitFor):
		h.t.Fatal("session did not stop")
		return nil
	}
}

// stop presses the cancel key and waits for Run to return.
func (h *harness) stop() {
	h.t.Helper()
	h.press(h.ctrl.CancelKey())
	require.NoError(h.t, h.wait())
	assert.Equal(h.t, Stopped, h.ctrl.State())
}

func (h *harness) assertNoMoreExpansions() {
	h.t.Helper()
	select {
	case e := <-h.expansions:
		h.t.Fatalf("unexpected expansion attempt for %q", e.trigger)
	default:
	}
}

// =============================================================================
// Scenarios
// =============================================================================

func TestKnownTriggerIsReplaced(t *testing.T) {
	h := newHarness(t, map[string]string{".hi": "Hello, world!"})
	h.start(context.Background())

	h.typeText("hi.hi ")
	e := h.waitExpansion()
	h.stop()

	assert.Equal(t, expansion{".hi", expand.Expanded}, e)
	assert.Equal(t, "hiHello, world!", h.screen.Text())
	assert.Equal(t, 4, h.screen.Backspaces())
}

func TestUnknownTriggerLeavesTextUntouched(t *testing.T) {
	h := newHarness(t, nil)
	h.start(context.Background())

	h.typeText(".xyz ")
	e := h.waitExpansion()
	h.stop()

	assert.Equal(t, expand.Unknown, e.outcome)
	assert.Equal(t, ".xyz ", h.screen.Text())
	assert.Empty(t, h.screen.Ops())
}

func TestLoneDotIsNotLookedUp(t *testing.T) {
	h := newHarness(t, map[string]string{".": "never"})
	h.start(context.Background())

	h.typeText("The end. ")
	h.stop()

	h.assertNoMoreExpansions()
	assert.Equal(t, 0, h.store.count())
	assert.Equal(t, "The end. ", h.screen.Text())
}

func TestRepeatedExpansionsAreIndependent(t *testing.T) {
	h := newHarness(t, map[string]string{".hi": "Hello, world!"})
	h.start(context.Background())

	h.typeText(".hi ")
	h.waitExpansion()
	h.typeText(".hi ")
	h.waitExpansion()
	h.stop()

	assert.Equal(t, "Hello, world!Hello, world!", h.screen.Text())
	assert.Equal(t, 8, h.screen.Backspaces())
}

func TestInjectedTextIsNotReobserved(t *testing.T) {
	// The expansion contains its own trigger followed by a boundary; if our
	// own output reached the accumulator this would expand forever.
	const body = "see .loop again "
	h := newHarness(t, map[string]string{".loop": body})
	h.start(context.Background())

	h.typeText(".loop ")
	h.waitExpansion()
	h.typeText("x")
	h.stop()

	h.assertNoMoreExpansions()
	assert.Equal(t, body+"x", h.screen.Text())
	assert.Equal(t, 1, h.store.count())

	// 6 backspaces and 16 typed characters, each a press and a release
	expected := `
# HELP dotphrase_suppressed_events_total Self-generated key events dropped before the accumulator.
# TYPE dotphrase_suppressed_events_total counter
dotphrase_suppressed_events_total 44
`
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(),
		strings.NewReader(expected), "dotphrase_suppressed_events_total"))
}

func TestCancelWhileAccumulatingDiscardsBuffer(t *testing.T) {
	h := newHarness(t, map[string]string{".ab": "AB"})
	h.start(context.Background())

	h.typeText(".ab")
	h.stop()
	h.assertNoMoreExpansions()
	assert.Equal(t, ".ab", h.screen.Text())

	// A new session starts Idle: the boundary does not complete ".ab"
	h.start(context.Background())
	h.typeText(" q")
	h.stop()

	h.assertNoMoreExpansions()
	assert.Equal(t, 0, h.store.count())
	assert.Equal(t, ".ab q", h.screen.Text())
}

func TestBackspaceEditsTrigger(t *testing.T) {
	h := newHarness(t, map[string]string{".hi": "Hello"})
	h.start(context.Background())

	h.typeText(".hix")
	h.press(keystroke.KindBackspace)
	h.typeText(" ")
	e := h.waitExpansion()
	h.stop()

	assert.Equal(t, ".hi", e.trigger)
	assert.Equal(t, "Hello", h.screen.Text())
}

func TestInjectionFailureKeepsListening(t *testing.T) {
	h := newHarness(t, map[string]string{".hi": "Hello, world!"})
	h.start(context.Background())

	h.screen.FailWith(errors.New("target rejected input"))
	h.typeText(".hi ")
	assert.Equal(t, expand.InjectFailed, h.waitExpansion().outcome)
	assert.Equal(t, Listening, h.ctrl.State())

	h.screen.FailWith(nil)
	h.typeText(".hi ")
	assert.Equal(t, expand.Expanded, h.waitExpansion().outcome)
	h.stop()

	assert.Equal(t, ".hi Hello, world!", h.screen.Text())
}

func TestStoreFailureKeepsListening(t *testing.T) {
	h := newHarness(t, map[string]string{".hi": "Hello"})
	h.store.err = errors.New("database is locked")
	h.start(context.Background())

	h.typeText(".hi ")
	assert.Equal(t, expand.LookupFailed, h.waitExpansion().outcome)

	h.store.mu.Lock()
	h.store.err = nil
	h.store.mu.Unlock()

	h.typeText(".hi ")
	assert.Equal(t, expand.Expanded, h.waitExpansion().outcome)
	h.stop()

	assert.Equal(t, ".hi Hello", h.screen.Text())
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestCancelKeyReleaseDoesNotStop(t *testing.T) {
	h := newHarness(t, map[string]string{".hi": "Hello"})
	h.start(context.Background())

	release := keystroke.EventForKind(keystroke.KindEscape, keystroke.SourceHardware).Released()
	require.True(t, h.sim.Emit(release))
	h.typeText(".hi ")
	h.waitExpansion()
	assert.Equal(t, Listening, h.ctrl.State())
	h.stop()
}

func TestCustomCancelKey(t *testing.T) {
	h := newHarness(t, nil, WithCancelKey(keystroke.KindDelete))
	h.start(context.Background())

	h.press(keystroke.KindEscape)
	h.typeText(".x ")
	h.waitExpansion()
	assert.Equal(t, Listening, h.ctrl.State())

	h.press(keystroke.KindDelete)
	require.NoError(t, h.wait())
	assert.Equal(t, Stopped, h.ctrl.State())
}

func TestContextCancelStops(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.start(ctx)

	cancel()
	assert.ErrorIs(t, h.wait(), context.Canceled)
	assert.Equal(t, Stopped, h.ctrl.State())
	assert.False(t, h.sim.IsRunning())
}

// cancelOnFirstKey cancels the session the moment the first erasure is sent.
type cancelOnFirstKey struct {
	*inject.Screen
	once   sync.Once
	cancel context.CancelFunc
}

func (c *cancelOnFirstKey) PressRelease(ctx context.Context, key keystroke.Kind) error {
	c.once.Do(c.cancel)
	return c.Screen.PressRelease(ctx, key)
}

func TestCancelDuringExpansionFinishesIt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := store.NewMemory()
	require.NoError(t, mem.Insert(ctx, ".hi", "Hello"))

	sim := keystroke.NewSimulated()
	screen := inject.NewScreen()
	injector := &cancelOnFirstKey{Screen: screen, cancel: cancel}
	logger := logging.Discard().Logger
	ctrl := New(sim, expand.New(mem, injector, expand.WithLogger(logger)), WithLogger(logger))

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	require.Eventually(t, sim.IsRunning, waitFor, time.Millisecond)

	for _, r := range ".hi " {
		ev := keystroke.EventForRune(r, keystroke.SourceHardware)
		screen.Observe(ev)
		require.True(t, sim.Emit(ev))
	}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("session did not stop")
	}
	assert.Equal(t, 4, screen.Backspaces())
	assert.Equal(t, "Hello", screen.Text())
	assert.Equal(t, Stopped, ctrl.State())
}

func TestRunTwiceIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.start(context.Background())

	assert.ErrorIs(t, h.ctrl.Run(context.Background()), ErrAlreadyListening)
	h.stop()
}

func TestSourceClosedEndsSession(t *testing.T) {
	h := newHarness(t, nil)
	h.start(context.Background())

	require.NoError(t, h.sim.Stop())
	assert.ErrorIs(t, h.wait(), ErrSourceClosed)
	assert.Equal(t, Stopped, h.ctrl.State())
}

type brokenSource struct{}

func (brokenSource) Start(context.Context) (<-chan keystroke.Event, error) {
	return nil, keystroke.ErrPermissionDenied
}
func (brokenSource) Stop() error               { return nil }
func (brokenSource) Available() (bool, string) { return false, "broken" }

func TestSubscribeFailure(t *testing.T) {
	c := New(brokenSource{}, expand.New(store.NewMemory(), inject.NewScreen()),
		WithLogger(logging.Discard().Logger))

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, keystroke.ErrPermissionDenied)
	assert.Equal(t, Stopped, c.State())
}

func TestListeningGauge(t *testing.T) {
	h := newHarness(t, nil)
	gauge := func() float64 {
		mfs, err := h.metrics.Registry().Gather()
		require.NoError(t, err)
		for _, mf := range mfs {
			if mf.GetName() == "dotphrase_session_listening" {
				return mf.GetMetric()[0].GetGauge().GetValue()
			}
		}
		t.Fatal("gauge not registered")
		return -1
	}

	h.start(context.Background())
	assert.Equal(t, 1.0, gauge())
	h.stop()
	assert.Equal(t, 0.0, gauge())
}
