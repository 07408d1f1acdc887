// Package session owns the listening lifecycle: it subscribes to the key
// stream, feeds the trigger accumulator one event at a time and hands
// completed triggers to the expansion engine.
//
// All processing happens on the goroutine that called Run. An expansion
// runs inside that loop, so no key event is classified until every
// backspace and typed character of the previous expansion has been sent.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"dotphrase/internal/expand"
	"dotphrase/internal/keystroke"
	"dotphrase/internal/logging"
	"dotphrase/internal/metrics"
	"dotphrase/internal/notify"
	"dotphrase/internal/trigger"
)

// State is the session state.
type State int32

const (
	Stopped State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "stopped"
}

var (
	// ErrAlreadyListening is returned by Run while another Run is active.
	ErrAlreadyListening = errors.New("session already listening")

	// ErrSourceClosed is returned when the key stream ends on its own,
	// for example when the keyboard is unplugged.
	ErrSourceClosed = errors.New("input source closed")
)

// Expander handles completed triggers.
type Expander interface {
	Expand(ctx context.Context, trigger string) (expand.Outcome, error)
}

// Controller runs listening sessions.
type Controller struct {
	source    keystroke.Source
	expander  Expander
	acc       *trigger.Accumulator
	state     atomic.Int32
	cancelKey keystroke.Kind

	logger      *slog.Logger
	metrics     *metrics.Metrics
	notifier    notify.Notifier
	onExpansion func(trigger string, outcome expand.Outcome)
}

// Option configures a Controller.
type Option func(*Controller)

// WithCancelKey sets the key whose press ends the session.
func WithCancelKey(k keystroke.Kind) Option {
	return func(c *Controller) { c.cancelKey = k }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithNotifier sets where start and stop are announced.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// OnExpansion registers fn to run after every expansion attempt, on the
// processing goroutine.
func OnExpansion(fn func(trigger string, outcome expand.Outcome)) Option {
	return func(c *Controller) { c.onExpansion = fn }
}

// New creates a stopped Controller.
func New(source keystroke.Source, expander Expander, opts ...Option) *Controller {
	c := &Controller{
		source:    source,
		expander:  expander,
		acc:       trigger.New(),
		cancelKey: keystroke.KindEscape,
		logger:    slog.Default(),
		notifier:  notify.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state. Safe for concurrent use.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// CancelKey returns the key that ends a session.
func (c *Controller) CancelKey() keystroke.Kind {
	return c.cancelKey
}

// Run listens until the cancel key is pressed (returns nil), ctx ends
// (returns ctx.Err()) or the source closes (returns ErrSourceClosed).
func (c *Controller) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(Stopped), int32(Listening)) {
		return ErrAlreadyListening
	}
	defer c.setStopped()

	c.acc.Reset()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	raw, err := c.source.Start(runCtx)
	if err != nil {
		return fmt.Errorf("subscribe to key events: %w", err)
	}
	defer c.source.Stop()

	events := keystroke.Filter(runCtx, raw, c.suppressed)

	c.metrics.SetListening(true)
	c.logger.Info("listening", "cancel_key", c.cancelKey.String())
	c.announce(ctx, "dotphrase is listening", fmt.Sprintf("Press %s to stop.", c.cancelKey))

	for {
		select {
		case <-ctx.Done():
			c.acc.Reset()
			c.logger.Info("session ended", "reason", ctx.Err())
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				c.acc.Reset()
				if err := ctx.Err(); err != nil {
					// The source closed because ctx ended
					c.logger.Info("session ended", "reason", err)
					return err
				}
				c.logger.Error("key stream closed unexpectedly")
				return ErrSourceClosed
			}
			if c.handle(ctx, ev) {
				c.logger.Info("session stopped", "key", c.cancelKey.String())
				c.announce(context.WithoutCancel(ctx), "dotphrase stopped", "Expansion is off.")
				return nil
			}
		}
	}
}

func (c *Controller) setStopped() {
	c.state.Store(int32(Stopped))
	c.metrics.SetListening(false)
}

// handle processes one event and reports whether the session should stop.
func (c *Controller) handle(ctx context.Context, ev keystroke.Event) bool {
	if ev.IsPress() && ev.Kind == c.cancelKey {
		// The trigger in progress is dropped without a lookup
		c.acc.Reset()
		return true
	}

	if ev.IsPress() {
		c.metrics.Keystroke(ev.Source.String())
	}

	res := c.acc.Feed(ev)
	if res.Outcome != trigger.Completed {
		if res.Outcome != trigger.Ignored {
			c.logger.Debug("accumulator", "outcome", res.Outcome.String(),
				logging.KeyBuffer, c.acc.Buffer())
		}
		return false
	}

	c.metrics.Trigger()

	// Once started, an expansion finishes even if the session is being
	// cancelled, so the focused application is never left half-edited.
	start := time.Now()
	outcome, err := c.expander.Expand(context.WithoutCancel(ctx), res.Trigger)
	if err != nil {
		c.logger.Warn("expansion abandoned, still listening", "trigger", res.Trigger, "error", err)
	}
	c.acc.Reset()
	c.logger.Debug("trigger handled", "trigger", res.Trigger,
		"outcome", outcome.String(), "elapsed", time.Since(start))

	if c.onExpansion != nil {
		c.onExpansion(res.Trigger, outcome)
	}
	return false
}

func (c *Controller) suppressed(ev keystroke.Event) {
	if ev.IsPress() {
		c.metrics.Keystroke(ev.Source.String())
	}
	c.metrics.Suppressed()
}

func (c *Controller) announce(ctx context.Context, summary, body string) {
	nctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.notifier.Notify(nctx, summary, body); err != nil {
		c.logger.Debug("notification failed", "error", err)
	}
}
