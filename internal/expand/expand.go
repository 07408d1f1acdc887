// Package expand turns a completed trigger into its expansion: look the
// trigger up, erase what the user typed, then type the replacement.
package expand

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"dotphrase/internal/inject"
	"dotphrase/internal/keystroke"
	"dotphrase/internal/logging"
	"dotphrase/internal/metrics"
	"dotphrase/internal/notify"
)

// Lookuper is the part of the mapping store the engine needs.
type Lookuper interface {
	Lookup(ctx context.Context, trigger string) (expansion string, ok bool, err error)
}

// Outcome reports what Expand did.
type Outcome int

const (
	// Unknown: no mapping; nothing was injected.
	Unknown Outcome = iota
	// Expanded: the trigger was erased and the expansion typed.
	Expanded
	// LookupFailed: the store errored; treated like Unknown.
	LookupFailed
	// InjectFailed: injection started or was attempted and failed.
	InjectFailed
)

func (o Outcome) String() string {
	switch o {
	case Expanded:
		return metrics.ResultExpanded
	case LookupFailed:
		return metrics.ResultLookupError
	case InjectFailed:
		return metrics.ResultInjectError
	default:
		return metrics.ResultUnknown
	}
}

// notifyTimeout bounds the desktop notification sent on failure.
const notifyTimeout = 2 * time.Second

// Engine expands completed triggers.
type Engine struct {
	store    Lookuper
	injector inject.Injector
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier notify.Notifier
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithNotifier sets where injection failures are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// New creates an Engine.
func New(store Lookuper, injector inject.Injector, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		injector: injector,
		logger:   slog.Default(),
		notifier: notify.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand handles one completed trigger. A store failure is logged and
// treated as an unknown trigger. An injection failure is logged, reported
// and returned; the caller keeps listening either way.
func (e *Engine) Expand(ctx context.Context, trigger string) (Outcome, error) {
	expansion, ok, err := e.store.Lookup(ctx, trigger)
	if err != nil {
		e.logger.Warn("lookup failed, leaving trigger as typed", "trigger", trigger, "error", err)
		e.metrics.Expansion(metrics.ResultLookupError)
		return LookupFailed, nil
	}
	if !ok {
		e.logger.Debug("no mapping", "trigger", trigger)
		e.metrics.Expansion(metrics.ResultUnknown)
		return Unknown, nil
	}

	start := time.Now()
	err = Replace(ctx, e.injector, trigger, expansion)
	e.metrics.ObserveInjection(time.Since(start))
	if err != nil {
		e.logger.Error("injection failed", "trigger", trigger, "error", err)
		e.metrics.Expansion(metrics.ResultInjectError)
		e.report(ctx, trigger, err)
		return InjectFailed, fmt.Errorf("expand %s: %w", trigger, err)
	}

	e.logger.Info("expanded", "trigger", trigger, logging.KeyExpansion, expansion,
		"duration", time.Since(start))
	e.metrics.Expansion(metrics.ResultExpanded)
	return Expanded, nil
}

func (e *Engine) report(ctx context.Context, trigger string, cause error) {
	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	body := fmt.Sprintf("%s could not be expanded: %v", trigger, cause)
	if err := e.notifier.Notify(nctx, "dotphrase: expansion failed", body); err != nil {
		e.logger.Debug("notification failed", "error", err)
	}
}

// Erasures returns how many backspaces remove trigger and the boundary
// character typed after it.
func Erasures(trigger string) int {
	return utf8.RuneCountInString(trigger) + 1
}

// Replace erases trigger plus its boundary character, then types
// expansion. Every backspace has been sent before typing starts.
func Replace(ctx context.Context, injector inject.Injector, trigger, expansion string) error {
	n := Erasures(trigger)
	for i := 0; i < n; i++ {
		if err := injector.PressRelease(ctx, keystroke.KindBackspace); err != nil {
			return fmt.Errorf("backspace %d of %d: %w", i+1, n, err)
		}
	}
	if err := injector.Type(ctx, expansion); err != nil {
		return fmt.Errorf("type expansion: %w", err)
	}
	return nil
}
