// Package keystroke provides the live keyboard event stream.
//
// Events carry the character each key press produces so that typed
// triggers can be recognized. Nothing is stored: events flow through a
// channel to a single consumer and are discarded.
//
// Platform support:
// - Linux: Uses /dev/input/event* (requires input group or root)
// - Other platforms: not available
package keystroke

import (
	"context"
	"errors"
	"sync"
)

// Source produces an ordered stream of keyboard events.
type Source interface {
	// Start begins reading keyboard events. The returned channel is closed
	// when the source stops or ctx is cancelled.
	Start(ctx context.Context) (<-chan Event, error)

	// Stop stops reading and closes the event channel.
	Stop() error

	// Available returns true if keyboard events can be read
	// on this platform with current permissions.
	Available() (bool, string)
}

// Options configures a platform source.
type Options struct {
	// Devices lists explicit /dev/input/event* paths. Empty means autodetect.
	Devices []string

	// SyntheticDevices are device names whose events are tagged
	// SourceSynthetic (the injector's own virtual keyboard).
	SyntheticDevices []string

	// Buffer is the event channel capacity.
	Buffer int
}

// DefaultBuffer is the event channel capacity used when Options.Buffer is 0.
const DefaultBuffer = 256

// New creates a Source for the current platform.
func New(opts Options) Source {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	return newPlatformSource(opts)
}

// ErrNotAvailable is returned when keyboard events cannot be read.
var ErrNotAvailable = errors.New("keyboard input not available on this platform")

// ErrPermissionDenied is returned when permissions are insufficient.
var ErrPermissionDenied = errors.New("insufficient permissions for keyboard input")

// ErrAlreadyRunning is returned when Start is called while already running.
var ErrAlreadyRunning = errors.New("source already running")

// baseSource provides the running flag and cancellation shared by implementations.
type baseSource struct {
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// begin marks the source running and derives its context.
func (b *baseSource) begin(ctx context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil, ErrAlreadyRunning
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.running = true
	return b.ctx, nil
}

// end cancels the source context. It reports whether the source was running.
func (b *baseSource) end() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return false
	}
	b.cancel()
	b.running = false
	return true
}

// IsRunning returns the running state.
func (b *baseSource) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Filter forwards events from in to the returned channel in order, dropping
// events tagged SourceSynthetic. onDrop, if non-nil, is called for each
// dropped event. The returned channel closes when in closes or ctx ends.
func Filter(ctx context.Context, in <-chan Event, onDrop func(Event)) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					return
				}
				if ev.Source == SourceSynthetic {
					if onDrop != nil {
						onDrop(ev)
					}
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
