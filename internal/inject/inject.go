// Package inject sends synthetic key events to whichever application has
// input focus.
package inject

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dotphrase/internal/keystroke"
)

// Injector performs press/release and typing commands against the focused
// application. Both calls are synchronous: when they return, every event has
// been handed to the OS.
type Injector interface {
	// PressRelease presses and releases a named key once.
	PressRelease(ctx context.Context, key keystroke.Kind) error

	// Type injects text as if typed by the user.
	Type(ctx context.Context, text string) error

	// Close releases the underlying device.
	Close() error
}

// UnicodeMode selects how runes missing from the keyboard layout are typed.
type UnicodeMode string

const (
	// UnicodeNone rejects runes that have no key on the layout.
	UnicodeNone UnicodeMode = "none"
	// UnicodeCtrlShiftU types Ctrl+Shift+U, the hex code point, then space
	// (GTK and IBus unicode entry).
	UnicodeCtrlShiftU UnicodeMode = "ctrl-shift-u"
)

// Options configures a platform injector.
type Options struct {
	// DeviceName is the name of the virtual keyboard. The input source uses
	// it to recognize (and drop) our own events.
	DeviceName string

	// KeyDelay is the pause after each synthetic key event.
	KeyDelay time.Duration

	// SettleDelay is the pause after creating the device, giving the
	// display server time to pick it up.
	SettleDelay time.Duration

	// Unicode selects the fallback for runes outside the layout.
	Unicode UnicodeMode
}

// DefaultDeviceName is the name of the virtual keyboard device.
const DefaultDeviceName = "dotphrase virtual keyboard"

// DefaultOptions returns the injector defaults.
func DefaultOptions() Options {
	return Options{
		DeviceName:  DefaultDeviceName,
		KeyDelay:    2 * time.Millisecond,
		SettleDelay: 300 * time.Millisecond,
		Unicode:     UnicodeCtrlShiftU,
	}
}

// New opens the injector for the current platform.
func New(opts Options) (Injector, error) {
	if opts.DeviceName == "" {
		opts.DeviceName = DefaultDeviceName
	}
	if opts.Unicode == "" {
		opts.Unicode = UnicodeCtrlShiftU
	}
	return newPlatformInjector(opts)
}

var (
	// ErrNotAvailable is returned when no injection backend exists on this platform.
	ErrNotAvailable = errors.New("key injection not available on this platform")

	// ErrUnmappable is returned when text contains a rune that cannot be typed.
	ErrUnmappable = errors.New("rune cannot be typed on this keyboard layout")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("injector closed")
)

// keyStep is one key transition in a typing plan.
type keyStep struct {
	code    uint16
	pressed bool
}

// planRune returns the key transitions that type r.
func planRune(r rune, mode UnicodeMode) ([]keyStep, error) {
	if code, shift, ok := keystroke.KeyForRune(r); ok {
		if shift {
			return []keyStep{
				{keystroke.KeyLeftShift, true},
				{code, true}, {code, false},
				{keystroke.KeyLeftShift, false},
			}, nil
		}
		return []keyStep{{code, true}, {code, false}}, nil
	}

	if mode != UnicodeCtrlShiftU {
		return nil, fmt.Errorf("%w: %q", ErrUnmappable, r)
	}

	steps := []keyStep{
		{keystroke.KeyLeftCtrl, true},
		{keystroke.KeyLeftShift, true},
		{keystroke.KeyU, true}, {keystroke.KeyU, false},
		{keystroke.KeyLeftShift, false},
		{keystroke.KeyLeftCtrl, false},
	}
	for _, h := range hexDigits(r) {
		code, _, _ := keystroke.KeyForRune(h)
		steps = append(steps, keyStep{code, true}, keyStep{code, false})
	}
	return append(steps, keyStep{keystroke.KeySpace, true}, keyStep{keystroke.KeySpace, false}), nil
}

// hexDigits returns the lower-case hex code point of r without leading zeros.
func hexDigits(r rune) []rune {
	const digits = "0123456789abcdef"
	if r == 0 {
		return []rune{'0'}
	}
	var out []rune
	for v := uint32(r); v > 0; v >>= 4 {
		out = append([]rune{rune(digits[v&0xf])}, out...)
	}
	return out
}

// planText returns the transitions for a whole string. It fails before any
// event is sent if a rune cannot be typed.
func planText(text string, mode UnicodeMode) ([]keyStep, error) {
	var steps []keyStep
	for _, r := range text {
		s, err := planRune(r, mode)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s...)
	}
	return steps, nil
}
