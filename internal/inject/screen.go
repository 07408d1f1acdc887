package inject

import (
	"context"
	"sync"

	"dotphrase/internal/keystroke"
)

// OpKind identifies a recorded injector call.
type OpKind int

const (
	OpPressRelease OpKind = iota
	OpType
)

// Op is one recorded injector call.
type Op struct {
	Kind OpKind
	Key  keystroke.Kind
	Text string
}

// Screen is an Injector that applies edits to an in-memory line of text,
// standing in for the focused application. It records every call and can
// echo the events it generates, tagged synthetic, the way a shared OS event
// channel would.
type Screen struct {
	mu      sync.Mutex
	text    []rune
	ops     []Op
	echo    func(keystroke.Event)
	failErr error
	closed  bool
}

// NewScreen creates an empty screen.
func NewScreen() *Screen {
	return &Screen{}
}

// Echo registers fn to receive every synthetic event the screen generates.
func (s *Screen) Echo(fn func(keystroke.Event)) {
	s.mu.Lock()
	s.echo = fn
	s.mu.Unlock()
}

// FailWith makes every following injector call fail with err. A nil err
// restores normal operation.
func (s *Screen) FailWith(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

// Observe applies a key press made by the user to the screen text.
func (s *Screen) Observe(ev keystroke.Event) {
	if !ev.IsPress() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(ev)
}

func (s *Screen) apply(ev keystroke.Event) {
	switch {
	case ev.Kind == keystroke.KindBackspace:
		if len(s.text) > 0 {
			s.text = s.text[:len(s.text)-1]
		}
	case ev.IsWhitespace(), ev.IsPrintable():
		s.text = append(s.text, ev.Char)
	}
}

// PressRelease applies a named key and records the call.
func (s *Screen) PressRelease(ctx context.Context, key keystroke.Kind) error {
	s.mu.Lock()
	if err := s.check(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.ops = append(s.ops, Op{Kind: OpPressRelease, Key: key})
	ev := keystroke.EventForKind(key, keystroke.SourceSynthetic)
	s.apply(ev)
	echo := s.echo
	s.mu.Unlock()

	if echo != nil {
		echo(ev)
		echo(ev.Released())
	}
	return nil
}

// Type appends text and records the call.
func (s *Screen) Type(ctx context.Context, text string) error {
	s.mu.Lock()
	if err := s.check(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.ops = append(s.ops, Op{Kind: OpType, Text: text})
	events := make([]keystroke.Event, 0, len(text))
	for _, r := range text {
		ev := keystroke.EventForRune(r, keystroke.SourceSynthetic)
		s.apply(ev)
		events = append(events, ev)
	}
	echo := s.echo
	s.mu.Unlock()

	if echo != nil {
		for _, ev := range events {
			echo(ev)
			echo(ev.Released())
		}
	}
	return nil
}

func (s *Screen) check(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.failErr
}

// Close marks the screen closed.
func (s *Screen) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Text returns the current screen contents.
func (s *Screen) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.text)
}

// Ops returns a copy of the recorded calls.
func (s *Screen) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Op(nil), s.ops...)
}

// Backspaces counts recorded backspace presses.
func (s *Screen) Backspaces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, op := range s.ops {
		if op.Kind == OpPressRelease && op.Key == keystroke.KindBackspace {
			n++
		}
	}
	return n
}
