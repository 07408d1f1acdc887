package keystroke

import (
	"context"
	"sync"
)

// Simulated is a Source for testing that doesn't hook the real keyboard.
type Simulated struct {
	baseSource
	sendMu sync.RWMutex
	ch     chan Event
}

// NewSimulated creates a simulated source.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Start begins the simulated source.
func (s *Simulated) Start(ctx context.Context) (<-chan Event, error) {
	runCtx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	ch := make(chan Event, 4096)

	s.sendMu.Lock()
	s.ch = ch
	s.sendMu.Unlock()

	go func() {
		<-runCtx.Done()
		s.sendMu.Lock()
		if s.ch == ch {
			close(ch)
			s.ch = nil
		}
		s.sendMu.Unlock()
	}()
	return ch, nil
}

// Stop stops the simulated source.
func (s *Simulated) Stop() error {
	s.end()
	return nil
}

// Available returns true (simulated is always available).
func (s *Simulated) Available() (bool, string) {
	return true, "simulated source (for testing)"
}

// Emit delivers ev to the consumer. It returns false if the source is not running.
func (s *Simulated) Emit(ev Event) bool {
	s.mu.RLock()
	ctx := s.ctx
	running := s.running
	s.mu.RUnlock()
	if !running {
		return false
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.ch == nil {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Type simulates a press and release for every rune of text.
func (s *Simulated) Type(text string) {
	for _, r := range text {
		ev := EventForRune(r, SourceHardware)
		s.Emit(ev)
		s.Emit(ev.Released())
	}
}

// Press simulates a press and release of a named key.
func (s *Simulated) Press(kind Kind) {
	ev := EventForKind(kind, SourceHardware)
	s.Emit(ev)
	s.Emit(ev.Released())
}
