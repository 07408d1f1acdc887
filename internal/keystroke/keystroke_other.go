//go:build !linux

package keystroke

import (
	"context"
)

// StubSource is used on unsupported platforms.
type StubSource struct{}

func newPlatformSource(opts Options) Source {
	return &StubSource{}
}

// Available returns false on unsupported platforms.
func (s *StubSource) Available() (bool, string) {
	return false, "keyboard input not implemented for this platform"
}

// Start returns an error on unsupported platforms.
func (s *StubSource) Start(ctx context.Context) (<-chan Event, error) {
	return nil, ErrNotAvailable
}

// Stop is a no-op on unsupported platforms.
func (s *StubSource) Stop() error {
	return nil
}
