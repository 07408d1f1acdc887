package store

import (
	"context"
	"errors"
	"fmt"

	"dotphrase/internal/security"
)

// sealLabel separates the phrase sealing key from other derived keys.
const sealLabel = "phrases"

// Sealed encrypts expansions before they reach the wrapped store. Triggers
// stay in the clear because they are the lookup key.
type Sealed struct {
	inner  Store
	sealer *security.Sealer
}

// NewSealed wraps inner, deriving the sealing key from masterKey.
func NewSealed(inner Store, masterKey []byte) (*Sealed, error) {
	sealer, err := security.NewSealer(masterKey, sealLabel)
	if err != nil {
		return nil, fmt.Errorf("init sealed store: %w", err)
	}
	return &Sealed{inner: inner, sealer: sealer}, nil
}

func (s *Sealed) Lookup(ctx context.Context, trigger string) (string, bool, error) {
	stored, ok, err := s.inner.Lookup(ctx, trigger)
	if err != nil || !ok {
		return "", ok, err
	}
	expansion, err := s.open(stored)
	if err != nil {
		return "", false, fmt.Errorf("open %q: %w", trigger, err)
	}
	return expansion, true, nil
}

func (s *Sealed) Insert(ctx context.Context, trigger, expansion string) error {
	sealed, err := s.sealer.Seal(expansion)
	if err != nil {
		return err
	}
	return s.inner.Insert(ctx, trigger, sealed)
}

func (s *Sealed) Put(ctx context.Context, trigger, expansion string) error {
	sealed, err := s.sealer.Seal(expansion)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, trigger, sealed)
}

func (s *Sealed) Delete(ctx context.Context, trigger string) error {
	return s.inner.Delete(ctx, trigger)
}

func (s *Sealed) List(ctx context.Context) ([]Phrase, error) {
	phrases, err := s.inner.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range phrases {
		expansion, err := s.open(phrases[i].Expansion)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", phrases[i].Trigger, err)
		}
		phrases[i].Expansion = expansion
	}
	return phrases, nil
}

func (s *Sealed) Close() error {
	return s.inner.Close()
}

// open passes through plaintext rows written before sealing was enabled.
func (s *Sealed) open(stored string) (string, error) {
	plain, err := s.sealer.Open(stored)
	if errors.Is(err, security.ErrNotSealed) {
		return stored, nil
	}
	return plain, err
}
