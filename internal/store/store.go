// Package store persists trigger -> expansion mappings.
//
// Triggers are unique keys; inserting a trigger that already exists fails
// with ErrExists and leaves the stored expansion untouched. The expansion
// side is arbitrary text.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Phrase is one stored mapping.
type Phrase struct {
	Trigger   string    `json:"trigger" yaml:"trigger" toml:"trigger"`
	Expansion string    `json:"expansion" yaml:"expansion" toml:"expansion"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty" toml:"created_at,omitempty"`
}

// Store is the mapping store used by the expansion engine (Lookup) and by
// the management commands (Insert, Delete, List).
type Store interface {
	// Lookup returns the expansion for trigger. ok is false if no mapping exists.
	Lookup(ctx context.Context, trigger string) (expansion string, ok bool, err error)

	// Insert adds a mapping. It returns ErrExists if trigger is already mapped.
	Insert(ctx context.Context, trigger, expansion string) error

	// Put sets the expansion for trigger in one step, adding the mapping if
	// it is absent. Lookups never observe the trigger as missing.
	Put(ctx context.Context, trigger, expansion string) error

	// Delete removes a mapping. It returns ErrNotFound if trigger is not mapped.
	Delete(ctx context.Context, trigger string) error

	// List returns every mapping sorted by trigger.
	List(ctx context.Context) ([]Phrase, error)

	// Close releases the backend.
	Close() error
}

var (
	// ErrExists is returned when inserting a trigger that is already mapped.
	ErrExists = errors.New("trigger already exists")

	// ErrNotFound is returned when deleting a trigger that is not mapped.
	ErrNotFound = errors.New("trigger not found")

	// ErrInvalidTrigger is returned for triggers that do not start with '.'
	// or contain whitespace.
	ErrInvalidTrigger = errors.New("invalid trigger")
)

// ValidateTrigger checks the shape of a trigger: a leading '.', no whitespace.
func ValidateTrigger(trigger string) error {
	if !strings.HasPrefix(trigger, ".") {
		return fmt.Errorf("%w: %q must start with '.'", ErrInvalidTrigger, trigger)
	}
	if strings.IndexFunc(trigger, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q must not contain whitespace", ErrInvalidTrigger, trigger)
	}
	return nil
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	// SQLite
	Path          string
	BusyTimeoutMs int

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	// Sealing key; when non-nil expansions are encrypted at rest.
	SealKey []byte
}

// Open opens the configured backend, wrapped in a Sealed store when a
// sealing key is given.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch opts.Backend {
	case BackendSQLite, "":
		s, err = OpenSQLite(opts.Path, opts.BusyTimeoutMs)
	case BackendRedis:
		s, err = OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, WithKey(opts.RedisKey))
	case BackendMemory:
		s = NewMemory()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if opts.SealKey != nil {
		sealed, err := NewSealed(s, opts.SealKey)
		if err != nil {
			s.Close()
			return nil, err
		}
		return sealed, nil
	}
	return s, nil
}
