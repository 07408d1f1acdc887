package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultBusyTimeoutMs is used when OpenSQLite is given a non-positive timeout.
const DefaultBusyTimeoutMs = 5000

// SQLite is the default Store backend: a single-file database under the
// data directory.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the SQLite database at the given path and
// brings its schema up to date.
func OpenSQLite(path string, busyTimeoutMs int) (*SQLite, error) {
	sc, err := OpenSchema(path, busyTimeoutMs)
	if err != nil {
		return nil, err
	}
	if _, err := sc.Migrate(context.Background()); err != nil {
		sc.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &SQLite{db: sc.db}, nil
}

func openDB(path string, busyTimeoutMs int) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = DefaultBusyTimeoutMs
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Lookup returns the expansion mapped to trigger.
func (s *SQLite) Lookup(ctx context.Context, trigger string) (string, bool, error) {
	var expansion string
	err := s.db.QueryRowContext(ctx,
		`SELECT expansion FROM phrases WHERE trigger = ?`, trigger,
	).Scan(&expansion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lookup phrase: %w", err)
	}
	return expansion, true, nil
}

// Insert adds a new mapping. An existing trigger is left untouched.
func (s *SQLite) Insert(ctx context.Context, trigger, expansion string) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO phrases (trigger, expansion, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(trigger) DO NOTHING`,
		trigger, expansion, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert phrase: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

// Put inserts or overwrites the mapping, keeping the original creation time.
func (s *SQLite) Put(ctx context.Context, trigger, expansion string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO phrases (trigger, expansion, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(trigger) DO UPDATE SET expansion = excluded.expansion`,
		trigger, expansion, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put phrase: %w", err)
	}
	return nil
}

// Delete removes the mapping for trigger.
func (s *SQLite) Delete(ctx context.Context, trigger string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM phrases WHERE trigger = ?`, trigger)
	if err != nil {
		return fmt.Errorf("delete phrase: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every mapping ordered by trigger.
func (s *SQLite) List(ctx context.Context) ([]Phrase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trigger, expansion, created_at FROM phrases ORDER BY trigger`)
	if err != nil {
		return nil, fmt.Errorf("list phrases: %w", err)
	}
	defer rows.Close()

	var phrases []Phrase
	for rows.Next() {
		var (
			p         Phrase
			createdNs int64
		)
		if err := rows.Scan(&p.Trigger, &p.Expansion, &createdNs); err != nil {
			return nil, fmt.Errorf("scan phrase: %w", err)
		}
		if createdNs > 0 {
			p.CreatedAt = time.Unix(0, createdNs)
		}
		phrases = append(phrases, p)
	}
	return phrases, rows.Err()
}
