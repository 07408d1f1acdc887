package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Migration is one versioned change to the phrases schema. Down is empty
// for changes that cannot be undone without losing mappings.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "phrases table",
		Up: `
CREATE TABLE IF NOT EXISTS phrases (
    trigger     TEXT PRIMARY KEY NOT NULL,
    expansion   TEXT NOT NULL
);`,
	},
	{
		Version:     2,
		Description: "phrase creation time",
		Up: `
ALTER TABLE phrases ADD COLUMN created_at INTEGER NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS idx_phrases_created ON phrases(created_at);`,
		Down: `
DROP INDEX IF EXISTS idx_phrases_created;
ALTER TABLE phrases DROP COLUMN created_at;`,
	},
}

// LatestVersion is the schema version this build writes.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

var (
	// ErrIrreversible is returned when rolling back would drop stored mappings.
	ErrIrreversible = errors.New("migration cannot be rolled back without losing phrases")

	// ErrNewerSchema is returned when the database was written by a newer build.
	ErrNewerSchema = errors.New("database schema is newer than this build")
)

// AppliedMigration is a recorded schema_migrations row.
type AppliedMigration struct {
	Version     int
	Description string
	AppliedAt   time.Time
}

// MigrationStatus describes the schema of one phrases database.
type MigrationStatus struct {
	Applied []AppliedMigration
	Pending []Migration
}

// Current is the newest applied version, or 0 for an empty database.
func (s MigrationStatus) Current() int {
	if len(s.Applied) == 0 {
		return 0
	}
	return s.Applied[len(s.Applied)-1].Version
}

// Schema inspects and changes the schema of a phrases database without
// migrating it on open. The "db" command uses it; OpenSQLite migrates
// through it before serving phrases.
type Schema struct {
	db *sql.DB
}

// OpenSchema opens the database at path for schema maintenance.
func OpenSchema(path string, busyTimeoutMs int) (*Schema, error) {
	db, err := openDB(path, busyTimeoutMs)
	if err != nil {
		return nil, err
	}
	sc := &Schema{db: db}
	if err := sc.ensureTable(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return sc, nil
}

// Close closes the database.
func (sc *Schema) Close() error {
	return sc.db.Close()
}

func (sc *Schema) ensureTable(ctx context.Context) error {
	_, err := sc.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

// Status lists applied and pending migrations.
func (sc *Schema) Status(ctx context.Context) (MigrationStatus, error) {
	var st MigrationStatus
	rows, err := sc.db.QueryContext(ctx,
		`SELECT version, COALESCE(description, ''), applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return st, fmt.Errorf("read migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m  AppliedMigration
			ns int64
		)
		if err := rows.Scan(&m.Version, &m.Description, &ns); err != nil {
			return st, fmt.Errorf("scan migration: %w", err)
		}
		m.AppliedAt = time.Unix(0, ns)
		st.Applied = append(st.Applied, m)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	current := st.Current()
	for _, m := range migrations {
		if m.Version > current {
			st.Pending = append(st.Pending, m)
		}
	}
	return st, nil
}

// Migrate applies every pending migration, each in its own transaction,
// and returns the ones it applied.
func (sc *Schema) Migrate(ctx context.Context) ([]Migration, error) {
	st, err := sc.Status(ctx)
	if err != nil {
		return nil, err
	}
	if st.Current() > LatestVersion() {
		return nil, fmt.Errorf("%w: version %d, this build knows %d", ErrNewerSchema, st.Current(), LatestVersion())
	}

	var applied []Migration
	for _, m := range st.Pending {
		err := sc.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)`,
				m.Version, time.Now().UnixNano(), m.Description)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		applied = append(applied, m)
	}
	return applied, nil
}

// Rollback reverts the newest applied migration and returns it. The
// initial schema is never rolled back.
func (sc *Schema) Rollback(ctx context.Context) (Migration, error) {
	st, err := sc.Status(ctx)
	if err != nil {
		return Migration{}, err
	}
	current := st.Current()
	if current == 0 {
		return Migration{}, errors.New("no migrations applied")
	}

	var m Migration
	for _, candidate := range migrations {
		if candidate.Version == current {
			m = candidate
		}
	}
	if m.Version == 0 {
		return Migration{}, fmt.Errorf("%w: version %d", ErrNewerSchema, current)
	}
	if m.Down == "" {
		return Migration{}, fmt.Errorf("%w: %d (%s)", ErrIrreversible, m.Version, m.Description)
	}

	err = sc.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.Down); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, m.Version)
		return err
	})
	if err != nil {
		return Migration{}, fmt.Errorf("roll back migration %d: %w", m.Version, err)
	}
	return m, nil
}

func (sc *Schema) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := sc.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
