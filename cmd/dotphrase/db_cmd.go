package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dotphrase/internal/config"
	"dotphrase/internal/security"
	"dotphrase/internal/store"
)

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect or change the SQLite phrase database schema",
		Long: `Schema maintenance for the sqlite storage backend. The database is
migrated automatically whenever dotphrase opens it; rollback lets an older
build read it again.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending schema migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withSchema(func(sc *store.Schema) error {
					st, err := sc.Status(cmd.Context())
					if err != nil {
						return err
					}
					printSchemaStatus(cmd.OutOrStdout(), a.cfg.Storage.Path, st)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending schema migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withSchema(func(sc *store.Schema) error {
					applied, err := sc.Migrate(cmd.Context())
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					if len(applied) == 0 {
						fmt.Fprintln(out, "Schema is up to date.")
					}
					for _, m := range applied {
						fmt.Fprintf(out, "Applied %d: %s\n", m.Version, m.Description)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "rollback",
			Short: "Revert the newest schema migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				// A listening session holds the database open
				lock, err := security.AcquireLock(config.LockPath())
				if err != nil {
					if errors.Is(err, security.ErrLocked) {
						return fmt.Errorf("stop the listening session first: %w", err)
					}
					return err
				}
				defer lock.Release()

				return a.withSchema(func(sc *store.Schema) error {
					m, err := sc.Rollback(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d: %s\n", m.Version, m.Description)
					return nil
				})
			},
		},
	)
	return cmd
}

// withSchema opens the configured SQLite database for schema work.
func (a *app) withSchema(fn func(*store.Schema) error) error {
	cfg := a.cfg.Storage
	if cfg.Backend != store.BackendSQLite {
		return fmt.Errorf("schema migrations apply to the sqlite backend only (configured: %s)", cfg.Backend)
	}
	sc, err := store.OpenSchema(cfg.Path, cfg.BusyTimeoutMs)
	if err != nil {
		return err
	}
	defer sc.Close()
	return fn(sc)
}

func printSchemaStatus(w io.Writer, path string, st store.MigrationStatus) {
	fmt.Fprintf(w, "Database: %s\n", path)
	fmt.Fprintf(w, "Schema version: %d of %d\n\n", st.Current(), store.LatestVersion())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tDESCRIPTION")
	for _, m := range st.Applied {
		fmt.Fprintf(tw, "%d\tapplied %s\t%s\n", m.Version, m.AppliedAt.Format("2006-01-02 15:04"), m.Description)
	}
	for _, m := range st.Pending {
		fmt.Fprintf(tw, "%d\tpending\t%s\n", m.Version, m.Description)
	}
	tw.Flush()
}
