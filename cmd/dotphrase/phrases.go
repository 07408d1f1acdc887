package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dotphrase/internal/phrasebook"
	"dotphrase/internal/store"
)

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <trigger> <expansion>",
		Short: "Save a new dot-phrase",
		Long: `Save a new dot-phrase. The trigger must start with '.' and contain no
whitespace. An existing trigger is never overwritten; delete it first.`,
		Example: `  dotphrase add .hi "Hello, world!"
  dotphrase add .sig "$(printf 'Best regards,\nAda')"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger, expansion := args[0], args[1]
			if err := store.ValidateTrigger(trigger); err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s store.Store) error {
				if err := s.Insert(cmd.Context(), trigger, expansion); err != nil {
					if errors.Is(err, store.ErrExists) {
						return fmt.Errorf("%s already exists; delete it first to change it", trigger)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", trigger)
				return nil
			})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved dot-phrases",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s store.Store) error {
				phrases, err := s.List(cmd.Context())
				if err != nil {
					return err
				}
				printPhrases(cmd.OutOrStdout(), phrases)
				return nil
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <trigger>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved dot-phrase",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger := args[0]
			return a.withStore(cmd.Context(), func(s store.Store) error {
				if err := s.Delete(cmd.Context(), trigger); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("%s does not exist", trigger)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", trigger)
				return nil
			})
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import dot-phrases from a TOML, JSON or YAML phrasebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s store.Store) error {
				res, err := phrasebook.ImportFile(cmd.Context(), s, args[0], replace)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %s\n", args[0], res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "overwrite triggers that already exist")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export every dot-phrase to a TOML, JSON or YAML phrasebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s store.Store) error {
				n, err := phrasebook.ExportFile(cmd.Context(), s, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d dot-phrases to %s\n", n, args[0])
				return nil
			})
		},
	}
}

// printPhrases writes a two-column table. Multi-line expansions are shown
// on one line with escaped newlines.
func printPhrases(w io.Writer, phrases []store.Phrase) {
	if len(phrases) == 0 {
		fmt.Fprintln(w, "No dot-phrases saved yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "DOT PHRASE\tREPLACES WITH")
	for _, p := range phrases {
		fmt.Fprintf(tw, "%s\t%s\n", p.Trigger, oneLine(p.Expansion))
	}
	tw.Flush()
}

func oneLine(s string) string {
	return strings.NewReplacer("\n", `\n`, "\t", `\t`).Replace(s)
}
