package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"dotphrase/internal/config"
	"dotphrase/internal/logging"
)

func newConfigCmd(a *app) *cobra.Command {
	var (
		showPath bool
		initFile bool
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the config file and DOTPHRASE_*
environment overrides are applied. Secrets are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := a.loader.Path()

			if showPath {
				fmt.Fprintln(out, path)
				return nil
			}
			if initFile {
				_, created, err := config.LoadOrCreate(path)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(out, "Wrote default configuration to %s\n", path)
				} else {
					fmt.Fprintf(out, "%s already exists\n", path)
				}
				return nil
			}

			shown := a.cfg.Clone()
			if shown.Storage.Redis.Password != "" {
				shown.Storage.Redis.Password = logging.Redacted
			}
			fmt.Fprintf(out, "# %s\n", path)
			return toml.NewEncoder(out).Encode(shown)
		},
	}
	cmd.Flags().BoolVar(&showPath, "path", false, "print the config file path only")
	cmd.Flags().BoolVar(&initFile, "init", false, "write a default config file if none exists")
	return cmd
}
