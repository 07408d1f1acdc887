package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "dotphrase",
		Short: "Expand dot-phrases as you type, in any application",
		Long: `dotphrase watches what you type. When you type a '.' followed by a saved
trigger and then a space, it erases the trigger and types the text saved for it.
For example, with ".hi" mapped to "Hello, world!", typing ".hi " produces
"Hello, world!".

Run without a command for the interactive menu.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return newMenu(a, cmd.InOrStdin(), cmd.OutOrStdout()).Run(cmd.Context())
		},
	}

	// Persistent flags (available to all commands)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/dotphrase/config.toml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newStartCmd(a),
		newAddCmd(a),
		newListCmd(a),
		newDeleteCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newMenuCmd(a),
		newConfigCmd(a),
		newDBCmd(a),
		newVersionCmd(),
	)
	return root
}

func newMenuCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive menu for managing and starting dot-phrases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newMenu(a, cmd.InOrStdin(), cmd.OutOrStdout()).Run(cmd.Context())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Skip config loading
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dotphrase %s\n", Version)
		},
	}
}
