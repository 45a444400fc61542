// Package cmd implements the fymodules command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion returns the version line.
func PrintVersion() string {
	return fmt.Sprintf("fymodules v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

type rootOptions struct {
	configPath string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{configPath: os.Getenv("FYMODULES_CONFIG")}

	cmd := &cobra.Command{
		Use:   "fymodules",
		Short: "Manage the optional modules of the Fearless You platform",
		Long: `fymodules serves the module management API and lets operators list,
enable, disable and configure modules from the command line.

Configuration is read from --config (YAML, TOML or JSON) and FYMODULES_*
environment variables.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", opts.configPath, "configuration file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewEnableCommand(opts))
	cmd.AddCommand(NewDisableCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewConfigCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	})

	return cmd
}
