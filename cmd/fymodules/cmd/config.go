package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vapvarun/fymodules/config"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Describe the configuration options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := config.Describe(&config.AppConfig{})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tENV\tDEFAULT\tDESCRIPTION")
			for _, d := range docs {
				def := d.Default
				if d.Required {
					def = "(required)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Path, envName(d.Path), def, d.Description)
			}
			return tw.Flush()
		},
	}
}

func envName(path string) string {
	name := strings.ToUpper(strings.NewReplacer(".", "_").Replace(path))
	return config.EnvPrefix + "_" + name
}
