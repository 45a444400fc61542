package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vapvarun/fymodules"
	"github.com/vapvarun/fymodules/auth"
	"github.com/vapvarun/fymodules/config"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(opts *rootOptions) *cobra.Command {
	var actor fymodules.Actor
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the module API",
		Long: `Token signs an actor token with the configured secret. Roles are mapped
to capabilities by the server's role configuration; capabilities are
granted directly.`,
		Example: `  fymodules token --id 42 --name "Site Admin" --role administrator`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			svc, err := auth.NewService(auth.Config{
				Secret:   cfg.Auth.Secret,
				Issuer:   cfg.Auth.Issuer,
				TokenTTL: cfg.Auth.TokenTTL,
				NonceTTL: cfg.Auth.NonceTTL,
			})
			if err != nil {
				return err
			}
			token, exp, err := svc.IssueToken(actor)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&actor.ID, "id", "", "actor id")
	cmd.Flags().StringVar(&actor.Name, "name", "", "actor display name")
	cmd.Flags().StringSliceVar(&actor.Roles, "role", nil, "role, repeatable")
	cmd.Flags().StringSliceVar(&actor.Capabilities, "capability", nil, "capability, repeatable")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
