package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"leadswiper/internal/identity"
)

func newIdentityCommand(ctx *commandContext) *cobra.Command {
	identityCmd := &cobra.Command{
		Use:   "identity",
		Short: "Show or reset this machine's worker identity",
	}

	identityCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the worker id, creating it if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ctx.workerID()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	})

	identityCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Discard the worker id; claims held under it expire on their own",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := identity.Reset(cfg.Paths.IdentityFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", cfg.Paths.IdentityFile)
			return nil
		},
	})

	return identityCmd
}
