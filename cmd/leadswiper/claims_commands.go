package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"leadswiper/internal/api"
	"leadswiper/internal/queueaccess"
)

func newClaimsCommand(ctx *commandContext) *cobra.Command {
	claimsCmd := &cobra.Command{
		Use:   "claims",
		Short: "Inspect and release lead claims",
	}
	claimsCmd.AddCommand(newClaimsListCommand(ctx))
	claimsCmd.AddCommand(newClaimsReleaseCommand(ctx))
	return claimsCmd
}

func newClaimsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			return ctx.withStore(cmd.Context(), func(access *queueaccess.Session) error {
				now := time.Now()
				claims, err := access.Store.ActiveClaims(cmd.Context(), now.Add(-cfg.LeaseDuration()))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.ClaimListResponse{Claims: api.FromClaims(claims)})
				}
				if len(claims) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No live claims")
					return nil
				}
				self, _ := ctx.workerID()
				rows := make([][]string, 0, len(claims))
				for _, claim := range claims {
					worker := claim.Worker
					if worker == self {
						worker += " (you)"
					}
					claimedAt := claim.ClaimedAt
					expires := claimedAt.Add(cfg.LeaseDuration()).Sub(now).Round(time.Second)
					rows = append(rows, []string{claim.LeadID, claim.Username, worker, formatAge(now, &claimedAt), expires.String()})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Lead", "User", "Worker", "Held", "Expires In"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newClaimsReleaseCommand(ctx *commandContext) *cobra.Command {
	var worker string
	cmd := &cobra.Command{
		Use:   "release [id...]",
		Short: "Release claims held by a worker (all of them when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if worker == "" {
				id, err := ctx.workerID()
				if err != nil {
					return err
				}
				worker = id
			}
			return ctx.withStore(cmd.Context(), func(access *queueaccess.Session) error {
				released, err := access.Store.ReleaseClaims(cmd.Context(), worker, args)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Released %d claim(s) held by %s\n", released, worker)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&worker, "worker", "", "Worker id (defaults to this machine's identity)")
	return cmd
}
