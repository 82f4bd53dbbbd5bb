package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"leadswiper/internal/preflight"
	"leadswiper/internal/queueaccess"
)

const doctorLabelWidth = 18

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check paths, identity, lease timing, and store connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var results []preflight.Result
			access, openErr := queueaccess.Open(cmd.Context(), cfg, ctx.log())
			if openErr == nil {
				defer access.Close()
				results = preflight.RunAll(cmd.Context(), cfg, access.Store, nil)
			} else {
				results = preflight.RunAll(cmd.Context(), cfg, nil, openErr)
			}

			out := cmd.OutOrStdout()
			color := shouldColorize(out)
			for _, r := range results {
				label, tint := "OK", ansiGreen
				if !r.Passed {
					label, tint = "ERROR", ansiRed
				}
				line := fmt.Sprintf("  %-*s [%s] %s", doctorLabelWidth, r.Name+":", label, r.Detail)
				fmt.Fprintln(out, colorize(line, tint, color))
			}
			if preflight.Failed(results) {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}
