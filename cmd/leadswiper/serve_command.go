package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"leadswiper/internal/config"
	"leadswiper/internal/daemon"
	"leadswiper/internal/logging"
	"leadswiper/internal/queueaccess"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP store gateway for remote reviewers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver == config.DriverRemote {
				return fmt.Errorf("serve needs a local store; store.driver is %q", cfg.Store.Driver)
			}
			if bind != "" {
				cfg.API.Bind = bind
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := ctx.log()
			access, err := queueaccess.Open(runCtx, cfg, logger)
			if err != nil {
				return err
			}

			d, err := daemon.New(cfg, access.Store, logger)
			if err != nil {
				_ = access.Close()
				return err
			}
			defer d.Close()

			if err := d.Start(runCtx); err != nil {
				return err
			}
			status := d.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "Gateway listening on %s (%s store)\n", status.Address, access.Driver)

			<-runCtx.Done()
			logger.Info("leadswiper gateway shutting down", logging.String("address", status.Address))
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override api.bind")
	return cmd
}
