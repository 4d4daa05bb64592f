package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tigerroll/ddbimport/internal/app"
	"github.com/tigerroll/ddbimport/pkg/batch/infrastructure/monitor"
)

func newMonitorCmd(root *rootOptions) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve the progress dashboard and JSON feed of all jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Importer.Monitor.Address = address
			}
			return app.Run(cmd.Context(), cfg, func(ctx context.Context, deps app.MonitorDeps) error {
				return deps.Server.Run(ctx)
			}, monitor.Module)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "listen address, e.g. :5000")
	return cmd
}
