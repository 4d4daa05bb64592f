package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/ddbimport/internal/app"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	flags := &importFlags{}
	var countRows bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import one CSV file into a table",
		Long: `Import streams the rows of --file through the schema mapper and writes the
resulting items to --table in parallel batches. Rows that cannot be mapped
and items that still fail after retries are counted, not fatal.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			flags.applyTo(cfg)

			var extra []fx.Option
			if !flags.noMonitor {
				extra = append(extra, app.WithMonitor())
			}
			req := flags.runRequest(countRows)
			return app.Run(cmd.Context(), cfg, func(ctx context.Context, deps app.ImportDeps) error {
				res, err := deps.Runner.Run(ctx, req)
				if res != nil {
					printRunResult(cmd.OutOrStdout(), res)
				}
				return err
			}, extra...)
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&countRows, "count", true, "count the data rows first so that progress has a total")
	return cmd
}
