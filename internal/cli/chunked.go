package cli

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/ddbimport/internal/app"
	"github.com/tigerroll/ddbimport/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/ddbimport/pkg/batch/core/job/runner"
	"github.com/tigerroll/ddbimport/pkg/batch/infrastructure/repository/file"
)

func newChunkedCmd(root *rootOptions) *cobra.Command {
	flags := &importFlags{}
	var (
		chunkSize  int
		chunkDir   string
		ledgerFile string
	)

	cmd := &cobra.Command{
		Use:   "chunked",
		Short: "Import a large CSV file chunk by chunk, resuming where the last run stopped",
		Long: `Chunked splits --file into numbered chunk files, then imports every chunk
that the ledger does not list yet, one after another. Run it again after an
interruption or a failed chunk; finished chunks are not written twice.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			flags.applyTo(cfg)
			if chunkSize > 0 {
				cfg.Importer.Batch.ChunkSize = chunkSize
			}
			if chunkDir != "" {
				cfg.Importer.Batch.ChunkDir = chunkDir
			}
			if ledgerFile != "" {
				cfg.Importer.Batch.LedgerFile = ledgerFile
			}

			chunks, err := local.NewDir(cfg.Importer.Batch.ChunkDir, "chunks")
			if err != nil {
				return err
			}
			ledgerPath := cfg.Importer.Batch.LedgerFile
			ledgerStore, err := local.NewDir(filepath.Dir(ledgerPath), "ledger")
			if err != nil {
				return err
			}
			ledger := file.NewLedgerRepository(ledgerStore, filepath.Base(ledgerPath))

			var extra []fx.Option
			if !flags.noMonitor {
				extra = append(extra, app.WithMonitor())
			}
			req := flags.chunkRunRequest()
			return app.Run(cmd.Context(), cfg, func(ctx context.Context, deps app.ImportDeps) error {
				summary, err := runner.NewChunkRunner(deps.Runner, chunks, ledger).Run(ctx, req)
				if summary != nil {
					printChunkSummary(cmd.OutOrStdout(), summary)
				}
				return err
			}, extra...)
		},
	}
	flags.bind(cmd)
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "data rows per chunk file")
	cmd.Flags().StringVar(&chunkDir, "chunk-dir", "", "directory holding the chunk files")
	cmd.Flags().StringVar(&ledgerFile, "ledger", "", "path of the processed-chunks ledger")
	return cmd
}
