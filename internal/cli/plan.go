package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tigerroll/ddbimport/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/ddbimport/pkg/batch/component/partitioner"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
)

func newPlanCmd(root *rootOptions) *cobra.Command {
	var (
		input     string
		chunkSize int
		chunkDir  string
		encoding  string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Split a CSV file into chunk files without importing anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if chunkSize > 0 {
				cfg.Importer.Batch.ChunkSize = chunkSize
			}
			if chunkDir != "" {
				cfg.Importer.Batch.ChunkDir = chunkDir
			}
			if encoding != "" {
				cfg.Importer.Batch.Encoding = encoding
			}

			store, err := local.NewDir(cfg.Importer.Batch.ChunkDir, "chunks")
			if err != nil {
				return err
			}
			plan, err := partitioner.NewCSVPartitioner(store,
				partitioner.WithChunkSize(cfg.Importer.Batch.ChunkSize),
				partitioner.WithEncoding(cfg.Importer.Batch.Encoding),
			).Partition(cmd.Context(), input)
			if errors.Is(err, exception.ErrNothingToDo) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no data rows; no chunks planned.\n", input)
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d rows in %d chunks of up to %d rows (%d created)\n",
				plan.Input, plan.TotalRows, plan.TotalChunks, cfg.Importer.Batch.ChunkSize, plan.Created)
			for _, chunk := range plan.Chunks {
				fmt.Fprintf(out, "  %s\t%d rows\n", chunk.Path, chunk.RowCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "file", "", "CSV file to split (required)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "data rows per chunk file")
	cmd.Flags().StringVar(&chunkDir, "chunk-dir", "", "directory holding the chunk files")
	cmd.Flags().StringVar(&encoding, "encoding", "", "first encoding tried for the CSV")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
