package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	config "github.com/tigerroll/ddbimport/pkg/batch/core/config"
	"github.com/tigerroll/ddbimport/pkg/batch/core/job/runner"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

// importFlags are the flags of the import and chunked commands.
type importFlags struct {
	table      string
	file       string
	schemaPath string
	hashKey    string
	rangeKey   string
	batchSize  int
	workers    int
	region     string
	profile    string
	endpoint   string
	jobID      string
	encoding   string
	noMonitor  bool
}

func (f *importFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.table, "table", "", "target DynamoDB table (required)")
	flags.StringVar(&f.file, "file", "", "CSV file to import (required)")
	flags.StringVar(&f.schemaPath, "schema", "", "YAML or JSON schema file mapping CSV columns to attributes")
	flags.StringVar(&f.hashKey, "hash-key", "", "hash key attribute; overrides the schema")
	flags.StringVar(&f.rangeKey, "range-key", "", "range key attribute; overrides the schema")
	flags.IntVar(&f.batchSize, "batch-size", 0, "items per BatchWriteItem call, capped at 25")
	flags.IntVar(&f.workers, "workers", 0, "number of concurrent batch writers")
	flags.StringVar(&f.region, "region", "", "AWS region")
	flags.StringVar(&f.profile, "profile", "", "AWS shared config profile")
	flags.StringVar(&f.endpoint, "endpoint", "", "DynamoDB endpoint override, e.g. http://localhost:8000")
	flags.StringVar(&f.jobID, "job-id", "", "job id of the progress snapshot (generated when empty)")
	flags.StringVar(&f.encoding, "encoding", "", "first encoding tried for the CSV: utf-8-sig, utf-8, latin-1 or cp1252")
	flags.BoolVar(&f.noMonitor, "no-monitor", false, "do not serve the progress feed during the import")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("file")
}

// applyTo lets the flags win over the loaded configuration.
func (f *importFlags) applyTo(cfg *config.Config) {
	if f.region != "" {
		cfg.Importer.AWS.Region = f.region
	}
	if f.profile != "" {
		cfg.Importer.AWS.Profile = f.profile
	}
	if f.endpoint != "" {
		cfg.Importer.AWS.Endpoint = f.endpoint
	}
	if f.batchSize > 0 {
		cfg.Importer.Batch.BatchSize = f.batchSize
	}
	if f.workers > 0 {
		cfg.Importer.Batch.Workers = f.workers
	}
	if f.encoding != "" {
		cfg.Importer.Batch.Encoding = f.encoding
	}
}

func (f *importFlags) runRequest(countRows bool) runner.RunRequest {
	return runner.RunRequest{
		JobID:      f.jobID,
		Table:      f.table,
		File:       f.file,
		SchemaPath: f.schemaPath,
		HashKey:    f.hashKey,
		RangeKey:   f.rangeKey,
		BatchSize:  f.batchSize,
		Workers:    f.workers,
		Encoding:   f.encoding,
		CountRows:  countRows,
	}
}

func (f *importFlags) chunkRunRequest() runner.ChunkRunRequest {
	return runner.ChunkRunRequest{
		JobID:      f.jobID,
		Table:      f.table,
		File:       f.file,
		SchemaPath: f.schemaPath,
		HashKey:    f.hashKey,
		RangeKey:   f.rangeKey,
		BatchSize:  f.batchSize,
		Workers:    f.workers,
		Encoding:   f.encoding,
	}
}

func applyLogLevel(cfg *config.Config) {
	logger.SetLogLevel(cfg.Importer.System.Logging.Level)
}

func printRunResult(w io.Writer, res *runner.RunResult) {
	fmt.Fprintf(w, "Job %s: %s\n", res.JobID, res.State)
	if p := res.Progress; p != nil {
		fmt.Fprintf(w, "  processed: %d\n  failed:    %d\n  progress:  %.2f%%\n", p.ProcessedItems, p.FailedItems, p.ProgressPercentage)
	}
	fmt.Fprintf(w, "  rejected rows: %d\n  batch calls:   %d\n  retries:       %d\n  duration:      %s\n",
		res.Rejected, res.Write.Calls, res.Write.Retries, res.Duration.Round(time.Millisecond))
}

func printChunkSummary(w io.Writer, s *runner.ChunkSummary) {
	fmt.Fprintf(w, "Job %s: %d rows in %d chunks (%d created, %d already processed)\n",
		s.JobID, s.TotalRows, s.TotalChunks, s.CreatedChunks, s.AlreadyProcessed)
	fmt.Fprintf(w, "  completed chunks: %d\n  failed chunks:    %d\n  processed items:  %d\n  failed items:     %d\n",
		len(s.Completed), len(s.Failed), s.ItemsProcessed, s.ItemsFailed)
	for _, id := range s.Failed {
		fmt.Fprintf(w, "  - %s will be retried on the next run\n", id)
	}
}
