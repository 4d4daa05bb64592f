// Package partitioner splits a CSV input into numbered, header-bearing chunk files.
package partitioner

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	storageAdapter "github.com/tigerroll/ddbimport/pkg/batch/adapter/storage"
	"github.com/tigerroll/ddbimport/pkg/batch/component/step/reader"
	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

const moduleName = "partitioner"

// DefaultChunkSize is the number of data rows per chunk.
const DefaultChunkSize = 100000

// Plan describes the chunks of one input.
type Plan struct {
	Input       string
	TotalRows   int
	TotalChunks int
	// Chunks lists every chunk in sequence order, whether created now or earlier.
	Chunks []model.Chunk
	// Created is the number of chunk files written by this call.
	Created int
}

// CSVPartitioner materializes chunk files into a storage connection.
type CSVPartitioner struct {
	store     storageAdapter.StorageConnection
	chunkSize int
	encoding  string
}

// Option configures a CSVPartitioner.
type Option func(*CSVPartitioner)

// WithChunkSize sets the number of data rows per chunk.
func WithChunkSize(n int) Option {
	return func(p *CSVPartitioner) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithEncoding sets the first encoding tried when reading the input.
func WithEncoding(name string) Option {
	return func(p *CSVPartitioner) {
		p.encoding = name
	}
}

// NewCSVPartitioner creates a partitioner that writes chunks into store.
func NewCSVPartitioner(store storageAdapter.StorageConnection, opts ...Option) *CSVPartitioner {
	p := &CSVPartitioner{store: store, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Partition computes the chunk plan for input and writes every chunk file
// that does not exist yet. When every planned sequence already has a file,
// nothing is written.
//
// An unreadable input, an input without a header and an input without data
// rows are precondition failures; the last also matches exception.ErrNothingToDo.
//
// Parameters:
//
//	ctx: The context for the operation.
//	input: The path of the CSV file to split.
//
// Returns:
//
//	The [Plan] listing every chunk, and an error if counting or writing fails.
func (p *CSVPartitioner) Partition(ctx context.Context, input string) (*Plan, error) {
	rows, err := reader.CountRows(ctx, input, reader.WithEncoding(p.encoding))
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, exception.NewPreconditionError(moduleName, fmt.Sprintf("%s has no data rows; nothing to do", input), exception.ErrNothingToDo)
	}

	total := (rows + p.chunkSize - 1) / p.chunkSize
	plan := &Plan{Input: input, TotalRows: rows, TotalChunks: total, Chunks: make([]model.Chunk, 0, total)}
	for seq := 1; seq <= total; seq++ {
		plan.Chunks = append(plan.Chunks, model.Chunk{
			Sequence: seq,
			RowCount: min(p.chunkSize, rows-(seq-1)*p.chunkSize),
			Path:     p.store.Locate(model.ChunkFileName(seq)),
		})
	}

	existing, err := p.existingChunks(ctx, total)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to list existing chunks", err, false, true)
	}
	if len(existing) == total {
		logger.Infof("Partitioner: %d chunks already exist for %s; skipping chunk creation.", total, input)
		return plan, nil
	}

	logger.Infof("Partitioner: splitting %d rows of %s into %d chunks of up to %d rows (%d already exist).", rows, input, total, p.chunkSize, len(existing))
	created, err := p.materialize(ctx, input, plan, existing)
	plan.Created = created
	if err != nil {
		return plan, err
	}
	logger.Infof("Partitioner: created %d chunk files in %s.", created, p.store.Locate(""))
	return plan, nil
}

// existingChunks returns the sequences in 1..total that already have a chunk
// file. Files left over from a plan with more chunks are ignored.
func (p *CSVPartitioner) existingChunks(ctx context.Context, total int) (map[int]bool, error) {
	existing := make(map[int]bool)
	err := p.store.ListObjects(ctx, "", func(name string) error {
		if seq, ok := model.ParseChunkFileName(name); ok && seq <= total {
			existing[seq] = true
		}
		return nil
	})
	return existing, err
}

// materialize streams the input once, writing each missing chunk and
// skipping over the rows of chunks that already exist.
func (p *CSVPartitioner) materialize(ctx context.Context, input string, plan *Plan, existing map[int]bool) (int, error) {
	r := reader.NewCSVReader(input, reader.WithEncoding(p.encoding))
	if err := r.Open(ctx); err != nil {
		return 0, err
	}
	defer r.Close(ctx)

	created := 0
	for _, chunk := range plan.Chunks {
		if existing[chunk.Sequence] {
			logger.Debugf("Partitioner: %s exists; leaving it untouched.", chunk.ID())
			if err := skipRecords(ctx, r, chunk.RowCount); err != nil {
				return created, err
			}
			continue
		}
		if err := p.writeChunk(ctx, r, chunk); err != nil {
			return created, err
		}
		created++
		logger.Infof("Partitioner: created %s with %d rows.", model.ChunkFileName(chunk.Sequence), chunk.RowCount)
	}
	return created, nil
}

func (p *CSVPartitioner) writeChunk(ctx context.Context, r *reader.CSVReader, chunk model.Chunk) (err error) {
	out, err := p.store.Create(ctx, model.ChunkFileName(chunk.Sequence))
	if err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to create %s", chunk.ID()), err, false, true)
	}
	committed := false
	defer func() {
		if !committed {
			out.Abort()
		}
	}()

	w := csv.NewWriter(out)
	if err := w.Write(r.Header()); err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to write header of %s", chunk.ID()), err, false, true)
	}
	for i := 0; i < chunk.RowCount; i++ {
		record, err := r.ReadRecord(ctx)
		if err != nil {
			return unexpectedEnd(chunk, err)
		}
		if err := w.Write(record); err != nil {
			return exception.NewBatchError(moduleName, fmt.Sprintf("failed to write %s", chunk.ID()), err, false, true)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to flush %s", chunk.ID()), err, false, true)
	}
	committed = true
	if err := out.Close(); err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to commit %s", chunk.ID()), err, false, true)
	}
	return nil
}

func skipRecords(ctx context.Context, r *reader.CSVReader, n int) error {
	for i := 0; i < n; i++ {
		if _, err := r.ReadRecord(ctx); err != nil {
			return err
		}
	}
	return nil
}

func unexpectedEnd(chunk model.Chunk, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return exception.NewBatchError(moduleName, fmt.Sprintf("input ended while writing %s", chunk.ID()), err, false, true)
}
