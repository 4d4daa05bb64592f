package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	chunkFilePrefix = "chunk_"
	chunkFileSuffix = ".csv"
)

// Chunk is one header-bearing partition of an input file.
type Chunk struct {
	// Sequence is the 1-based, gap-free chunk number.
	Sequence int
	// RowCount is the number of data rows, excluding the header.
	RowCount int
	// Path is where the chunk file lives.
	Path string
}

// ID returns the ledger identifier of the chunk, e.g. "chunk_000003".
func (c Chunk) ID() string {
	return ChunkID(c.Sequence)
}

// ChunkID returns the ledger identifier for a sequence number.
func ChunkID(sequence int) string {
	return fmt.Sprintf("%s%06d", chunkFilePrefix, sequence)
}

// ChunkFileName returns the file name for a sequence number. Zero padding
// keeps lexical and numeric order identical.
func ChunkFileName(sequence int) string {
	return ChunkID(sequence) + chunkFileSuffix
}

// ParseChunkFileName extracts the sequence number from a chunk file name.
func ParseChunkFileName(name string) (int, bool) {
	if !strings.HasPrefix(name, chunkFilePrefix) || !strings.HasSuffix(name, chunkFileSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, chunkFilePrefix), chunkFileSuffix)
	seq, err := strconv.Atoi(digits)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

// Row is one CSV record: the header order plus a column to value lookup.
type Row struct {
	Header []string
	Values map[string]string
	// Line is the 1-based data row number within its file.
	Line int
}

// NewRow pairs header names with record values. Missing trailing values are
// treated as absent columns.
func NewRow(header, record []string, line int) Row {
	values := make(map[string]string, len(header))
	for i, name := range header {
		if i < len(record) {
			values[name] = record[i]
		}
	}
	return Row{Header: header, Values: values, Line: line}
}
