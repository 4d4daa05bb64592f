// Package reader provides the CSV input reader.
package reader

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/tigerroll/ddbimport/pkg/batch/core/application/port"
	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

const (
	moduleName = "reader"

	// EncodingUTF8SIG is UTF-8 with an optional byte order mark removed.
	EncodingUTF8SIG = "utf-8-sig"
	EncodingUTF8    = "utf-8"
	EncodingLatin1  = "latin-1"
	EncodingCP1252  = "cp1252"

	// sniffSize is how much of the input is checked for valid UTF-8 before
	// the first row is produced. Later invalid bytes fail the read.
	sniffSize = 64 * 1024
)

var fallbackEncodings = []string{EncodingUTF8SIG, EncodingLatin1, EncodingCP1252}

// lookupEncoding returns the decoder for name, or nil for an unknown name.
func lookupEncoding(name string) (encoding.Encoding, bool) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", EncodingUTF8SIG, "utf8-sig":
		return unicode.UTF8BOM, true
	case EncodingUTF8, "utf8":
		return unicode.UTF8, true
	case EncodingLatin1, "latin1", "iso-8859-1":
		return charmap.ISO8859_1, true
	case EncodingCP1252, "windows-1252":
		return charmap.Windows1252, true
	}
	return nil, false
}

func isUTF8(name string) bool {
	enc, ok := lookupEncoding(name)
	return ok && (enc == unicode.UTF8BOM || enc == unicode.UTF8)
}

// CSVReader streams model.Row values from a CSV file whose first record is
// the header. It is not safe for concurrent use.
type CSVReader struct {
	path      string
	encodings []string

	file     *os.File
	csv      *csv.Reader
	header   []string
	line     int
	encoding string
}

// Option configures a CSVReader.
type Option func(*CSVReader)

// WithEncoding sets the first encoding to try. The remaining fallbacks are
// still attempted if the input is not valid in it.
func WithEncoding(name string) Option {
	return func(r *CSVReader) {
		if name == "" {
			return
		}
		ordered := []string{name}
		for _, e := range fallbackEncodings {
			if !strings.EqualFold(e, name) {
				ordered = append(ordered, e)
			}
		}
		r.encodings = ordered
	}
}

// NewCSVReader creates a reader for path.
//
// Parameters:
//
//	path: The CSV file to read.
//	opts: Options such as [WithEncoding].
//
// Returns:
//
//	A new [CSVReader]; nothing is opened until [CSVReader.Open].
func NewCSVReader(path string, opts ...Option) *CSVReader {
	r := &CSVReader{path: path, encodings: fallbackEncodings}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ port.ItemReader[model.Row] = (*CSVReader)(nil)

// Open opens the file, selects an encoding and reads the header. Every
// failure is a precondition error.
func (r *CSVReader) Open(ctx context.Context) error {
	file, err := os.Open(r.path)
	if err != nil {
		return exception.NewPreconditionError(moduleName, fmt.Sprintf("cannot open input file %s", r.path), err)
	}

	name, err := r.selectEncoding(file)
	if err != nil {
		file.Close()
		return err
	}
	enc, _ := lookupEncoding(name)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return exception.NewPreconditionError(moduleName, fmt.Sprintf("cannot rewind input file %s", r.path), err)
	}

	var decoder transform.Transformer = enc.NewDecoder()
	if isUTF8(name) {
		// The UTF-8 decoders substitute U+FFFD for bad bytes; validate first.
		decoder = transform.Chain(encoding.UTF8Validator, decoder)
	}
	cr := csv.NewReader(transform.NewReader(bufio.NewReader(file), decoder))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		file.Close()
		if errors.Is(err, io.EOF) {
			return exception.NewPreconditionError(moduleName, fmt.Sprintf("input file %s is empty", r.path), nil)
		}
		return exception.NewPreconditionError(moduleName, fmt.Sprintf("cannot read header of %s", r.path), err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	r.file = file
	r.csv = cr
	r.header = header
	r.line = 0
	r.encoding = name
	logger.Debugf("CSVReader: opened %s as %s with %d columns.", r.path, name, len(header))
	return nil
}

// selectEncoding returns the first candidate encoding the start of the file
// is valid in. Single-byte encodings accept any input.
func (r *CSVReader) selectEncoding(file *os.File) (string, error) {
	sample := make([]byte, sniffSize)
	n, err := io.ReadFull(file, sample)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", exception.NewPreconditionError(moduleName, fmt.Sprintf("cannot read input file %s", r.path), err)
	}
	sample = sample[:n]
	truncated := n == sniffSize

	for _, name := range r.encodings {
		if _, ok := lookupEncoding(name); !ok {
			return "", exception.NewPreconditionError(moduleName, fmt.Sprintf("unsupported encoding %q", name), nil)
		}
		if isUTF8(name) && !validUTF8(sample, truncated) {
			logger.Warnf("CSVReader: %s is not valid %s, trying the next encoding.", r.path, name)
			continue
		}
		return name, nil
	}
	return "", exception.NewPreconditionError(moduleName, fmt.Sprintf("input file %s matches none of the encodings %v", r.path, r.encodings), nil)
}

// validUTF8 checks sample, ignoring a rune cut off at the end of a truncated sample.
func validUTF8(sample []byte, truncated bool) bool {
	if truncated {
		for i := 1; i < utf8.UTFMax && i <= len(sample); i++ {
			if utf8.RuneStart(sample[len(sample)-i]) {
				if !utf8.FullRune(sample[len(sample)-i:]) {
					sample = sample[:len(sample)-i]
				}
				break
			}
		}
	}
	return utf8.Valid(sample)
}

// Header returns the header columns. It is valid after Open.
func (r *CSVReader) Header() []string {
	return r.header
}

// Encoding returns the encoding chosen by Open.
func (r *CSVReader) Encoding() string {
	return r.encoding
}

// Read returns the next data row, or io.EOF.
func (r *CSVReader) Read(ctx context.Context) (model.Row, error) {
	record, err := r.ReadRecord(ctx)
	if err != nil {
		return model.Row{}, err
	}
	return model.NewRow(r.header, record, r.line), nil
}

// ReadRecord returns the next raw data record, or io.EOF. Blank records are skipped.
func (r *CSVReader) ReadRecord(ctx context.Context) ([]string, error) {
	if r.csv == nil {
		return nil, exception.NewBatchErrorf(moduleName, "CSVReader '%s': reader not opened or already closed", r.path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for {
		record, err := r.csv.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			if errors.Is(err, encoding.ErrInvalidUTF8) {
				return nil, exception.NewBatchError(moduleName, fmt.Sprintf("%s is not valid %s at data row %d", r.path, r.encoding, r.line+1), err, false, false)
			}
			return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to parse %s after row %d", r.path, r.line), err, false, false)
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}
		r.line++
		return record, nil
	}
}

// Close closes the underlying file.
func (r *CSVReader) Close(ctx context.Context) error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.csv = nil
	if err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to close %s", r.path), err, false, false)
	}
	return nil
}

// CountRows returns the number of data rows in path, excluding the header.
func CountRows(ctx context.Context, path string, opts ...Option) (int, error) {
	r := NewCSVReader(path, opts...)
	if err := r.Open(ctx); err != nil {
		return 0, err
	}
	defer r.Close(ctx)

	count := 0
	for {
		if _, err := r.ReadRecord(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, err
		}
		count++
	}
}
