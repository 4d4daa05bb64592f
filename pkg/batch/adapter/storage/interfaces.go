// Package storage defines the object storage abstraction used for chunk files,
// the chunk ledger and progress snapshots. Objects are addressed by a
// slash-separated name relative to the storage root.
package storage

import (
	"context"
	"errors"
	"io"

	coreAdapter "github.com/tigerroll/ddbimport/pkg/batch/core/adapter"
)

// ErrObjectNotFound is returned by Download when the object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectWriter is a pending object. Close publishes it; Abort discards it.
type ObjectWriter interface {
	io.WriteCloser
	Abort()
}

// StorageExecutor defines the object operations.
type StorageExecutor interface {
	// Upload stores data under objectName. Readers never observe a partially
	// written object.
	Upload(ctx context.Context, objectName string, data io.Reader) error
	// Create returns a writer whose content becomes visible under objectName
	// only when Close succeeds.
	Create(ctx context.Context, objectName string) (ObjectWriter, error)
	// Download opens objectName for reading. The caller closes the reader.
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)
	// Exists reports whether objectName is present.
	Exists(ctx context.Context, objectName string) (bool, error)
	// ListObjects calls fn for every object whose name starts with prefix,
	// in lexical order.
	ListObjects(ctx context.Context, prefix string, fn func(objectName string) error) error
	// DeleteObject removes objectName. A missing object is not an error.
	DeleteObject(ctx context.Context, objectName string) error
}

// StorageConnection is a named storage root.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor

	// Locate returns a human-readable location of objectName, such as a file path.
	Locate(objectName string) string
}
