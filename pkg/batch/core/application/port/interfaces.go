// Package port defines the interfaces between the run coordinator and the
// components it drives.
package port

import (
	"context"
)

// ItemReader is the interface for a streaming input.
// O is the type of item to be read.
type ItemReader[O any] interface {
	// Open opens resources. Failure to open is a precondition failure.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   error: An error if opening fails.
	Open(ctx context.Context) error
	// Read reads the next item. Returns io.EOF if no more items are available.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   O: The next item.
	//   error: io.EOF at the end of input, or another error if reading fails.
	Read(ctx context.Context) (O, error)
	// Close closes resources.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   error: An error if closing fails.
	Close(ctx context.Context) error
}

// ItemProcessor transforms one input item into one output item.
// I is the type of input item, O is the type of output item.
type ItemProcessor[I, O any] interface {
	// Process processes an input item and returns an output item.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   item: The input item to be processed.
	//
	// Returns:
	//   O: The processed item.
	//   error: An error if the item is rejected.
	Process(ctx context.Context, item I) (O, error)
}

// ProgressSink receives per-item outcomes from a writer. Implementations
// must be safe for concurrent use.
type ProgressSink interface {
	// RecordSuccess counts n items acknowledged by the store.
	RecordSuccess(n int64)
	// RecordFailure counts n items that were rejected or abandoned.
	RecordFailure(n int64)
}
