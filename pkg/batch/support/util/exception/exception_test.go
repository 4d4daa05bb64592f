package exception_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"

	"github.com/stretchr/testify/assert"
)

func TestNewBatchError(t *testing.T) {
	originalErr := errors.New("connection reset by peer")
	be := exception.NewBatchError("writer", "batch submission failed", originalErr, true, false)

	assert.Equal(t, "writer", be.Module)
	assert.Equal(t, "batch submission failed", be.Message)
	assert.Equal(t, originalErr, be.Unwrap())
	assert.True(t, be.IsRetryable())
	assert.False(t, be.IsFatal())
	assert.Equal(t, "[writer] batch submission failed: connection reset by peer", be.Error())
}

func TestNewBatchErrorf(t *testing.T) {
	be := exception.NewBatchErrorf("schema", "field %q has unknown type %s", "Rating", "X")
	assert.Nil(t, be.Unwrap())
	assert.Equal(t, "[schema] field \"Rating\" has unknown type X", be.Error())

	cause := errors.New("boom")
	be = exception.NewBatchErrorf("reader", "cannot open %s", "data.csv", cause)
	assert.Equal(t, cause, be.Unwrap())
	assert.Equal(t, "cannot open data.csv", be.Message)

	// An error consumed by a verb stays a format argument.
	be = exception.NewBatchErrorf("reader", "failure: %v", cause)
	assert.Nil(t, be.Unwrap())
	assert.Equal(t, "failure: boom", be.Message)
}

func TestPreconditionClassification(t *testing.T) {
	cause := errors.New("no such file")
	err := exception.NewPreconditionError("partitioner", "cannot open input", cause)

	assert.True(t, exception.IsPrecondition(err))
	assert.True(t, exception.IsFatal(err))
	assert.False(t, exception.IsRetryable(err))
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("run failed: %w", err)
	assert.True(t, exception.IsPrecondition(wrapped))
	assert.Equal(t, "cannot open input", exception.ExtractErrorMessage(wrapped))

	assert.False(t, exception.IsPrecondition(errors.New("plain")))
	assert.False(t, exception.IsPrecondition(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, exception.IsRetryable(nil))
	assert.False(t, exception.IsRetryable(context.Canceled))
	assert.False(t, exception.IsRetryable(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.True(t, exception.IsRetryable(errors.New("dial tcp: i/o timeout")))
	assert.True(t, exception.IsRetryable(exception.NewBatchError("writer", "throttled", nil, true, false)))
	assert.False(t, exception.IsRetryable(exception.NewBatchError("writer", "validation", nil, false, false)))
	assert.False(t, exception.IsRetryable(errors.New("ValidationException")))
}
