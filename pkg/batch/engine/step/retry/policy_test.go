package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	"github.com/tigerroll/ddbimport/pkg/batch/engine/step/retry"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
)

func TestExponentialPolicy_Backoff(t *testing.T) {
	p := retry.NewDefaultRetryPolicyFactory().Create(config.RetryConfig{
		MaxAttempts: 8, InitialInterval: 100, MaxInterval: 5000, Factor: 2,
	})

	assert.Equal(t, 8, p.GetMaxAttempts())
	want := []time.Duration{100, 200, 400, 800, 1600, 3200, 5000, 5000}
	for i, w := range want {
		assert.Equal(t, w*time.Millisecond, p.GetBackoffInterval(i+1), "attempt %d", i+1)
	}
	assert.Equal(t, 100*time.Millisecond, p.GetBackoffInterval(0))
	assert.Equal(t, 5*time.Second, p.GetBackoffInterval(10000), "huge attempts stay capped")
}

func TestExponentialPolicy_ClampsSettings(t *testing.T) {
	p := retry.NewExponentialPolicy(config.RetryConfig{MaxAttempts: 0, InitialInterval: 50, MaxInterval: 10, Factor: 0.5})
	assert.Equal(t, 1, p.GetMaxAttempts())
	assert.Equal(t, 50*time.Millisecond, p.GetBackoffInterval(3))
}

func TestExponentialPolicy_ShouldRetry(t *testing.T) {
	throttled := errors.New("ThrottlingException")
	p := retry.NewExponentialPolicy(config.RetryConfig{MaxAttempts: 3}, func(err error) bool {
		return errors.Is(err, throttled)
	})

	assert.False(t, p.ShouldRetry(nil))
	assert.True(t, p.ShouldRetry(throttled))
	assert.True(t, p.ShouldRetry(exception.NewBatchError("writer", "flaky", nil, true, false)))
	assert.True(t, p.ShouldRetry(errors.New("dial tcp: connection refused")))
	assert.False(t, p.ShouldRetry(errors.New("ValidationException")))
	assert.False(t, p.ShouldRetry(exception.NewPreconditionError("writer", "gone", throttled)))
	assert.False(t, p.ShouldRetry(context.Canceled))
}

func TestWait(t *testing.T) {
	assert.NoError(t, retry.Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, retry.Wait(ctx, time.Hour), context.Canceled)
}
