// Package retry provides the bounded exponential backoff policy shared by
// item-level and batch-level retries.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
)

// RetryPolicy is an interface that defines retry logic.
// This interface provides methods to determine if a specific error is retryable,
// and to determine the backoff interval between retries.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	// err: The error to evaluate.
	// Returns: true if the error is retryable, false otherwise.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait before attempt+1, given that attempt
	// (starting from 1) has just failed.
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the maximum number of attempts, the first one included.
	GetMaxAttempts() int
}

// Classifier decides whether an error is transient.
type Classifier func(err error) bool

// DefaultRetryPolicyFactory is a factory for creating RetryPolicy.
type DefaultRetryPolicyFactory struct{}

// NewDefaultRetryPolicyFactory creates a new DefaultRetryPolicyFactory.
func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create creates an exponential RetryPolicy from cfg. Errors are retryable
// when any of classifiers accepts them; exception.IsRetryable is always consulted.
func (f *DefaultRetryPolicyFactory) Create(cfg config.RetryConfig, classifiers ...Classifier) RetryPolicy {
	return NewExponentialPolicy(cfg, classifiers...)
}

// ExponentialPolicy waits min(initial * factor^(attempt-1), max) between attempts.
type ExponentialPolicy struct {
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	factor          float64
	classifiers     []Classifier
}

// NewExponentialPolicy creates an ExponentialPolicy. Out-of-range settings
// are clamped: at least one attempt, a factor of at least 1 and a ceiling no
// lower than the initial interval.
func NewExponentialPolicy(cfg config.RetryConfig, classifiers ...Classifier) *ExponentialPolicy {
	p := &ExponentialPolicy{
		maxAttempts:     max(cfg.MaxAttempts, 1),
		initialInterval: time.Duration(max(cfg.InitialInterval, 0)) * time.Millisecond,
		maxInterval:     time.Duration(max(cfg.MaxInterval, 0)) * time.Millisecond,
		factor:          math.Max(cfg.Factor, 1),
		classifiers:     classifiers,
	}
	if p.maxInterval < p.initialInterval {
		p.maxInterval = p.initialInterval
	}
	return p
}

// GetMaxAttempts returns the maximum number of attempts.
func (p *ExponentialPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry reports whether err is transient. Context errors never are.
func (p *ExponentialPolicy) ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if exception.IsRetryable(err) {
		return true
	}
	if exception.IsFatal(err) {
		return false
	}
	for _, classify := range p.classifiers {
		if classify(err) {
			return true
		}
	}
	return false
}

// GetBackoffInterval returns the capped exponential delay for attempt.
func (p *ExponentialPolicy) GetBackoffInterval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.initialInterval) * math.Pow(p.factor, float64(attempt-1))
	if delay >= float64(p.maxInterval) || math.IsInf(delay, 0) {
		return p.maxInterval
	}
	return time.Duration(delay)
}

// Wait sleeps for d or until ctx is done, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Verify interfaces
var _ RetryPolicy = (*ExponentialPolicy)(nil)
