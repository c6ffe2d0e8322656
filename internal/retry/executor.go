package retry

import (
	"context"
	"time"

	"github.com/vsayer/materialize/pkg/catalog"
)

// Executor runs an operation until it succeeds, fails permanently, or runs
// out of retries. It is safe for concurrent use.
type Executor struct {
	classifier catalog.ErrorClassifier
	strategy   catalog.BackoffStrategy
	onRetry    func(attempt int, err error, delay time.Duration)
}

// NewExecutor panics if classifier or strategy is nil.
func NewExecutor(classifier catalog.ErrorClassifier, strategy catalog.BackoffStrategy) *Executor {
	if classifier == nil || strategy == nil {
		panic("retry: classifier and strategy are required")
	}
	return &Executor{classifier: classifier, strategy: strategy}
}

// WithOnRetry returns a copy of e that calls fn before each retry.
func (e *Executor) WithOnRetry(fn func(attempt int, err error, delay time.Duration)) *Executor {
	clone := *e
	clone.onRetry = fn
	return &clone
}

// Execute returns nil on success, the first permanent error, the last
// transient error once retries are exhausted, or the context's error.
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	err := op(ctx)
	budget := e.strategy.MaxAttempts()
	for attempt := 0; err != nil && e.classifier.IsTransient(err); attempt++ {
		if budget >= 0 && attempt >= budget {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		delay := e.strategy.NextDelay(attempt)
		if e.onRetry != nil {
			e.onRetry(attempt, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		err = op(ctx)
	}
	return err
}
