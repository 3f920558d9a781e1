package driver

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/MediaQueue/internal/observability"
	"github.com/PaulBabatuyi/MediaQueue/internal/queue"
)

// TransferFunc moves one item's bytes to the remote store.
type TransferFunc func(ctx context.Context, item *queue.Item) error

// Middleware wraps a TransferFunc with a cross-cutting concern.
type Middleware func(TransferFunc) TransferFunc

// Chain composes middlewares so the first one listed is outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next TransferFunc) TransferFunc {
		// Build chain from right to left
		chain := next
		for i := len(middlewares) - 1; i >= 0; i-- {
			chain = middlewares[i](chain)
		}
		return chain
	}
}

// withLogging logs each transfer with timing and outcome.
func withLogging(logger *zap.Logger) Middleware {
	return func(next TransferFunc) TransferFunc {
		return func(ctx context.Context, item *queue.Item) error {
			start := time.Now()
			err := next(ctx, item)
			duration := time.Since(start)

			if err != nil {
				logger.Error("transfer failed",
					zap.String("item_id", item.ID),
					zap.String("filename", item.File.Name),
					zap.Duration("duration", duration),
					zap.Error(err))
				return err
			}
			logger.Info("transfer complete",
				zap.String("item_id", item.ID),
				zap.String("filename", item.File.Name),
				zap.Int64("size", item.File.Size),
				zap.Duration("duration", duration))
			return nil
		}
	}
}

// withMetrics records transfer counters and duration. Cancellation is
// neither a success nor a failure.
func withMetrics(m *observability.Metrics) Middleware {
	if m == nil {
		return func(next TransferFunc) TransferFunc { return next }
	}
	return func(next TransferFunc) TransferFunc {
		return func(ctx context.Context, item *queue.Item) error {
			start := time.Now()
			err := next(ctx, item)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					m.UploadFailures.Inc()
				}
				return err
			}
			m.Uploads.Inc()
			m.UploadedBytes.Add(float64(item.File.Size))
			m.UploadDuration.Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// withRetry retries transient transfer failures with exponential backoff
// before the item surfaces as errored. Cancellation is never retried.
func withRetry(maxRetries uint64, base time.Duration) Middleware {
	if maxRetries == 0 {
		return func(next TransferFunc) TransferFunc { return next }
	}
	return func(next TransferFunc) TransferFunc {
		return func(ctx context.Context, item *queue.Item) error {
			backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(base))
			return retry.Do(ctx, backoff, func(ctx context.Context) error {
				err := next(ctx, item)
				if err == nil {
					return nil
				}
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				return retry.RetryableError(err)
			})
		}
	}
}
