package invalidation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/types"
)

const (
	defaultRetryAttempts = 5
	defaultRetryDelay    = 200 * time.Millisecond
)

// Handler wraps HandleMutation into an event handler that retries
// transient purge failures with exponential backoff. A mutation event
// must not be dropped just because the store hiccuped: handling is
// idempotent, so rerunning the purge is always safe. Malformed events
// fail immediately, no redelivery fixes a missing type name.
func (e *Engine) Handler(ctx context.Context, maxAttempts int, baseDelay time.Duration) types.EventHandler {
	if maxAttempts <= 0 {
		maxAttempts = defaultRetryAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryDelay
	}

	return func(event *types.MutationEvent) error {
		if err := event.Validate(); err != nil {
			return err
		}

		delay := baseDelay

		var lastErr error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			lastErr = e.HandleMutation(ctx, event)
			if lastErr == nil {
				return nil
			}

			if attempt == maxAttempts {
				break
			}

			e.logger.Warn("Purge failed, retrying",
				zap.String("type", event.Type),
				zap.String("item_id", event.ItemID),
				zap.String("kind", string(event.Kind)),
				zap.Int("attempt", attempt),
				zap.Duration("next_in", delay),
				zap.Error(lastErr))
			e.observeRetry()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		e.logger.Error("Purge retries exhausted",
			zap.String("type", event.Type),
			zap.String("item_id", event.ItemID),
			zap.Int("attempts", maxAttempts),
			zap.Error(lastErr))

		return types.WrapError(lastErr, "purge retries exhausted")
	}
}

func (e *Engine) observeRetry() {
	if e.metrics == nil {
		return
	}

	e.metrics.Counter("invalidation_retries_total", nil).Inc()
}
