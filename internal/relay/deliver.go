package relay

import (
	"context"
	"errors"
	"time"

	"tgrelay/internal/domain"
	"tgrelay/internal/metrics"
)

// deliver attempts one message to one target and classifies the result.
//
// A rate-limit signal is waited out for exactly the server-given duration
// before returning; the attempt is still reported as not delivered and is
// not retried within this call. Any other send error is logged and reported
// as a failed outcome. Nothing propagates to the caller, which is what keeps
// fan-out isolation at per-target granularity.
func (e *Engine) deliver(ctx context.Context, msg domain.Message, target int64) domain.DeliveryOutcome {
	var err error
	switch e.mode {
	case ModeCopy:
		err = e.client.SendCopy(ctx, target, msg)
	default:
		err = e.client.SendForward(ctx, target, msg)
	}

	if err == nil {
		metrics.DeliveriesOK.Inc()
		e.logger.Info("message delivered",
			"mode", e.mode.String(),
			"target", e.resolver.Resolve(ctx, target),
			"message_id", msg.ID,
		)
		return domain.DeliveryOutcome{Target: target, Success: true}
	}

	var rateLimited *domain.RateLimitError
	if errors.As(err, &rateLimited) {
		metrics.DeliveriesRateLimited.Inc()
		e.logger.Warn("rate limited, waiting",
			"target", target,
			"wait", rateLimited.RetryAfter,
			"message_id", msg.ID,
		)
		sleep(ctx, rateLimited.RetryAfter)
		return domain.DeliveryOutcome{Target: target, Kind: domain.ErrorRateLimited}
	}

	metrics.DeliveriesFailed.Inc()
	e.logger.Error("delivery failed",
		"target", e.resolver.Resolve(ctx, target),
		"message_id", msg.ID,
		"err", err,
	)
	return domain.DeliveryOutcome{Target: target, Kind: domain.ErrorSendFailed}
}

// sleep waits for d, returning early only when ctx is cancelled (process
// shutdown lets in-flight handlers finish naturally, it does not prolong
// them).
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
