package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tgrelay/internal/domain"
	"tgrelay/internal/rules"
)

func TestDeliver_Success(t *testing.T) {
	fc := newFakeClient()
	eng, _ := newTestEngine(fc, rules.RoutingTable{1: {20}}, ModeForward)

	outcome := eng.deliver(context.Background(), domain.Message{ID: 5, SourceChat: 1}, 20)

	require.True(t, outcome.Success)
	require.Equal(t, domain.ErrorNone, outcome.Kind)
	require.Equal(t, int64(20), outcome.Target)
}

func TestDeliver_RateLimitWaitsWithoutRetry(t *testing.T) {
	fc := newFakeClient()
	fc.forwardErrs[20] = &domain.RateLimitError{RetryAfter: 200 * time.Millisecond}
	eng, _ := newTestEngine(fc, rules.RoutingTable{1: {20}}, ModeForward)

	start := time.Now()
	outcome := eng.deliver(context.Background(), domain.Message{ID: 5, SourceChat: 1}, 20)

	require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	require.False(t, outcome.Success)
	require.Equal(t, domain.ErrorRateLimited, outcome.Kind)
	// The wait is a courtesy delay, not a retry: exactly one send attempt.
	require.Equal(t, 1, fc.forwardCount(20))
}

func TestDeliver_RateLimitWaitInterruptedByShutdown(t *testing.T) {
	fc := newFakeClient()
	fc.forwardErrs[20] = &domain.RateLimitError{RetryAfter: 10 * time.Second}
	eng, _ := newTestEngine(fc, rules.RoutingTable{1: {20}}, ModeForward)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	outcome := eng.deliver(ctx, domain.Message{ID: 5, SourceChat: 1}, 20)

	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, domain.ErrorRateLimited, outcome.Kind)
}

func TestDeliver_SendFailure(t *testing.T) {
	fc := newFakeClient()
	fc.forwardErrs[20] = errors.New("bot was kicked from the channel")
	eng, _ := newTestEngine(fc, rules.RoutingTable{1: {20}}, ModeForward)

	outcome := eng.deliver(context.Background(), domain.Message{ID: 5, SourceChat: 1}, 20)

	require.False(t, outcome.Success)
	require.Equal(t, domain.ErrorSendFailed, outcome.Kind)
}

func TestDeliver_CopyModeUsesCopyPrimitive(t *testing.T) {
	fc := newFakeClient()
	eng, _ := newTestEngine(fc, rules.RoutingTable{1: {20}}, ModeCopy)

	outcome := eng.deliver(context.Background(), domain.Message{ID: 5, SourceChat: 1}, 20)

	require.True(t, outcome.Success)
	require.Equal(t, 1, fc.copyCount())
	require.Equal(t, 0, fc.forwardTotal())
}
