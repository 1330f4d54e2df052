package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tgrelay/internal/bus"
	"tgrelay/internal/domain"
	"tgrelay/internal/rules"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sendCall struct {
	target int64
	msgID  int
}

// fakeClient records sends and serves canned resolutions.
type fakeClient struct {
	mu           sync.Mutex
	entities     map[int64]domain.EntityInfo
	resolveErrs  map[int64]error
	resolveCalls map[int64]int
	forwardErrs  map[int64]error
	copyErrs     map[int64]error
	forwards     []sendCall
	copies       []sendCall
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		entities:     make(map[int64]domain.EntityInfo),
		resolveErrs:  make(map[int64]error),
		resolveCalls: make(map[int64]int),
		forwardErrs:  make(map[int64]error),
		copyErrs:     make(map[int64]error),
	}
}

func (f *fakeClient) Subscribe(ctx context.Context, sourceIDs []int64, b domain.MessageBus) error {
	return nil
}

func (f *fakeClient) ResolveEntity(_ context.Context, id int64) (domain.EntityInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls[id]++
	if err, ok := f.resolveErrs[id]; ok {
		return domain.EntityInfo{}, err
	}
	return f.entities[id], nil
}

func (f *fakeClient) SendForward(_ context.Context, target int64, msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwards = append(f.forwards, sendCall{target: target, msgID: msg.ID})
	return f.forwardErrs[target]
}

func (f *fakeClient) SendCopy(_ context.Context, target int64, msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, sendCall{target: target, msgID: msg.ID})
	return f.copyErrs[target]
}

func (f *fakeClient) forwardTargets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.forwards))
	for i, c := range f.forwards {
		out[i] = c.target
	}
	return out
}

func (f *fakeClient) forwardCount(target int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.forwards {
		if c.target == target {
			n++
		}
	}
	return n
}

func (f *fakeClient) copyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.copies)
}

func (f *fakeClient) forwardTotal() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.forwards)
}

func (f *fakeClient) resolveCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveCalls[id]
}

func newTestEngine(fc *fakeClient, table rules.RoutingTable, mode Mode) (*Engine, *bus.InMemoryBus) {
	b := bus.New(16, testLogger())
	eng := NewEngine(EngineConfig{
		Table:    table,
		Client:   fc,
		Resolver: NewResolver(fc, testLogger()),
		Bus:      b,
		Mode:     mode,
		Logger:   testLogger(),
	})
	return eng, b
}

// runEngine starts the engine and returns a channel closed when Run returns.
func runEngine(eng *Engine) chan struct{} {
	done := make(chan struct{})
	go func() {
		eng.Run(context.Background())
		close(done)
	}()
	return done
}

func TestEngine_FanOutContinuesAfterTargetFailure(t *testing.T) {
	fc := newFakeClient()
	fc.forwardErrs[20] = errors.New("chat not found")

	eng, b := newTestEngine(fc, rules.RoutingTable{1: {10, 20, 30}}, ModeForward)
	done := runEngine(eng)

	b.Publish(domain.Message{ID: 1, SourceChat: 1})
	b.Close()
	<-done

	require.Equal(t, []int64{10, 20, 30}, fc.forwardTargets())
}

func TestEngine_CopyModeNeverForwards(t *testing.T) {
	fc := newFakeClient()
	eng, b := newTestEngine(fc, rules.RoutingTable{1: {10}}, ModeCopy)
	done := runEngine(eng)

	b.Publish(domain.Message{ID: 1, SourceChat: 1})
	b.Close()
	<-done

	require.Equal(t, 1, fc.copyCount())
	require.Equal(t, 0, fc.forwardTotal())
}

func TestEngine_ForwardModeNeverCopies(t *testing.T) {
	fc := newFakeClient()
	eng, b := newTestEngine(fc, rules.RoutingTable{1: {10}}, ModeForward)
	done := runEngine(eng)

	b.Publish(domain.Message{ID: 1, SourceChat: 1})
	b.Close()
	<-done

	require.Equal(t, 1, fc.forwardTotal())
	require.Equal(t, 0, fc.copyCount())
}

func TestEngine_SkipsUnconfiguredSource(t *testing.T) {
	fc := newFakeClient()
	eng, b := newTestEngine(fc, rules.RoutingTable{1: {10}}, ModeForward)
	done := runEngine(eng)

	b.Publish(domain.Message{ID: 1, SourceChat: 99})
	b.Close()
	<-done

	require.Equal(t, 0, fc.forwardTotal())
	require.Equal(t, 0, fc.copyCount())
}

func TestEngine_RateLimitDoesNotBlockOtherMessages(t *testing.T) {
	fc := newFakeClient()
	fc.forwardErrs[20] = &domain.RateLimitError{RetryAfter: 300 * time.Millisecond}

	eng, b := newTestEngine(fc, rules.RoutingTable{1: {20}, 2: {30}}, ModeForward)
	start := time.Now()
	done := runEngine(eng)

	b.Publish(domain.Message{ID: 1, SourceChat: 1}) // will hit the rate limit
	b.Publish(domain.Message{ID: 2, SourceChat: 2})

	// Message 2 completes while message 1's handler is still waiting.
	require.Eventually(t, func() bool { return fc.forwardCount(30) == 1 },
		150*time.Millisecond, 5*time.Millisecond)

	b.Close()
	<-done

	// Run drains the rate-limited handler before returning.
	require.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestEngine_MultipleSourcesIndependentTargets(t *testing.T) {
	fc := newFakeClient()
	eng, b := newTestEngine(fc, rules.RoutingTable{1: {10, 11}, 2: {20}}, ModeForward)
	done := runEngine(eng)

	b.Publish(domain.Message{ID: 1, SourceChat: 1})
	b.Publish(domain.Message{ID: 2, SourceChat: 2})
	b.Close()
	<-done

	require.Equal(t, 1, fc.forwardCount(10))
	require.Equal(t, 1, fc.forwardCount(11))
	require.Equal(t, 1, fc.forwardCount(20))
}
