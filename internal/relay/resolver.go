package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tgrelay/internal/domain"
	"tgrelay/internal/metrics"
)

// Resolver caches display labels for chats and users. Labels are used for
// diagnostics only, never for routing, so staleness is acceptable and
// entries live for the whole process.
type Resolver struct {
	client domain.Client
	logger *slog.Logger

	mu    sync.Mutex
	cache map[int64]string
}

func NewResolver(client domain.Client, logger *slog.Logger) *Resolver {
	return &Resolver{
		client: client,
		logger: logger,
		cache:  make(map[int64]string),
	}
}

// Resolve returns a display label for id. It never fails outward: a lookup
// error degrades to a fallback label, which is cached like any other so the
// network is asked at most once per id.
func (r *Resolver) Resolve(ctx context.Context, id int64) string {
	r.mu.Lock()
	if label, ok := r.cache[id]; ok {
		r.mu.Unlock()
		return label
	}
	r.mu.Unlock()

	label := r.lookup(ctx, id)

	r.mu.Lock()
	defer r.mu.Unlock()
	// Concurrent handlers may race to fill the same entry; first write wins
	// so repeated lookups stay consistent.
	if existing, ok := r.cache[id]; ok {
		return existing
	}
	r.cache[id] = label
	return label
}

func (r *Resolver) lookup(ctx context.Context, id int64) string {
	info, err := r.client.ResolveEntity(ctx, id)
	if err != nil {
		r.logger.Error("entity resolution failed", "id", id, "err", err)
		metrics.ResolutionFailures.Inc()
		return fmt.Sprintf("Unknown Entity (ID: %d)", id)
	}

	if info.Title != "" {
		return fmt.Sprintf("%s (ID: %d)", info.Title, id)
	}
	if info.FirstName != "" {
		name := info.FirstName
		if info.LastName != "" {
			name += " " + info.LastName
		}
		return fmt.Sprintf("%s (ID: %d)", name, id)
	}
	return fmt.Sprintf("Entity (ID: %d)", id)
}
