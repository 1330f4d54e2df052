// Package relay contains the dispatch engine that fans incoming messages
// out to their configured targets.
package relay

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"tgrelay/internal/domain"
	"tgrelay/internal/metrics"
	"tgrelay/internal/rules"
)

// Engine consumes the subscribed event stream and relays every incoming
// message to the targets its source is mapped to. It is idle until Run and
// terminal once Run returns; resuming requires a fresh engine.
type Engine struct {
	table    rules.RoutingTable
	client   domain.Client
	resolver *Resolver
	bus      domain.MessageBus
	mode     Mode
	logger   *slog.Logger

	wg sync.WaitGroup
}

type EngineConfig struct {
	Table    rules.RoutingTable
	Client   domain.Client
	Resolver *Resolver
	Bus      domain.MessageBus
	Mode     Mode
	Logger   *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		table:    cfg.Table,
		client:   cfg.Client,
		resolver: cfg.Resolver,
		bus:      cfg.Bus,
		mode:     cfg.Mode,
		logger:   cfg.Logger,
	}
}

// Run logs the routing table, then consumes the bus until ctx is cancelled
// or the stream closes. In-flight handlers are drained before it returns.
func (e *Engine) Run(ctx context.Context) error {
	e.logRules(ctx)

	stream := e.bus.Subscribe()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case msg, ok := <-stream:
			if !ok {
				break loop
			}
			// Each message is handled as an independently scheduled
			// goroutine: a rate-limit wait for message N must not delay
			// handling of message N+1.
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.handle(ctx, msg)
			}()
		}
	}

	e.logger.Info("dispatch engine stopping, draining in-flight deliveries")
	e.wg.Wait()
	e.logger.Info("dispatch engine stopped",
		"received", metrics.MessagesReceived.Value(),
		"delivered", metrics.DeliveriesOK.Value(),
		"failed", metrics.DeliveriesFailed.Value(),
		"rate_limited", metrics.DeliveriesRateLimited.Value(),
	)
	return nil
}

func (e *Engine) logRules(ctx context.Context) {
	e.logger.Info("setting up forwarding rules", "sources", len(e.table), "mode", e.mode.String())
	for source, targets := range e.table {
		labels := make([]string, 0, len(targets))
		for _, target := range targets {
			labels = append(labels, e.resolver.Resolve(ctx, target))
		}
		e.logger.Info("rule",
			"source", e.resolver.Resolve(ctx, source),
			"targets", strings.Join(labels, ", "),
		)
	}
}

func (e *Engine) handle(ctx context.Context, msg domain.Message) {
	metrics.HandlersInFlight.Inc()
	defer metrics.HandlersInFlight.Dec()

	targets, ok := e.table.Targets(msg.SourceChat)
	if !ok {
		// The subscription is filtered to the table's keys, so this should
		// not happen; skip rather than guess a destination.
		e.logger.Warn("no targets configured for source", "source", msg.SourceChat)
		return
	}

	metrics.MessagesReceived.Inc()

	sender := "unknown"
	if msg.SenderID != 0 {
		sender = strconv.FormatInt(msg.SenderID, 10)
	}
	e.logger.Info("message received",
		"sender", sender,
		"source", e.resolver.Resolve(ctx, msg.SourceChat),
		"message_id", msg.ID,
	)

	// Targets are attempted in configured order; one failing never stops
	// the rest.
	for _, target := range targets {
		e.deliver(ctx, msg, target)
	}
}
