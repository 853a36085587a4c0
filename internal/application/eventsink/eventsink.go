package eventsink

import (
	"context"
	"fmt"

	"github.com/abcretailers/retailcore/internal/domain/event"
	"github.com/abcretailers/retailcore/internal/domain/outbox"
	"github.com/abcretailers/retailcore/internal/infrastructure/observability"
	"github.com/abcretailers/retailcore/internal/queue"
	"github.com/abcretailers/retailcore/pkg/retry"
	"github.com/rs/zerolog"
)

// Sink routes a domain event toward its queue. Use cases publish through this
// port and never touch the transport directly.
type Sink interface {
	Publish(ctx context.Context, env *event.Envelope) error
}

// BusSink publishes straight to the bus with bounded retry. Used when the
// mutation and the publish do not share a transaction.
type BusSink struct {
	bus      queue.Bus
	retryCfg retry.Config
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

var _ Sink = (*BusSink)(nil)

func NewBusSink(bus queue.Bus, retryCfg retry.Config, metrics *observability.Metrics, logger zerolog.Logger) *BusSink {
	return &BusSink{
		bus:      bus,
		retryCfg: retryCfg,
		metrics:  metrics,
		logger:   logger.With().Str("component", "bus_sink").Logger(),
	}
}

func (s *BusSink) Publish(ctx context.Context, env *event.Envelope) error {
	queueName := event.QueueFor(env.Type)
	if queueName == "" {
		return fmt.Errorf("no queue for event type %q", env.Type)
	}
	body, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode event %s: %w", env.ID, err)
	}

	cfg := s.retryCfg
	cfg.OnRetry = func(attempt uint, err error) {
		s.logger.Warn().Err(err).
			Str("queue", queueName).
			Str("event_id", env.ID).
			Uint("attempt", attempt).
			Msg("Publish failed, retrying")
	}
	if err := retry.Do(ctx, cfg, func() error {
		return s.bus.Publish(ctx, queueName, body)
	}); err != nil {
		return fmt.Errorf("publish event %s to %s: %w", env.ID, queueName, err)
	}

	if s.metrics != nil {
		s.metrics.MessagesPublished.WithLabelValues(queueName).Inc()
	}
	return nil
}

// OutboxSink stages events in the transactional outbox instead of publishing
// directly. When the caller runs inside a TxManager transaction the insert
// commits or rolls back with the mutation.
type OutboxSink struct {
	repo outbox.Repository
}

var _ Sink = (*OutboxSink)(nil)

func NewOutboxSink(repo outbox.Repository) *OutboxSink {
	return &OutboxSink{repo: repo}
}

func (s *OutboxSink) Publish(ctx context.Context, env *event.Envelope) error {
	entry, err := outbox.NewEntry(env)
	if err != nil {
		return fmt.Errorf("stage event %s: %w", env.ID, err)
	}
	return s.repo.Insert(ctx, entry)
}
