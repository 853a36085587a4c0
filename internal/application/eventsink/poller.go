package eventsink

import (
	"context"
	"fmt"
	"time"

	"github.com/abcretailers/retailcore/internal/domain/outbox"
	"github.com/abcretailers/retailcore/internal/infrastructure/observability"
	"github.com/abcretailers/retailcore/internal/queue"
	"github.com/rs/zerolog"
)

// TransactionManager runs fn inside a storage transaction. The poller uses it
// to hold the row locks GetPending takes until the batch is marked.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Poller drains pending outbox entries onto the bus. Publishing can race with
// a concurrent poller instance; the downstream handlers are idempotent by
// stable key, so a double publish is harmless.
type Poller struct {
	repo      outbox.Repository
	bus       queue.Bus
	txm       TransactionManager
	interval  time.Duration
	batchSize int
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewPoller(repo outbox.Repository, bus queue.Bus, txm TransactionManager, interval time.Duration, batchSize int, metrics *observability.Metrics, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Poller{
		repo:      repo,
		bus:       bus,
		txm:       txm,
		interval:  interval,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger.With().Str("component", "outbox_poller").Logger(),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Poller) drain(ctx context.Context) {
	var err error
	if p.txm != nil {
		err = p.txm.WithTransaction(ctx, p.drainBatch)
	} else {
		err = p.drainBatch(ctx)
	}
	if err != nil {
		p.logger.Error().Err(err).Msg("Outbox drain failed")
	}
}

func (p *Poller) drainBatch(ctx context.Context) error {
	entries, err := p.repo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("fetch pending outbox entries: %w", err)
	}

	for _, entry := range entries {
		if err := p.publish(ctx, entry); err != nil {
			p.logger.Error().Err(err).
				Str("entry_id", entry.ID.String()).
				Str("queue", entry.Queue).
				Int("retry_count", entry.RetryCount).
				Msg("Failed to publish outbox entry")
			if err := p.repo.MarkFailed(ctx, entry.ID); err != nil {
				p.logger.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("Failed to mark outbox entry failed")
			}
			continue
		}
		if err := p.repo.MarkPublished(ctx, entry.ID); err != nil {
			p.logger.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("Failed to mark outbox entry published")
		}
	}
	return nil
}

func (p *Poller) publish(ctx context.Context, entry *outbox.Entry) error {
	if err := p.bus.Publish(ctx, entry.Queue, entry.Body); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.MessagesPublished.WithLabelValues(entry.Queue).Inc()
	}
	return nil
}
