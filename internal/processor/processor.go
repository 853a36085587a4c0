package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/abcretailers/retailcore/internal/domain/alert"
	"github.com/abcretailers/retailcore/internal/domain/event"
	"github.com/abcretailers/retailcore/internal/infrastructure/observability"
	"github.com/abcretailers/retailcore/internal/queue"
	"github.com/rs/zerolog"
)

// Processor routes decoded events to their handlers. It implements
// queue.Handler semantics: malformed messages come back wrapped with
// queue.Permanent, anything else is eligible for redelivery. Side effects
// are keyed by each payload's stable key so duplicates collapse to one
// execution while the guard entry lives.
type Processor struct {
	guard             Guard
	notifier          Notifier
	evaluator         *alert.Evaluator
	allowedExtensions map[string]struct{}
	metrics           *observability.Metrics
	logger            zerolog.Logger
}

// Notifier is the downstream the processor drives. It matches
// notify.Notifier; declared here so the processor depends only on what it
// calls.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, orderID string) error
	InitiateRefund(ctx context.Context, orderID string) error
	SendTrackingNotification(ctx context.Context, orderID string) error
	NotifyOrderStatus(ctx context.Context, orderID, status string) error
	SendStockAlert(ctx context.Context, a alert.Alert) error
}

// Config wires a Processor.
type Config struct {
	Guard             Guard
	Notifier          Notifier
	Evaluator         *alert.Evaluator
	AllowedExtensions []string
	Metrics           *observability.Metrics
	Logger            zerolog.Logger
}

func New(cfg Config) *Processor {
	exts := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	guard := cfg.Guard
	if guard == nil {
		guard = NewMemoryGuard()
	}
	evaluator := cfg.Evaluator
	if evaluator == nil {
		evaluator = alert.NewEvaluator(alert.DefaultThresholds())
	}
	return &Processor{
		guard:             guard,
		notifier:          cfg.Notifier,
		evaluator:         evaluator,
		allowedExtensions: exts,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger.With().Str("component", "processor").Logger(),
	}
}

// Handle processes one delivery. Safe to call concurrently.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	start := time.Now()

	env, err := event.Decode(msg.Body)
	if err != nil {
		p.recordParseFailure(msg.Queue)
		p.logger.Error().Err(err).
			Str("queue", msg.Queue).
			Str("message_id", msg.ID).
			Msg("Dropping malformed message")
		return queue.Permanent(err)
	}

	logger := p.logger.With().
		Str("queue", msg.Queue).
		Str("event_id", env.ID).
		Str("event_type", string(env.Type)).
		Int("attempt", msg.Attempt).
		Logger()

	switch env.Type {
	case event.TypeOrderStatusChanged:
		err = p.handleOrderStatusChanged(ctx, env, logger)
	case event.TypeStockUpdated:
		err = p.handleStockUpdated(ctx, env, logger)
	case event.TypeImageUploaded:
		err = p.handleImageUploaded(ctx, env, logger)
	default:
		p.recordParseFailure(msg.Queue)
		logger.Error().Msg("Unknown event type")
		return queue.Permanent(fmt.Errorf("unknown event type %q", env.Type))
	}

	p.recordOutcome(msg.Queue, err, time.Since(start))
	return err
}

func (p *Processor) handleOrderStatusChanged(ctx context.Context, env *event.Envelope, logger zerolog.Logger) error {
	var payload event.OrderStatusChanged
	if err := env.DecodePayload(&payload); err != nil {
		logger.Error().Err(err).Msg("Invalid order status payload")
		return queue.Permanent(err)
	}

	return p.once(ctx, payload.StableKey(), logger, func() error {
		switch strings.ToLower(payload.Status) {
		case "completed":
			return p.notify(ctx, "order_confirmation", func() error {
				return p.notifier.SendOrderConfirmation(ctx, payload.OrderID)
			})
		case "cancelled":
			return p.notify(ctx, "refund", func() error {
				return p.notifier.InitiateRefund(ctx, payload.OrderID)
			})
		case "shipped":
			return p.notify(ctx, "tracking", func() error {
				return p.notifier.SendTrackingNotification(ctx, payload.OrderID)
			})
		default:
			return p.notify(ctx, "status_change", func() error {
				return p.notifier.NotifyOrderStatus(ctx, payload.OrderID, payload.Status)
			})
		}
	})
}

func (p *Processor) handleStockUpdated(ctx context.Context, env *event.Envelope, logger zerolog.Logger) error {
	var payload event.StockUpdated
	if err := env.DecodePayload(&payload); err != nil {
		logger.Error().Err(err).Msg("Invalid stock update payload")
		return queue.Permanent(err)
	}

	return p.once(ctx, payload.StableKey(), logger, func() error {
		alerts := p.evaluator.Evaluate(payload.PreviousStock, payload.NewStock, payload.ProductName)
		for _, a := range alerts {
			if err := p.notifier.SendStockAlert(ctx, a); err != nil {
				return err
			}
			if p.metrics != nil {
				p.metrics.AlertsRaised.WithLabelValues(string(a.Severity)).Inc()
			}
		}
		logger.Info().
			Str("product_id", payload.ProductID).
			Int("previous_stock", payload.PreviousStock).
			Int("new_stock", payload.NewStock).
			Int("alerts", len(alerts)).
			Msg("Stock update processed")
		return nil
	})
}

func (p *Processor) handleImageUploaded(ctx context.Context, env *event.Envelope, logger zerolog.Logger) error {
	var payload event.ImageUploaded
	if err := env.DecodePayload(&payload); err != nil {
		logger.Error().Err(err).Msg("Invalid image upload payload")
		return queue.Permanent(err)
	}

	return p.once(ctx, payload.StableKey(), logger, func() error {
		ext := strings.ToLower(filepath.Ext(payload.BlobName))
		if _, ok := p.allowedExtensions[ext]; !ok {
			logger.Warn().
				Str("blob_name", payload.BlobName).
				Str("extension", ext).
				Msg("Unsupported image format, skipping")
			return nil
		}
		logger.Info().
			Str("blob_name", payload.BlobName).
			Str("container", payload.ContainerName).
			Msg("Product image processed")
		return nil
	})
}

// once runs fn at most once per stable key. Guard read errors are transient
// so the message comes back; a mark failure after a successful fn is logged
// and swallowed, since at-least-once delivery already tolerates a duplicate.
func (p *Processor) once(ctx context.Context, key string, logger zerolog.Logger, fn func() error) error {
	seen, err := p.guard.Seen(ctx, key)
	if err != nil {
		return fmt.Errorf("idempotency check for %s: %w", key, err)
	}
	if seen {
		logger.Info().Str("stable_key", key).Msg("Duplicate delivery, skipping")
		return nil
	}

	if err := fn(); err != nil {
		return err
	}

	if err := p.guard.Mark(ctx, key); err != nil {
		logger.Warn().Err(err).Str("stable_key", key).Msg("Failed to mark event as processed")
	}
	return nil
}

func (p *Processor) notify(ctx context.Context, kind string, fn func() error) error {
	err := fn()
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.NotificationsSent.WithLabelValues(kind, status).Inc()
	}
	return err
}

func (p *Processor) recordParseFailure(queueName string) {
	if p.metrics != nil {
		p.metrics.ParseFailures.WithLabelValues(queueName).Inc()
		p.metrics.MessagesProcessed.WithLabelValues(queueName, "parse_failure").Inc()
	}
}

func (p *Processor) recordOutcome(queueName string, err error, elapsed time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.ProcessingTime.WithLabelValues(queueName).Observe(elapsed.Seconds())
	status := "success"
	switch {
	case err == nil:
	case queue.IsPermanent(err):
		status = "permanent_failure"
	default:
		status = "error"
	}
	p.metrics.MessagesProcessed.WithLabelValues(queueName, status).Inc()
}
