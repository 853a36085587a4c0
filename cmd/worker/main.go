package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abcretailers/retailcore/internal/application/eventsink"
	"github.com/abcretailers/retailcore/internal/bootstrap"
	"github.com/abcretailers/retailcore/internal/domain/alert"
	"github.com/abcretailers/retailcore/internal/domain/event"
	"github.com/abcretailers/retailcore/internal/infrastructure/postgres"
	infraRedis "github.com/abcretailers/retailcore/internal/infrastructure/redis"
	"github.com/abcretailers/retailcore/internal/notify"
	"github.com/abcretailers/retailcore/internal/processor"
	"github.com/abcretailers/retailcore/internal/queue"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
)

const eventLockTTL = 30 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "retailcore-worker", "retailcore_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config

	// --- Infrastructure ---
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)
	bus := infraRedis.NewStreamBus(app.Redis, infraRedis.StreamBusOptions{
		Group:         cfg.Queue.ConsumerGroup,
		Consumer:      cfg.InstanceID,
		MaxAttempts:   cfg.Queue.MaxAttempts,
		BackoffBase:   cfg.Queue.BackoffBase,
		BackoffMax:    cfg.Queue.BackoffMax,
		BatchSize:     cfg.Queue.BatchSize,
		BlockDuration: cfg.Queue.BlockDuration,
		ClaimMinIdle:  cfg.Queue.ClaimMinIdle,
		ClaimInterval: cfg.Queue.ClaimInterval,
		Metrics:       app.Metrics,
	}, app.Logger)
	guard := infraRedis.NewIdempotencyGuard(app.Redis, cfg.Processor.IdempotencyTTL)

	// --- Processing pipeline ---
	notifier := notify.NewBreakerNotifier(
		notify.NewLogNotifier(app.Logger),
		notify.BreakerSettings{
			FailureThreshold: cfg.Processor.CircuitBreakerThreshold,
			OpenTimeout:      cfg.Processor.CircuitBreakerTimeout,
		},
	)
	proc := processor.New(processor.Config{
		Guard:    guard,
		Notifier: notifier,
		Evaluator: alert.NewEvaluator(alert.Thresholds{
			LowStock:          cfg.Alerts.LowStockThreshold,
			SignificantChange: cfg.Alerts.SignificantChangeThreshold,
		}),
		AllowedExtensions: cfg.Images.AllowedExtensions,
		Metrics:           app.Metrics,
		Logger:            app.Logger,
	})

	// A short-lived lock per event ID keeps two workers from running the
	// same side effects concurrently in the window before the guard is
	// marked. Not acquiring is transient; the delivery comes back.
	handler := func(ctx context.Context, msg queue.Message) error {
		env, err := event.Decode(msg.Body)
		if err != nil {
			return proc.Handle(ctx, msg)
		}
		lock := infraRedis.NewDistributedLock(app.Redis, "event:"+env.ID, eventLockTTL)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return err
		}
		if !acquired {
			return fmt.Errorf("event %s is being processed elsewhere", env.ID)
		}
		defer lock.Release(ctx)
		return proc.Handle(ctx, msg)
	}

	poller := eventsink.NewPoller(outboxRepo, bus, txManager, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize, app.Metrics, app.Logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	for _, queueName := range []string{
		event.QueueOrderNotifications,
		event.QueueStockUpdates,
		event.QueueProductImages,
	} {
		g.Go(func() error {
			app.Logger.Info().
				Str("queue", queueName).
				Str("group", cfg.Queue.ConsumerGroup).
				Str("consumer", cfg.InstanceID).
				Msg("Consumer started")
			return bus.Subscribe(gCtx, queueName, handler)
		})
	}

	g.Go(func() error {
		return poller.Run(gCtx)
	})

	// Exports the notifier breaker state so an open breaker is visible.
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				app.Metrics.CircuitBreakerState.WithLabelValues("notifier").Set(breakerStateValue(notifier.State()))
			}
		}
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}
