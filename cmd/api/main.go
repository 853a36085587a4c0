package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/abcretailers/retailcore/internal/application/bookings"
	"github.com/abcretailers/retailcore/internal/application/eventsink"
	"github.com/abcretailers/retailcore/internal/application/orders"
	"github.com/abcretailers/retailcore/internal/application/products"
	"github.com/abcretailers/retailcore/internal/bootstrap"
	"github.com/abcretailers/retailcore/internal/controller"
	"github.com/abcretailers/retailcore/internal/domain/booking"
	"github.com/abcretailers/retailcore/internal/infrastructure/observability"
	"github.com/abcretailers/retailcore/internal/infrastructure/postgres"
	infraRedis "github.com/abcretailers/retailcore/internal/infrastructure/redis"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "retailcore-api", "retailcore")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config

	// --- Infrastructure ---
	store := observability.InstrumentStore(postgres.NewEntityStore(app.Pool), app.Metrics)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	bus := infraRedis.NewStreamBus(app.Redis, infraRedis.StreamBusOptions{
		Group:    cfg.Queue.ConsumerGroup,
		Consumer: cfg.InstanceID,
		Metrics:  app.Metrics,
	}, app.Logger)

	// Mutations stage their events in the outbox; the worker's poller
	// publishes them to the streams.
	sink := eventsink.NewOutboxSink(outboxRepo)

	// --- Application services ---
	updateStatusUC := orders.NewUpdateStatusUseCase(store, sink)
	updateStockUC := products.NewUpdateStockUseCase(store, sink)
	bookingService := bookings.NewService(store, booking.NewDetector(store), app.Metrics)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:             app.Pool,
		RedisClient:      app.Redis,
		UpdateStatus:     updateStatusUC,
		UpdateStock:      updateStockUC,
		BookingService:   bookingService,
		DeadLetterReader: bus,
		Metrics:          app.Metrics,
		CORSConfig:       cfg.Server.CORS,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
