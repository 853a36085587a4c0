package controller

import (
	"time"

	"github.com/abcretailers/retailcore/internal/application/bookings"
	"github.com/abcretailers/retailcore/internal/application/orders"
	"github.com/abcretailers/retailcore/internal/application/products"
	"github.com/abcretailers/retailcore/internal/infrastructure/config"
	"github.com/abcretailers/retailcore/internal/infrastructure/observability"
	customMW "github.com/abcretailers/retailcore/internal/middleware"
	"github.com/abcretailers/retailcore/internal/queue"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool             *pgxpool.Pool
	RedisClient      *redis.Client
	UpdateStatus     *orders.UpdateStatusUseCase
	UpdateStock      *products.UpdateStockUseCase
	BookingService   *bookings.Service
	DeadLetterReader queue.DeadLetterReader
	Metrics          *observability.Metrics
	CORSConfig       config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	orderH := NewOrderController(deps.UpdateStatus)
	productH := NewProductController(deps.UpdateStock)
	bookingH := NewBookingController(deps.BookingService)
	deadLetterH := NewDeadLetterController(deps.DeadLetterReader)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Orders
		r.Put("/orders/{id}/status", orderH.UpdateStatus)

		// Products
		r.Put("/products/{id}/stock", productH.UpdateStock)

		// Bookings
		r.Post("/bookings", bookingH.Create)
		r.Get("/bookings/{id}", bookingH.Get)
		r.Put("/bookings/{id}", bookingH.Reschedule)
		r.Delete("/bookings/{id}", bookingH.Cancel)

		// Operations
		r.Get("/deadletters", deadLetterH.List)
	})

	return r
}
