package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/fashion-store/internal/auth"
	"github.com/vasiliy-maslov/fashion-store/internal/cart"
	handler "github.com/vasiliy-maslov/fashion-store/internal/handler/http"
	"github.com/vasiliy-maslov/fashion-store/internal/metrics"
	"github.com/vasiliy-maslov/fashion-store/internal/order"
	"github.com/vasiliy-maslov/fashion-store/internal/payment"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

type RouterDeps struct {
	Orders         order.Service
	Carts          cart.Service
	Verifier       *auth.Verifier
	PaymentSecrets payment.Secrets
	Metrics        *metrics.ServerMetrics
	Gatherer       prometheus.Gatherer
	Health         HealthChecker
}

func NewRouter(d RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.RequestLogger)
	r.Use(middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(handler.Instrument(d.Metrics))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Health(ctx); err != nil {
				log.Error().Err(err).Msg("Health check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("UNAVAILABLE"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	handler.NewPaymentHandler(d.Orders, d.PaymentSecrets).RegisterRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(handler.Authenticate(d.Verifier))

		orderHandler := handler.NewOrderHandler(d.Orders)
		orderHandler.RegisterRoutes(r)
		orderHandler.RegisterAdminRoutes(r)

		handler.NewCartHandler(d.Carts).RegisterRoutes(r)
	})

	return r
}
