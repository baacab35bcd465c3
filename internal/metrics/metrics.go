package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fashion_store"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "method", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler", "method"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// OrderMetrics counts order workflow outcomes. A nil *OrderMetrics is valid
// and records nothing.
type OrderMetrics struct {
	placed         *prometheus.CounterVec
	cancelled      prometheus.Counter
	statusChanges  *prometheus.CounterVec
	stockConflicts prometheus.Counter
}

func NewOrderMetrics(reg prometheus.Registerer, service string) *OrderMetrics {
	m := &OrderMetrics{
		placed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "orders_placed_total",
			Help:      "Orders created, by payment method and payment status.",
		}, []string{"payment_method", "payment_status"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "orders_cancelled_total",
			Help:      "Orders cancelled by customers.",
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "order_status_changes_total",
			Help:      "Order status transitions, by target status.",
		}, []string{"status"}),
		stockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "order_stock_conflicts_total",
			Help:      "Checkouts rejected because a variant ran out of stock.",
		}),
	}

	reg.MustRegister(m.placed, m.cancelled, m.statusChanges, m.stockConflicts)
	return m
}

func (m *OrderMetrics) OrderPlaced(method, paymentStatus string) {
	if m == nil {
		return
	}
	m.placed.WithLabelValues(method, paymentStatus).Inc()
}

func (m *OrderMetrics) OrderCancelled() {
	if m == nil {
		return
	}
	m.cancelled.Inc()
}

func (m *OrderMetrics) StatusChanged(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

func (m *OrderMetrics) StockConflict() {
	if m == nil {
		return
	}
	m.stockConflicts.Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
