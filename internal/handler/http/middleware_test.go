package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/vasiliy-maslov/fashion-store/internal/auth"
	handler "github.com/vasiliy-maslov/fashion-store/internal/handler/http"
	"github.com/vasiliy-maslov/fashion-store/internal/metrics"
)

func TestInstrument_LabelsByRoutePattern(t *testing.T) {
	m := metrics.NewServerMetrics(prometheus.NewRegistry(), "test")

	router := chi.NewRouter()
	router.Use(handler.Instrument(m))
	router.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/orders/"+uuid.Must(uuid.NewV4()).String(), nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Requests.WithLabelValues("/orders/{id}", http.MethodGet, "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("unmatched", http.MethodGet, "404")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.LatencyMS))
}

func TestRequireRole_WithoutAuthenticate(t *testing.T) {
	router := chi.NewRouter()
	router.With(handler.RequireRole(auth.RoleAdmin)).Get("/admin", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
