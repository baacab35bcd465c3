package http_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/fashion-store/internal/auth"
	"github.com/vasiliy-maslov/fashion-store/internal/cart"
	handler "github.com/vasiliy-maslov/fashion-store/internal/handler/http"
	"github.com/vasiliy-maslov/fashion-store/internal/order"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) PreviewCheckout(ctx context.Context, userID, addressID uuid.UUID) (*order.CheckoutPreview, error) {
	args := m.Called(ctx, userID, addressID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.CheckoutPreview), args.Error(1)
}

func (m *MockOrderService) CreateOrder(ctx context.Context, in order.CreateOrderInput) (*order.PlacedOrder, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.PlacedOrder), args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, userID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus order.Status) (*order.Order, error) {
	args := m.Called(ctx, orderID, newStatus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) ConfirmPayment(ctx context.Context, in order.PaymentConfirmation) (*order.Order, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, userID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, userID uuid.UUID, filter order.ListFilter) (*order.Page, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Page), args.Error(1)
}

func (m *MockOrderService) ListAllOrders(ctx context.Context, filter order.ListFilter) (*order.Page, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Page), args.Error(1)
}

func (m *MockOrderService) Statistics(ctx context.Context) (*order.Statistics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Statistics), args.Error(1)
}

type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) GetCart(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) AddItem(ctx context.Context, userID, variantID uuid.UUID, qty int) (*cart.Cart, error) {
	args := m.Called(ctx, userID, variantID, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, qty int) (*cart.Cart, error) {
	args := m.Called(ctx, userID, itemID, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*cart.Cart, error) {
	args := m.Called(ctx, userID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) Clear(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

var testVerifier = auth.NewVerifier("test-secret", "", "")

func tokenFor(t *testing.T, userID uuid.UUID, role auth.Role) string {
	t.Helper()
	token, err := testVerifier.Sign(userID, role, time.Hour)
	require.NoError(t, err)
	return token
}

// authedRouter mounts the given route registrations behind Authenticate, the
// way the service router does.
func authedRouter(register ...func(chi.Router)) chi.Router {
	router := chi.NewRouter()
	router.Group(func(r chi.Router) {
		r.Use(handler.Authenticate(testVerifier))
		for _, reg := range register {
			reg(r)
		}
	})
	return router
}

func orderRouter(svc order.Service) chi.Router {
	h := handler.NewOrderHandler(svc)
	return authedRouter(h.RegisterRoutes, h.RegisterAdminRoutes)
}

func serve(router chi.Router, method, path, body, token string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
