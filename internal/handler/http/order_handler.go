package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/fashion-store/internal/auth"
	"github.com/vasiliy-maslov/fashion-store/internal/order"
	"github.com/vasiliy-maslov/fashion-store/internal/payment"
)

const idempotencyHeader = "Idempotency-Key"

type CheckoutRequest struct {
	AddressID string `json:"address_id" validate:"required,uuid"`
}

type CardRequest struct {
	CardNumber string `json:"card_number" validate:"required,numeric,min=12,max=19"`
	CardHolder string `json:"card_holder" validate:"required"`
	Expiry     string `json:"expiry" validate:"required"`
	CVV        string `json:"cvv" validate:"required,numeric,min=3,max=4"`
}

type CreateOrderRequest struct {
	AddressID     string       `json:"address_id" validate:"required,uuid"`
	PaymentMethod string       `json:"payment_method" validate:"required,oneof=cod credit momo zalopay"`
	Card          *CardRequest `json:"card,omitempty" validate:"required_if=PaymentMethod credit"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid shipping completed cancelled"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: newValidator(),
	}
}

// RegisterRoutes mounts the customer order routes. They expect Authenticate
// to have run.
func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders/checkout", h.handleCheckout)
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Put("/orders/{id}/cancel", h.handleCancelOrder)
}

func (h *OrderHandler) RegisterAdminRoutes(router chi.Router) {
	staff := router.With(RequireRole(auth.RoleAdmin, auth.RoleStaff))
	staff.Get("/admin/orders", h.handleListAllOrders)
	staff.Put("/admin/orders/{id}/status", h.handleUpdateStatus)

	router.With(RequireRole(auth.RoleAdmin)).Get("/admin/orders/statistics", h.handleStatistics)
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	var requestPayload CheckoutRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	preview, err := h.service.PreviewCheckout(r.Context(), claims.UserID, uuid.FromStringOrNil(requestPayload.AddressID))
	if err != nil {
		log.Error().Err(err).Stringer("user_id", claims.UserID).Msg("Failed to preview checkout via service")
		respondWithServiceError(w, err, "Failed to preview checkout")
		return
	}

	respondWithJSON(w, http.StatusOK, preview)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	var requestPayload CreateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	in := order.CreateOrderInput{
		UserID:         claims.UserID,
		AddressID:      uuid.FromStringOrNil(requestPayload.AddressID),
		PaymentMethod:  payment.Method(requestPayload.PaymentMethod),
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	}
	if c := requestPayload.Card; c != nil {
		in.Card = &payment.CardData{
			Number: c.CardNumber,
			Holder: c.CardHolder,
			Expiry: c.Expiry,
			CVV:    c.CVV,
		}
	}

	placed, err := h.service.CreateOrder(r.Context(), in)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", claims.UserID).Msg("Failed to create order via service")
		respondWithServiceError(w, err, "Failed to create order")
		return
	}

	status := http.StatusCreated
	if placed.Replayed {
		status = http.StatusOK
	}
	respondWithJSON(w, status, placed)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	filter, ok := parseListFilter(w, r)
	if !ok {
		return
	}

	page, err := h.service.ListOrders(r.Context(), claims.UserID, filter)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", claims.UserID).Msg("Failed to list orders via service")
		respondWithServiceError(w, err, "Failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), claims.UserID, orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to get order by id via service")
		respondWithServiceError(w, err, "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	o, err := h.service.CancelOrder(r.Context(), claims.UserID, orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to cancel order via service")
		respondWithServiceError(w, err, "Failed to cancel order")
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleListAllOrders(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseListFilter(w, r)
	if !ok {
		return
	}

	page, err := h.service.ListAllOrders(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list all orders via service")
		respondWithServiceError(w, err, "Failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload UpdateStatusRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	o, err := h.service.UpdateOrderStatus(r.Context(), orderID, order.Status(requestPayload.Status))
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Str("status", requestPayload.Status).Msg("Failed to update order status via service")
		respondWithServiceError(w, err, "Failed to update order status")
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute order statistics via service")
		respondWithServiceError(w, err, "Failed to compute order statistics")
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

func parseListFilter(w http.ResponseWriter, r *http.Request) (order.ListFilter, bool) {
	var filter order.ListFilter
	q := r.URL.Query()

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"page", &filter.Page},
		{"limit", &filter.Limit},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid "+p.name+" parameter")
			return filter, false
		}
		*p.dst = n
	}

	if raw := q.Get("status"); raw != "" {
		status, err := order.ParseStatus(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid status parameter")
			return filter, false
		}
		filter.Status = &status
	}

	return filter, true
}
