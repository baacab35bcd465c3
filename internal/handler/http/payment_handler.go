package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/fashion-store/internal/order"
	"github.com/vasiliy-maslov/fashion-store/internal/payment"
)

const (
	signatureHeader     = "X-Signature"
	maxCallbackBodySize = 64 << 10
)

type PaymentCallbackResponse struct {
	OrderID     string `json:"order_id"`
	OrderStatus string `json:"order_status"`
}

// PaymentHandler receives wallet provider callbacks. Requests are
// authenticated by their HMAC signature, not by a bearer token.
type PaymentHandler struct {
	service order.Service
	secrets payment.Secrets
}

func NewPaymentHandler(service order.Service, secrets payment.Secrets) *PaymentHandler {
	return &PaymentHandler{service: service, secrets: secrets}
}

func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/payments/callback/{method}", h.handleCallback)
}

func (h *PaymentHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	method := payment.Method(chi.URLParam(r, "method"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBodySize))
	if err != nil {
		log.Warn().Err(err).Stringer("method", method).Msg("Failed to read payment callback body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	cb, err := h.secrets.ParseCallback(method, body, r.Header.Get(signatureHeader))
	if err != nil {
		log.Warn().Err(err).Stringer("method", method).Msg("Rejected payment callback")
		switch {
		case errors.Is(err, payment.ErrUnsupportedMethod):
			respondWithError(w, http.StatusNotFound, "Unsupported payment method")
		case errors.Is(err, payment.ErrInvalidSignature):
			respondWithError(w, http.StatusUnauthorized, "Invalid signature")
		default:
			respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		}
		return
	}

	o, err := h.service.ConfirmPayment(r.Context(), order.PaymentConfirmation{
		OrderID:       cb.OrderID,
		Method:        method,
		TransactionID: cb.TransactionID,
		Succeeded:     cb.Status == payment.StatusSuccess,
	})
	if err != nil {
		log.Error().Err(err).Stringer("order_id", cb.OrderID).Msg("Failed to confirm payment via service")
		respondWithServiceError(w, err, "Failed to confirm payment")
		return
	}

	respondWithJSON(w, http.StatusOK, PaymentCallbackResponse{
		OrderID:     o.ID.String(),
		OrderStatus: string(o.Status),
	})
}
