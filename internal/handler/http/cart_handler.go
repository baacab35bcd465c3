package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/fashion-store/internal/cart"
)

type AddCartItemRequest struct {
	VariantID string `json:"variant_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type CartHandler struct {
	service  cart.Service
	validate *validator.Validate
}

func NewCartHandler(service cart.Service) *CartHandler {
	return &CartHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Get("/cart", h.handleGetCart)
	router.Delete("/cart", h.handleClearCart)
	router.Post("/cart/items", h.handleAddItem)
	router.Put("/cart/items/{id}", h.handleUpdateItem)
	router.Delete("/cart/items/{id}", h.handleRemoveItem)
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	c, err := h.service.GetCart(r.Context(), claims.UserID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", claims.UserID).Msg("Failed to get cart via service")
		respondWithServiceError(w, err, "Failed to get cart")
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}

func (h *CartHandler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Clear(r.Context(), claims.UserID); err != nil {
		log.Error().Err(err).Stringer("user_id", claims.UserID).Msg("Failed to clear cart via service")
		respondWithServiceError(w, err, "Failed to clear cart")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	var requestPayload AddCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	c, err := h.service.AddItem(r.Context(), claims.UserID, uuid.FromStringOrNil(requestPayload.VariantID), requestPayload.Quantity)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", claims.UserID).Msg("Failed to add cart item via service")
		respondWithServiceError(w, err, "Failed to add item to cart")
		return
	}

	respondWithJSON(w, http.StatusCreated, c)
}

func (h *CartHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	itemID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload UpdateCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	c, err := h.service.UpdateItem(r.Context(), claims.UserID, itemID, requestPayload.Quantity)
	if err != nil {
		log.Error().Err(err).Stringer("cart_item_id", itemID).Msg("Failed to update cart item via service")
		respondWithServiceError(w, err, "Failed to update cart item")
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	itemID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	c, err := h.service.RemoveItem(r.Context(), claims.UserID, itemID)
	if err != nil {
		log.Error().Err(err).Stringer("cart_item_id", itemID).Msg("Failed to remove cart item via service")
		respondWithServiceError(w, err, "Failed to remove cart item")
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}
