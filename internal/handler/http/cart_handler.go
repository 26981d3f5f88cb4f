package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/dojo-shop/internal/cart"
	"github.com/vasiliy-maslov/dojo-shop/internal/catalog"
	"github.com/vasiliy-maslov/dojo-shop/internal/shipping"
)

type AddItemRequest struct {
	ProductID  string `json:"product_id" validate:"required,uuid"`
	VariantID  string `json:"variant_id" validate:"required,uuid"`
	IsPreorder bool   `json:"is_preorder"`
	Quantity   int    `json:"quantity" validate:"omitempty,min=1"`
}

type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type DeliveryMethodRequest struct {
	DeliveryMethod string `json:"delivery_method" validate:"required,oneof=pickup shipping"`
}

type CartResponse struct {
	cart.Summary
	Change *cart.Change `json:"change,omitempty"`
}

type CartHandler struct {
	carts    *cart.Registry
	products catalog.Repository
	shipping shipping.Config
	validate *validator.Validate
}

func NewCartHandler(carts *cart.Registry, products catalog.Repository, shippingCfg shipping.Config) *CartHandler {
	return &CartHandler{
		carts:    carts,
		products: products,
		shipping: shippingCfg,
		validate: validator.New(),
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Get("/cart", h.handleGetCart)
	router.Delete("/cart", h.handleClearCart)
	router.Post("/cart/items", h.handleAddItem)
	router.Patch("/cart/items/{variantID}", h.handleUpdateQuantity)
	router.Delete("/cart/items/{variantID}", h.handleRemoveItem)
	router.Put("/cart/delivery-method", h.handleSetDeliveryMethod)
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	store := h.carts.Store(r.Context(), sessionID(r))
	respondWithJSON(w, http.StatusOK, CartResponse{Summary: store.Summary(h.shipping)})
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var requestPayload AddItemRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	productID := uuid.FromStringOrNil(requestPayload.ProductID)
	variantID := uuid.FromStringOrNil(requestPayload.VariantID)

	product, err := h.products.GetProductByID(r.Context(), productID)
	if err != nil {
		log.Error().Err(err).Stringer("product_id", productID).Msg("Failed to load product for cart")

		statusCode := mapErrorToStatusCode(err)
		clientMessage := "Failed to load product"
		if errors.Is(err, catalog.ErrProductNotFound) {
			clientMessage = "Product not found"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	if variant, ok := product.FindVariant(variantID); !ok || !variant.IsActive {
		respondWithError(w, http.StatusNotFound, "Variant not found")
		return
	}
	if requestPayload.IsPreorder && !catalog.CanPreorder(*product) {
		respondWithError(w, http.StatusBadRequest, "Product cannot be preordered")
		return
	}

	store := h.carts.Store(r.Context(), sessionID(r))
	change := store.AddItem(r.Context(), *product, variantID, requestPayload.IsPreorder, requestPayload.Quantity)

	respondWithJSON(w, http.StatusOK, CartResponse{Summary: store.Summary(h.shipping), Change: &change})
}

func (h *CartHandler) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	variantID, ok := variantIDParam(w, r)
	if !ok {
		return
	}

	var requestPayload UpdateQuantityRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	store := h.carts.Store(r.Context(), sessionID(r))
	change := store.UpdateQuantity(r.Context(), variantID, *requestPayload.Quantity)

	respondWithJSON(w, http.StatusOK, CartResponse{Summary: store.Summary(h.shipping), Change: &change})
}

// handleRemoveItem removes every line of the variant unless ?mode=stock or
// ?mode=preorder narrows it to one line.
func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	variantID, ok := variantIDParam(w, r)
	if !ok {
		return
	}

	store := h.carts.Store(r.Context(), sessionID(r))
	switch mode := r.URL.Query().Get("mode"); mode {
	case "":
		store.RemoveItem(r.Context(), variantID)
	case "stock":
		store.RemoveLine(r.Context(), variantID, false)
	case "preorder":
		store.RemoveLine(r.Context(), variantID, true)
	default:
		respondWithError(w, http.StatusBadRequest, "Invalid mode parameter")
		return
	}

	respondWithJSON(w, http.StatusOK, CartResponse{Summary: store.Summary(h.shipping)})
}

func (h *CartHandler) handleSetDeliveryMethod(w http.ResponseWriter, r *http.Request) {
	var requestPayload DeliveryMethodRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	method, err := shipping.ParseMethod(requestPayload.DeliveryMethod)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Invalid delivery method")
		return
	}

	store := h.carts.Store(r.Context(), sessionID(r))
	store.SetDeliveryMethod(r.Context(), method)

	respondWithJSON(w, http.StatusOK, CartResponse{Summary: store.Summary(h.shipping)})
}

func (h *CartHandler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	store := h.carts.Store(r.Context(), sessionID(r))
	store.Clear(r.Context())

	respondWithJSON(w, http.StatusOK, CartResponse{Summary: store.Summary(h.shipping)})
}

func variantIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "variantID")
	variantID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("variant_id", idParam).Msg("Failed to parse variant id from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid variant id")
		return uuid.Nil, false
	}
	return variantID, true
}
