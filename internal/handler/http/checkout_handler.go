package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/dojo-shop/internal/checkout"
)

type CheckoutRequest struct {
	CustomerName    string                    `json:"customer_name"`
	CustomerEmail   string                    `json:"customer_email"`
	CustomerPhone   string                    `json:"customer_phone,omitempty"`
	ShippingAddress *checkout.ShippingAddress `json:"shipping_address,omitempty"`
	Notes           string                    `json:"notes,omitempty"`
}

type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

type CheckoutHandler struct {
	sessions *checkout.Sessions
}

func NewCheckoutHandler(sessions *checkout.Sessions) *CheckoutHandler {
	return &CheckoutHandler{sessions: sessions}
}

func (h *CheckoutHandler) RegisterRoutes(router chi.Router) {
	router.Post("/checkout", h.handleCheckout)
}

func (h *CheckoutHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var requestPayload CheckoutRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode checkout request")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	input := checkout.Input{
		Customer: checkout.Customer{
			Name:  requestPayload.CustomerName,
			Email: requestPayload.CustomerEmail,
			Phone: requestPayload.CustomerPhone,
		},
		ShippingAddress: requestPayload.ShippingAddress,
		Notes:           requestPayload.Notes,
	}

	checkoutURL, err := h.sessions.Submit(r.Context(), sessionID(r), input)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var validationErr *checkout.ValidationError
		var requestErr *checkout.RequestError
		switch {
		case errors.As(err, &validationErr):
			respondWithJSON(w, statusCode, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: validationErr.Fields,
			})
		case errors.As(err, &requestErr):
			respondWithError(w, statusCode, requestErr.Error())
		case errors.Is(err, checkout.ErrCheckoutInProgress):
			respondWithError(w, statusCode, "Checkout already in progress")
		default:
			log.Error().Err(err).Msg("Failed to submit checkout")
			respondWithError(w, statusCode, "Failed to submit checkout")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, CheckoutResponse{CheckoutURL: checkoutURL})
}
