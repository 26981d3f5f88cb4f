package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/dojo-shop/internal/catalog"
)

type VariantPricing struct {
	VariantID         uuid.UUID       `json:"variant_id"`
	Name              string          `json:"name"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	PreorderUnitPrice decimal.Decimal `json:"preorder_unit_price"`
	StockQuantity     int             `json:"stock_quantity"`
	LowStock          bool            `json:"low_stock"`
	IsActive          bool            `json:"is_active"`
}

type PricingResponse struct {
	ProductID      uuid.UUID                  `json:"product_id"`
	Status         catalog.AvailabilityStatus `json:"availability_status"`
	BasePrice      decimal.Decimal            `json:"base_price"`
	EffectivePrice decimal.Decimal            `json:"effective_price"`
	IsInPresale    bool                       `json:"is_in_presale"`
	PresaleEndsAt  *time.Time                 `json:"presale_ends_at,omitempty"`
	CanPreorder    bool                       `json:"can_preorder"`
	PreorderPrice  decimal.Decimal            `json:"preorder_price"`
	PreorderNote   *string                    `json:"preorder_note,omitempty"`
	HasStock       bool                       `json:"has_stock"`
	Variants       []VariantPricing           `json:"variants"`
}

type ProductHandler struct {
	products catalog.Repository
	now      func() time.Time
}

func NewProductHandler(products catalog.Repository, now func() time.Time) *ProductHandler {
	if now == nil {
		now = time.Now
	}
	return &ProductHandler{products: products, now: now}
}

func (h *ProductHandler) RegisterRoutes(router chi.Router) {
	router.Get("/products/{id}/pricing", h.handleGetPricing)
}

func (h *ProductHandler) handleGetPricing(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	productID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("product_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	product, err := h.products.GetProductByID(r.Context(), productID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get product by id via repository")

		clientMessage := "Failed to get product"
		if errors.Is(err, catalog.ErrProductNotFound) {
			clientMessage = "Product not found"
		}

		respondWithError(w, mapErrorToStatusCode(err), clientMessage)
		return
	}

	respondWithJSON(w, http.StatusOK, pricingFor(*product, h.now()))
}

func pricingFor(p catalog.Product, at time.Time) PricingResponse {
	effective := catalog.EffectivePrice(p, at)
	preorder := catalog.PreorderPrice(p)

	variants := make([]VariantPricing, 0, len(p.Variants))
	for _, v := range p.Variants {
		variants = append(variants, VariantPricing{
			VariantID:         v.ID,
			Name:              v.DisplayName(),
			UnitPrice:         catalog.VariantUnitPrice(effective, v),
			PreorderUnitPrice: catalog.VariantUnitPrice(preorder, v),
			StockQuantity:     v.StockQuantity,
			LowStock:          v.IsLowStock(),
			IsActive:          v.IsActive,
		})
	}

	resp := PricingResponse{
		ProductID:      p.ID,
		Status:         p.AvailabilityStatus,
		BasePrice:      p.BasePrice,
		EffectivePrice: effective,
		IsInPresale:    catalog.IsInPresale(p, at),
		CanPreorder:    catalog.CanPreorder(p),
		PreorderPrice:  preorder,
		HasStock:       catalog.HasStock(p, p.Variants),
		Variants:       variants,
	}
	if resp.IsInPresale {
		resp.PresaleEndsAt = p.PresaleEndsAt
	}
	if resp.CanPreorder {
		resp.PreorderNote = p.PreorderNote
	}
	return resp
}
