package cart

import (
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/dojo-shop/internal/shipping"
)

// LineItem is one row of the cart. A line is identified by (VariantID, IsPreorder):
// the same variant bought from stock and as a preorder are two separate lines.
type LineItem struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	ProductSlug string    `json:"product_slug"`
	VariantID   uuid.UUID `json:"variant_id"`
	VariantName string    `json:"variant_name"`
	// Price is the unit price captured when the line was added. It is never
	// re-read from the catalog.
	Price          decimal.Decimal `json:"price"`
	OriginalPrice  decimal.Decimal `json:"original_price"`
	Quantity       int             `json:"quantity"`
	ImageURL       string          `json:"image_url"`
	StockAvailable int             `json:"stock_available"`
	IsPreorder     bool            `json:"is_preorder"`
	PreorderNote   *string         `json:"preorder_note"`
}

func (i LineItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i LineItem) matches(variantID uuid.UUID, isPreorder bool) bool {
	return i.VariantID == variantID && i.IsPreorder == isPreorder
}

// Summary is the derived view of a cart. DiscountAmount is always zero until
// discount codes exist.
type Summary struct {
	Items          []LineItem      `json:"items"`
	DeliveryMethod shipping.Method `json:"delivery_method"`
	ItemCount      int             `json:"item_count"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	ShippingAmount decimal.Decimal `json:"shipping_amount"`
	Total          decimal.Decimal `json:"total"`
}

// Change reports the quantity a line ended up with and whether the request was
// cut down to the available stock.
type Change struct {
	Quantity int  `json:"quantity"`
	Clamped  bool `json:"clamped"`
}

func subtotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func itemCount(items []LineItem) int {
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

// clampQuantity limits stock lines to limit. Preorder lines are unbounded.
func clampQuantity(requested, limit int, isPreorder bool) (int, bool) {
	if isPreorder || requested <= limit {
		return requested, false
	}
	return limit, true
}
