package catalog

import (
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type AvailabilityStatus string

const (
	StatusInStock      AvailabilityStatus = "in_stock"
	StatusPresale      AvailabilityStatus = "presale"
	StatusOutOfStock   AvailabilityStatus = "out_of_stock"
	StatusDiscontinued AvailabilityStatus = "discontinued"
)

func (s AvailabilityStatus) String() string {
	return string(s)
}

// Product is a sellable catalog item. The cart engine only reads it.
type Product struct {
	ID                      uuid.UUID           `json:"id" db:"id"`
	Name                    string              `json:"name" db:"name"`
	Slug                    string              `json:"slug" db:"slug"`
	BasePrice               decimal.Decimal     `json:"base_price" db:"base_price"`
	AvailabilityStatus      AvailabilityStatus  `json:"availability_status" db:"availability_status"`
	PresalePrice            decimal.NullDecimal `json:"presale_price" db:"presale_price"`
	PresaleEndsAt           *time.Time          `json:"presale_ends_at" db:"presale_ends_at"`
	AllowPreorder           bool                `json:"allow_preorder" db:"allow_preorder"`
	PreorderDiscountPercent decimal.NullDecimal `json:"preorder_discount_percent" db:"preorder_discount_percent"`
	PreorderNote            *string             `json:"preorder_note" db:"preorder_note"`
	IsActive                bool                `json:"is_active" db:"is_active"`
	ImageURLs               []string            `json:"image_urls" db:"image_urls"`
	Variants                []Variant           `json:"variants" db:"-"`
}

// PrimaryImage returns the first image reference or "" when the product has none.
func (p Product) PrimaryImage() string {
	if len(p.ImageURLs) == 0 {
		return ""
	}
	return p.ImageURLs[0]
}

// Variant is a purchasable SKU of a product.
type Variant struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	ProductID       uuid.UUID       `json:"product_id" db:"product_id"`
	Size            *string         `json:"size" db:"size"`
	Color           *string         `json:"color" db:"color"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment" db:"price_adjustment"`
	StockQuantity   int             `json:"stock_quantity" db:"stock_quantity"`
	LowStockAlert   int             `json:"low_stock_alert" db:"low_stock_alert"`
	IsActive        bool            `json:"is_active" db:"is_active"`
}

// DisplayName joins size and color, e.g. "M / Black".
func (v Variant) DisplayName() string {
	parts := make([]string, 0, 2)
	if v.Size != nil && *v.Size != "" {
		parts = append(parts, *v.Size)
	}
	if v.Color != nil && *v.Color != "" {
		parts = append(parts, *v.Color)
	}
	return strings.Join(parts, " / ")
}

// IsLowStock reports whether the variant is at or below its alert level but not sold out.
func (v Variant) IsLowStock() bool {
	return v.StockQuantity > 0 && v.StockQuantity <= v.LowStockAlert
}

// FindVariant looks a variant up by id.
func (p Product) FindVariant(id uuid.UUID) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}
