package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// IsInPresale reports whether the presale window of p is open at the given moment.
// EffectivePrice uses the same predicate, so badge and price never disagree.
func IsInPresale(p Product, at time.Time) bool {
	if p.AvailabilityStatus != StatusPresale {
		return false
	}
	return p.PresaleEndsAt == nil || p.PresaleEndsAt.After(at)
}

// EffectivePrice returns the presale price while the presale is open and
// falls back to the base price otherwise, including when no presale price is set.
func EffectivePrice(p Product, at time.Time) decimal.Decimal {
	if IsInPresale(p, at) && p.PresalePrice.Valid {
		return p.PresalePrice.Decimal
	}
	return p.BasePrice
}

func CanPreorder(p Product) bool {
	return p.AllowPreorder && p.IsActive
}

// PreorderPrice applies the preorder discount to the base price.
// It is derived from BasePrice, never from EffectivePrice: presale and preorder
// discounts do not stack.
func PreorderPrice(p Product) decimal.Decimal {
	if !CanPreorder(p) || !p.PreorderDiscountPercent.Valid {
		return p.BasePrice
	}
	factor := decimal.NewFromInt(1).Sub(p.PreorderDiscountPercent.Decimal.Div(hundred))
	return p.BasePrice.Mul(factor)
}

// HasStock is false for out-of-stock and discontinued products, otherwise true
// when at least one active variant has units left.
func HasStock(p Product, variants []Variant) bool {
	if p.AvailabilityStatus == StatusOutOfStock || p.AvailabilityStatus == StatusDiscontinued {
		return false
	}
	for _, v := range variants {
		if v.IsActive && v.StockQuantity > 0 {
			return true
		}
	}
	return false
}

// VariantUnitPrice adds the variant adjustment to the mode price. The result is
// not floored at zero.
func VariantUnitPrice(basePriceForMode decimal.Decimal, v Variant) decimal.Decimal {
	return basePriceForMode.Add(v.PriceAdjustment)
}
