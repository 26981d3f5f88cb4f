package shipping

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Method is how an order reaches the customer.
type Method string

const (
	MethodPickup   Method = "pickup"
	MethodShipping Method = "shipping"
)

func (m Method) String() string {
	return string(m)
}

func (m Method) Valid() bool {
	return m == MethodPickup || m == MethodShipping
}

// Config holds the shop-wide shipping settings.
// A FreeShippingThreshold of zero disables free shipping.
type Config struct {
	ShippingCost          decimal.Decimal `yaml:"shipping_cost" json:"shipping_cost"`
	FreeShippingThreshold decimal.Decimal `yaml:"free_shipping_threshold" json:"free_shipping_threshold"`
}

// Calculate returns the shipping cost for a subtotal. Pickup is always free.
func Calculate(subtotal decimal.Decimal, method Method, cfg Config) decimal.Decimal {
	if method != MethodShipping {
		return decimal.Zero
	}
	if cfg.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return cfg.ShippingCost
}

var ErrInvalidDeliveryMethod = errors.New("invalid delivery method")

// ParseMethod accepts only "pickup" and "shipping".
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDeliveryMethod, s)
	}
	return m, nil
}
