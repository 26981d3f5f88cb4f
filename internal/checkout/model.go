package checkout

import (
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/dojo-shop/internal/shipping"
)

type Customer struct {
	Name  string `json:"customer_name" validate:"required"`
	Email string `json:"customer_email" validate:"required,email"`
	Phone string `json:"customer_phone,omitempty"`
}

type ShippingAddress struct {
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country"`
}

// Input is what the customer fills in on the checkout form. ShippingAddress is
// only looked at for shipping orders.
type Input struct {
	Customer        Customer
	ShippingAddress *ShippingAddress
	Notes           string
}

type OrderItem struct {
	ProductID     uuid.UUID       `json:"product_id"`
	ProductName   string          `json:"product_name"`
	VariantID     uuid.UUID       `json:"variant_id"`
	VariantName   string          `json:"variant_name"`
	Price         decimal.Decimal `json:"price"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Quantity      int             `json:"quantity"`
	IsPreorder    bool            `json:"is_preorder"`
	PreorderNote  *string         `json:"preorder_note"`
}

// OrderRequest is the body sent to the payment service. Prices in it are
// advisory; the payment service re-checks prices and stock.
type OrderRequest struct {
	TenantID        string           `json:"tenant_id"`
	Items           []OrderItem      `json:"items"`
	CustomerName    string           `json:"customer_name"`
	CustomerEmail   string           `json:"customer_email"`
	CustomerPhone   string           `json:"customer_phone,omitempty"`
	DeliveryMethod  shipping.Method  `json:"delivery_method"`
	ShippingAddress *ShippingAddress `json:"shipping_address,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	RedirectURL     string           `json:"redirect_url"`
}

type OrderResponse struct {
	CheckoutURL string `json:"checkout_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// State of a checkout flow.
type State string

const (
	StateIdle        State = "idle"
	StateSubmitting  State = "submitting"
	StateRedirecting State = "redirecting"
	StateFailed      State = "failed"
)

func (s State) String() string {
	return string(s)
}

var allowedTransitions = map[State]map[State]bool{
	StateIdle: {
		StateSubmitting: true,
	},
	StateSubmitting: {
		StateRedirecting: true,
		StateFailed:      true,
	},
	StateFailed: {
		StateIdle: true,
	},
	StateRedirecting: {},
}
