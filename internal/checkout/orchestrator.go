package checkout

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/dojo-shop/internal/cart"
	"github.com/vasiliy-maslov/dojo-shop/internal/shipping"
)

// Cart is the part of the cart store a checkout reads and clears.
type Cart interface {
	Summary(cfg shipping.Config) cart.Summary
	ClearSubmitted(ctx context.Context, submitted []cart.LineItem)
}

type PaymentClient interface {
	// CreateOrder returns the URL the customer is sent to for payment.
	CreateOrder(ctx context.Context, req OrderRequest) (string, error)
}

type Settings struct {
	TenantID    string
	RedirectURL string
	Shipping    shipping.Config
}

// Orchestrator runs one checkout flow over a cart:
// idle -> submitting -> redirecting | failed, and failed -> idle.
// redirecting is final.
type Orchestrator struct {
	mu       sync.Mutex
	state    State
	lastErr  error
	cart     Cart
	payment  PaymentClient
	settings Settings
	validate *validator.Validate
}

func NewOrchestrator(c Cart, payment PaymentClient, settings Settings) *Orchestrator {
	return &Orchestrator{
		state:    StateIdle,
		cart:     c,
		payment:  payment,
		settings: settings,
		validate: newValidator(),
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

// LastError is the error of the most recent failed submission, if any.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.lastErr
}

// Submit validates the input, sends the order to the payment service and, on
// success, takes the ordered lines out of the cart before returning the
// checkout URL. On failure the cart is left as it was and nothing is retried.
func (o *Orchestrator) Submit(ctx context.Context, input Input) (string, error) {
	o.mu.Lock()
	switch o.state {
	case StateSubmitting:
		o.mu.Unlock()
		return "", ErrCheckoutInProgress
	case StateRedirecting:
		o.mu.Unlock()
		return "", ErrCheckoutFinished
	case StateFailed:
		o.transition(StateIdle)
	}

	summary := o.cart.Summary(o.settings.Shipping)
	input = normalize(input)
	if err := o.validateInput(summary, input); err != nil {
		o.mu.Unlock()
		log.Warn().Err(err).Msg("checkout: input rejected")
		return "", err
	}

	o.transition(StateSubmitting)
	o.mu.Unlock()

	req := o.buildRequest(summary, input)
	log.Info().
		Str("tenant_id", req.TenantID).
		Int("items", len(req.Items)).
		Stringer("delivery_method", summary.DeliveryMethod).
		Stringer("subtotal", summary.Subtotal).
		Stringer("shipping", summary.ShippingAmount).
		Stringer("total", summary.Total).
		Msg("checkout: submitting order")

	checkoutURL, err := o.payment.CreateOrder(ctx, req)
	if err == nil && checkoutURL == "" {
		err = &RequestError{Message: "payment service returned no checkout url"}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		var reqErr *RequestError
		if !errors.As(err, &reqErr) {
			err = &RequestError{Err: err}
		}
		o.lastErr = err
		o.transition(StateFailed)
		log.Error().Err(err).Msg("checkout: order creation failed, cart kept")
		return "", err
	}

	o.cart.ClearSubmitted(ctx, summary.Items)
	o.lastErr = nil
	o.transition(StateRedirecting)
	log.Info().Str("checkout_url", checkoutURL).Msg("checkout: order created, redirecting")

	return checkoutURL, nil
}

// transition must be called with mu held.
func (o *Orchestrator) transition(next State) {
	if !allowedTransitions[o.state][next] {
		panic(fmt.Sprintf("checkout: invalid state transition from %s to %s", o.state, next))
	}
	o.state = next
}

func (o *Orchestrator) validateInput(summary cart.Summary, input Input) error {
	fields := make(map[string]string)

	if len(summary.Items) == 0 {
		fields["items"] = "required"
	}

	collect := func(err error) {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			for _, fe := range validationErrors {
				fields[fe.Field()] = fe.Tag()
			}
		}
	}

	collect(o.validate.Struct(input.Customer))

	if summary.DeliveryMethod == shipping.MethodShipping {
		if input.ShippingAddress == nil {
			fields["street"] = "required"
			fields["city"] = "required"
			fields["postal_code"] = "required"
		} else {
			collect(o.validate.Struct(input.ShippingAddress))
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (o *Orchestrator) buildRequest(summary cart.Summary, input Input) OrderRequest {
	items := make([]OrderItem, 0, len(summary.Items))
	for _, item := range summary.Items {
		items = append(items, OrderItem{
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			VariantID:     item.VariantID,
			VariantName:   item.VariantName,
			Price:         item.Price,
			OriginalPrice: item.OriginalPrice,
			Quantity:      item.Quantity,
			IsPreorder:    item.IsPreorder,
			PreorderNote:  item.PreorderNote,
		})
	}

	req := OrderRequest{
		TenantID:       o.settings.TenantID,
		Items:          items,
		CustomerName:   input.Customer.Name,
		CustomerEmail:  input.Customer.Email,
		CustomerPhone:  input.Customer.Phone,
		DeliveryMethod: summary.DeliveryMethod,
		Notes:          input.Notes,
		RedirectURL:    o.settings.RedirectURL,
	}
	if summary.DeliveryMethod == shipping.MethodShipping {
		req.ShippingAddress = input.ShippingAddress
	}
	return req
}

func normalize(input Input) Input {
	input.Customer.Name = strings.TrimSpace(input.Customer.Name)
	input.Customer.Email = strings.TrimSpace(input.Customer.Email)
	input.Customer.Phone = strings.TrimSpace(input.Customer.Phone)
	input.Notes = strings.TrimSpace(input.Notes)
	if input.ShippingAddress != nil {
		addr := *input.ShippingAddress
		addr.Street = strings.TrimSpace(addr.Street)
		addr.City = strings.TrimSpace(addr.City)
		addr.PostalCode = strings.TrimSpace(addr.PostalCode)
		addr.Country = strings.TrimSpace(addr.Country)
		input.ShippingAddress = &addr
	}
	return input
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}
