package checkout_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/dojo-shop/internal/cart"
	"github.com/vasiliy-maslov/dojo-shop/internal/catalog"
	"github.com/vasiliy-maslov/dojo-shop/internal/checkout"
	"github.com/vasiliy-maslov/dojo-shop/internal/shipping"
	"github.com/vasiliy-maslov/dojo-shop/internal/storage"
)

var (
	productID = uuid.Must(uuid.FromString("7d0e3f0c-3b8e-4a34-a1a2-2b5e9b6c1a10"))
	beltID    = uuid.Must(uuid.FromString("7d0e3f0c-3b8e-4a34-a1a2-2b5e9b6c1a11"))
	settings  = checkout.Settings{
		TenantID:    "academy-1",
		RedirectURL: "https://shop.example.com/thanks",
		Shipping: shipping.Config{
			ShippingCost:          decimal.RequireFromString("6.95"),
			FreeShippingThreshold: decimal.RequireFromString("200"),
		},
	}
	customer = checkout.Customer{Name: "Jo Tanaka", Email: "jo@example.com", Phone: "+31 6 1234 5678"}
	address  = &checkout.ShippingAddress{Street: "Dojo Lane 4", City: "Utrecht", PostalCode: "3511 AB", Country: "NL"}
)

type MockPaymentClient struct {
	mock.Mock
}

func (m *MockPaymentClient) CreateOrder(ctx context.Context, req checkout.OrderRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func beltProduct() catalog.Product {
	note := "Embroidery takes two weeks"
	return catalog.Product{
		ID:                      productID,
		Name:                    "Black Belt",
		Slug:                    "black-belt",
		BasePrice:               decimal.RequireFromString("45"),
		AvailabilityStatus:      catalog.StatusInStock,
		AllowPreorder:           true,
		PreorderDiscountPercent: decimal.NewNullDecimal(decimal.RequireFromString("20")),
		PreorderNote:            &note,
		IsActive:                true,
		Variants: []catalog.Variant{
			{ID: beltID, ProductID: productID, StockQuantity: 5, IsActive: true},
		},
	}
}

func newCart(t *testing.T, method shipping.Method) (*cart.Store, *storage.MemoryStore, cart.Keys) {
	t.Helper()
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	keys := cart.NewKeys("shop", "checkout")
	store := cart.NewStore(cart.NewPersister(kv, keys), cart.WithClock(func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	store.Init(ctx)
	store.AddItem(ctx, beltProduct(), beltID, false, 2)
	store.AddItem(ctx, beltProduct(), beltID, true, 1)
	store.SetDeliveryMethod(ctx, method)
	return store, kv, keys
}

func TestOrchestrator_Submit_Success(t *testing.T) {
	store, kv, keys := newCart(t, shipping.MethodShipping)
	payment := new(MockPaymentClient)

	payment.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req checkout.OrderRequest) bool {
		return req.TenantID == "academy-1" &&
			req.RedirectURL == "https://shop.example.com/thanks" &&
			req.CustomerName == "Jo Tanaka" &&
			req.CustomerEmail == "jo@example.com" &&
			req.DeliveryMethod == shipping.MethodShipping &&
			req.ShippingAddress != nil && req.ShippingAddress.City == "Utrecht" &&
			len(req.Items) == 2 &&
			req.Items[0].Quantity == 2 && !req.Items[0].IsPreorder &&
			req.Items[0].Price.Equal(decimal.RequireFromString("45")) &&
			req.Items[1].IsPreorder && req.Items[1].PreorderNote != nil &&
			req.Items[1].Price.Equal(decimal.RequireFromString("36")) &&
			req.Items[1].OriginalPrice.Equal(decimal.RequireFromString("45"))
	})).Return("https://pay.example.com/session/abc", nil).Once()

	flow := checkout.NewOrchestrator(store, payment, settings)
	url, err := flow.Submit(context.Background(), checkout.Input{Customer: customer, ShippingAddress: address, Notes: "  size check please "})

	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/session/abc", url)
	assert.Equal(t, checkout.StateRedirecting, flow.State())
	assert.Empty(t, store.Items())
	_, found, _ := kv.Get(context.Background(), keys.Items)
	assert.False(t, found)
	payment.AssertExpectations(t)

	_, err = flow.Submit(context.Background(), checkout.Input{Customer: customer, ShippingAddress: address})
	assert.ErrorIs(t, err, checkout.ErrCheckoutFinished)
}

func TestOrchestrator_Submit_ValidationErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     shipping.Method
		input      checkout.Input
		wantFields []string
	}{
		{
			name:       "shipping_with_empty_street",
			method:     shipping.MethodShipping,
			input:      checkout.Input{Customer: customer, ShippingAddress: &checkout.ShippingAddress{City: "Utrecht", PostalCode: "3511 AB"}},
			wantFields: []string{"street"},
		},
		{
			name:       "shipping_with_whitespace_fields",
			method:     shipping.MethodShipping,
			input:      checkout.Input{Customer: customer, ShippingAddress: &checkout.ShippingAddress{Street: "  ", City: "\t", PostalCode: "3511 AB"}},
			wantFields: []string{"street", "city"},
		},
		{
			name:       "shipping_without_address",
			method:     shipping.MethodShipping,
			input:      checkout.Input{Customer: customer},
			wantFields: []string{"street", "city", "postal_code"},
		},
		{
			name:       "missing_customer_fields",
			method:     shipping.MethodPickup,
			input:      checkout.Input{Customer: checkout.Customer{Email: "not-an-email"}},
			wantFields: []string{"customer_name", "customer_email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _, _ := newCart(t, tt.method)
			payment := new(MockPaymentClient)
			flow := checkout.NewOrchestrator(store, payment, settings)

			_, err := flow.Submit(context.Background(), tt.input)

			var validationErr *checkout.ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
			for _, field := range tt.wantFields {
				assert.Contains(t, validationErr.Fields, field)
			}
			assert.Len(t, validationErr.Fields, len(tt.wantFields))
			assert.Equal(t, checkout.StateIdle, flow.State())
			assert.Len(t, store.Items(), 2)
			payment.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
		})
	}
}

func TestOrchestrator_Submit_PickupIgnoresAddress(t *testing.T) {
	store, _, _ := newCart(t, shipping.MethodPickup)
	payment := new(MockPaymentClient)
	payment.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req checkout.OrderRequest) bool {
		return req.ShippingAddress == nil && req.DeliveryMethod == shipping.MethodPickup
	})).Return("https://pay.example.com/session/pickup", nil).Once()

	flow := checkout.NewOrchestrator(store, payment, settings)
	_, err := flow.Submit(context.Background(), checkout.Input{Customer: customer, ShippingAddress: &checkout.ShippingAddress{}})

	require.NoError(t, err)
	payment.AssertExpectations(t)
}

func TestOrchestrator_Submit_EmptyCart(t *testing.T) {
	store := cart.NewStore(cart.NewPersister(storage.NewMemoryStore(), cart.NewKeys("shop", "empty")))
	store.Init(context.Background())
	payment := new(MockPaymentClient)

	_, err := checkout.NewOrchestrator(store, payment, settings).Submit(context.Background(), checkout.Input{Customer: customer})

	var validationErr *checkout.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "required", validationErr.Fields["items"])
	payment.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestOrchestrator_Submit_FailureKeepsCart(t *testing.T) {
	store, kv, keys := newCart(t, shipping.MethodPickup)
	before, _, _ := kv.Get(context.Background(), keys.Items)

	payment := new(MockPaymentClient)
	payment.On("CreateOrder", mock.Anything, mock.Anything).
		Return("", &checkout.RequestError{StatusCode: http.StatusConflict, Message: "Black Belt is sold out"}).Once()
	payment.On("CreateOrder", mock.Anything, mock.Anything).
		Return("https://pay.example.com/session/retry", nil).Once()

	flow := checkout.NewOrchestrator(store, payment, settings)
	_, err := flow.Submit(context.Background(), checkout.Input{Customer: customer})

	var reqErr *checkout.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "Black Belt is sold out", err.Error())
	assert.Equal(t, checkout.StateFailed, flow.State())
	assert.Equal(t, err, flow.LastError())
	assert.Len(t, store.Items(), 2)
	after, _, _ := kv.Get(context.Background(), keys.Items)
	assert.Equal(t, before, after)

	// a failed flow can be submitted again by the user
	url, err := flow.Submit(context.Background(), checkout.Input{Customer: customer})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/session/retry", url)
	assert.Nil(t, flow.LastError())
	payment.AssertExpectations(t)
}

func TestOrchestrator_Submit_WrapsTransportErrors(t *testing.T) {
	store, _, _ := newCart(t, shipping.MethodPickup)
	payment := new(MockPaymentClient)
	payment.On("CreateOrder", mock.Anything, mock.Anything).Return("", errors.New("dial tcp: connection refused")).Once()

	_, err := checkout.NewOrchestrator(store, payment, settings).Submit(context.Background(), checkout.Input{Customer: customer})

	var reqErr *checkout.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Len(t, store.Items(), 2)
}

func TestOrchestrator_Submit_EmptyCheckoutURL(t *testing.T) {
	store, _, _ := newCart(t, shipping.MethodPickup)
	payment := new(MockPaymentClient)
	payment.On("CreateOrder", mock.Anything, mock.Anything).Return("", nil).Once()

	flow := checkout.NewOrchestrator(store, payment, settings)
	_, err := flow.Submit(context.Background(), checkout.Input{Customer: customer})

	var reqErr *checkout.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, checkout.StateFailed, flow.State())
	assert.Len(t, store.Items(), 2)
}

func TestOrchestrator_Submit_RejectsConcurrentSubmission(t *testing.T) {
	store, _, _ := newCart(t, shipping.MethodPickup)
	release := make(chan struct{})
	started := make(chan struct{})
	payment := new(MockPaymentClient)
	payment.On("CreateOrder", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return("https://pay.example.com/session/slow", nil).Once()

	flow := checkout.NewOrchestrator(store, payment, settings)
	done := make(chan error, 1)
	go func() {
		_, err := flow.Submit(context.Background(), checkout.Input{Customer: customer})
		done <- err
	}()

	<-started
	assert.Equal(t, checkout.StateSubmitting, flow.State())
	_, err := flow.Submit(context.Background(), checkout.Input{Customer: customer})
	assert.ErrorIs(t, err, checkout.ErrCheckoutInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, checkout.StateRedirecting, flow.State())
	payment.AssertExpectations(t)
}

func TestCheckoutGating_NoRequestsOnValidationError(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(checkout.OrderResponse{CheckoutURL: "https://pay.example.com/x"})
	}))
	defer server.Close()

	store, _, _ := newCart(t, shipping.MethodShipping)
	client := checkout.NewHTTPPaymentClient(server.URL, server.Client())
	input := checkout.Input{Customer: customer, ShippingAddress: &checkout.ShippingAddress{Street: "", City: "Utrecht", PostalCode: "3511 AB"}}

	_, err := checkout.NewOrchestrator(store, client, settings).Submit(context.Background(), input)

	var validationErr *checkout.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
	assert.Len(t, store.Items(), 2)
}

func TestOrchestrator_Submit_KeepsUnitsAddedDuringPayment(t *testing.T) {
	store, kv, keys := newCart(t, shipping.MethodPickup)
	ctx := context.Background()
	payment := new(MockPaymentClient)
	payment.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req checkout.OrderRequest) bool {
		return len(req.Items) == 2 && req.Items[0].Quantity == 2 && req.Items[1].Quantity == 1
	})).
		Run(func(mock.Arguments) {
			// the customer keeps shopping in another tab while payment is pending
			store.UpdateQuantity(ctx, beltID, 4)
		}).
		Return("https://pay.example.com/session/abc", nil).Once()

	_, err := checkout.NewOrchestrator(store, payment, settings).Submit(ctx, checkout.Input{Customer: customer})
	require.NoError(t, err)

	items := store.Items()
	require.Len(t, items, 2)
	assert.False(t, items[0].IsPreorder)
	assert.Equal(t, 2, items[0].Quantity)
	assert.True(t, items[1].IsPreorder)
	assert.Equal(t, 3, items[1].Quantity)

	raw, found, _ := kv.Get(ctx, keys.Items)
	require.True(t, found)
	var stored []cart.LineItem
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Len(t, stored, 2)
	payment.AssertExpectations(t)
}
