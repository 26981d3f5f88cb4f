package cart_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/dojo-shop/internal/cart"
	"github.com/vasiliy-maslov/dojo-shop/internal/shipping"
	"github.com/vasiliy-maslov/dojo-shop/internal/storage"
)

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

type MockKeyValueStore struct {
	mock.Mock
}

func (m *MockKeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockKeyValueStore) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockKeyValueStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func TestPersistence_RoundTrip(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()
	clock := cart.WithClock(func() time.Time { return fixedNow })
	keys := cart.NewKeys("shop", "round-trip")

	original := cart.NewStore(cart.NewPersister(kv, keys), clock)
	original.Init(ctx)
	original.AddItem(ctx, testProduct(), giMedium, false, 2)
	original.AddItem(ctx, testProduct(), giLarge, true, 1)
	original.SetDeliveryMethod(ctx, shipping.MethodShipping)

	reloaded := cart.NewStore(cart.NewPersister(kv, keys), clock)
	reloaded.Init(ctx)

	if diff := cmp.Diff(original.Items(), reloaded.Items(), decimalComparer); diff != "" {
		t.Errorf("items mismatch after reload (-want +got):\n%s", diff)
	}
	assert.Equal(t, shipping.MethodShipping, reloaded.DeliveryMethod())
	require.Len(t, reloaded.Items(), 2)
	assert.True(t, reloaded.Items()[1].IsPreorder)
}

func TestPersistence_RoundTrip_NumericPrices(t *testing.T) {
	previous := decimal.MarshalJSONWithoutQuotes
	decimal.MarshalJSONWithoutQuotes = true
	t.Cleanup(func() { decimal.MarshalJSONWithoutQuotes = previous })

	kv := storage.NewMemoryStore()
	ctx := context.Background()
	clock := cart.WithClock(func() time.Time { return fixedNow })
	keys := cart.NewKeys("shop", "numeric")

	original := cart.NewStore(cart.NewPersister(kv, keys), clock)
	original.Init(ctx)
	original.AddItem(ctx, testProduct(), giMedium, false, 2)
	original.AddItem(ctx, testProduct(), giLarge, true, 1)

	raw, found, err := kv.Get(ctx, keys.Items)
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, raw, `"price":80,`)
	assert.Contains(t, raw, `"price":95,`)

	reloaded := cart.NewStore(cart.NewPersister(kv, keys), clock)
	reloaded.Init(ctx)

	if diff := cmp.Diff(original.Items(), reloaded.Items(), decimalComparer); diff != "" {
		t.Errorf("items mismatch after reload (-want +got):\n%s", diff)
	}
	assert.True(t, dec("255").Equal(reloaded.Subtotal()))
}

func TestPersistence_StoredFieldNames(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()

	persister := cart.NewPersister(kv, cart.NewKeys("shop", "names"))
	require.NoError(t, persister.SaveItems(ctx, []cart.LineItem{{
		ProductID: productID, VariantID: giMedium, Quantity: 1, StockAvailable: 3, Price: dec("80"), OriginalPrice: dec("80"),
	}}))

	raw, found, err := kv.Get(ctx, "shop:names:items")
	require.NoError(t, err)
	require.True(t, found)
	for _, field := range []string{
		"product_id", "product_name", "product_slug", "variant_id", "variant_name", "price",
		"original_price", "quantity", "image_url", "stock_available", "is_preorder", "preorder_note",
	} {
		assert.Contains(t, raw, `"`+field+`"`)
	}
}

func TestPersistence_LoadDefaults(t *testing.T) {
	tests := []struct {
		name       string
		items      string
		method     string
		wantItems  int
		wantMethod shipping.Method
		wantErr    bool
	}{
		{"nothing_stored", "", "", 0, shipping.MethodPickup, false},
		{"corrupt_items_json", "{broken", "shipping", 0, shipping.MethodShipping, true},
		{"wrong_shape", `{"items":[]}`, "", 0, shipping.MethodPickup, true},
		{"unknown_method", "[]", "teleport", 0, shipping.MethodPickup, true},
		{"empty_array", "[]", "pickup", 0, shipping.MethodPickup, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := storage.NewMemoryStore()
			ctx := context.Background()
			keys := cart.NewKeys("shop", "s")
			if tt.items != "" {
				require.NoError(t, kv.Set(ctx, keys.Items, tt.items))
			}
			if tt.method != "" {
				require.NoError(t, kv.Set(ctx, keys.DeliveryMethod, tt.method))
			}

			state, err := cart.NewPersister(kv, keys).Load(ctx)

			if tt.wantErr {
				var storageErr *cart.StorageError
				assert.True(t, errors.As(err, &storageErr))
			} else {
				assert.NoError(t, err)
			}
			assert.NotNil(t, state.Items)
			assert.Len(t, state.Items, tt.wantItems)
			assert.Equal(t, tt.wantMethod, state.DeliveryMethod)
		})
	}
}

func TestPersistence_SanitizesStoredItems(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()
	keys := cart.NewKeys("shop", "legacy")
	other := uuid.Must(uuid.NewV4())

	stored := `[
		{"product_id":"` + productID.String() + `","variant_id":"` + giMedium.String() + `","price":80,"quantity":9,"stock_available":3,"is_preorder":false},
		{"product_id":"` + productID.String() + `","variant_id":"` + giMedium.String() + `","price":80,"quantity":1,"stock_available":3,"is_preorder":false},
		{"product_id":"` + productID.String() + `","variant_id":"` + giMedium.String() + `","price":"95","quantity":12,"stock_available":0,"is_preorder":true},
		{"product_id":"` + productID.String() + `","variant_id":"` + other.String() + `","price":10,"quantity":0,"stock_available":5,"is_preorder":false},
		{"product_id":"` + productID.String() + `","variant_id":"` + giLarge.String() + `","price":10,"quantity":1,"stock_available":0,"is_preorder":false},
		{"variant_id":"` + giSoldOut.String() + `","price":10,"quantity":1,"stock_available":5}
	]`
	require.NoError(t, kv.Set(ctx, keys.Items, stored))

	state, err := cart.NewPersister(kv, keys).Load(ctx)
	require.NoError(t, err)

	require.Len(t, state.Items, 2)
	assert.Equal(t, giMedium, state.Items[0].VariantID)
	assert.False(t, state.Items[0].IsPreorder)
	assert.Equal(t, 3, state.Items[0].Quantity)
	assert.True(t, state.Items[1].IsPreorder)
	assert.Equal(t, 12, state.Items[1].Quantity)
	assert.True(t, dec("95").Equal(state.Items[1].Price))
}

func TestStore_ReadFailureFallsBackToEmptyCart(t *testing.T) {
	kv := new(MockKeyValueStore)
	keys := cart.NewKeys("shop", "down")
	kv.On("Get", mock.Anything, keys.Items).Return("", false, errors.New("connection refused")).Once()
	kv.On("Get", mock.Anything, keys.DeliveryMethod).Return("", false, errors.New("connection refused")).Once()

	store := cart.NewStore(cart.NewPersister(kv, keys))
	assert.NotPanics(t, func() { store.Init(context.Background()) })

	assert.Empty(t, store.Items())
	assert.Equal(t, shipping.MethodPickup, store.DeliveryMethod())
	kv.AssertExpectations(t)
}

func TestStore_InitLoadsOnce(t *testing.T) {
	kv := new(MockKeyValueStore)
	keys := cart.NewKeys("shop", "once")
	kv.On("Get", mock.Anything, keys.Items).Return("[]", true, nil).Once()
	kv.On("Get", mock.Anything, keys.DeliveryMethod).Return("shipping", true, nil).Once()

	store := cart.NewStore(cart.NewPersister(kv, keys))
	store.Init(context.Background())
	store.Init(context.Background())

	assert.Equal(t, shipping.MethodShipping, store.DeliveryMethod())
	kv.AssertExpectations(t)
}

func TestStore_WriteFailureKeepsMutation(t *testing.T) {
	kv := new(MockKeyValueStore)
	keys := cart.NewKeys("shop", "readonly")
	kv.On("Get", mock.Anything, mock.Anything).Return("", false, nil)
	kv.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("quota exceeded"))
	kv.On("Delete", mock.Anything, mock.Anything).Return(errors.New("quota exceeded"))

	store := cart.NewStore(cart.NewPersister(kv, keys), cart.WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()
	store.Init(ctx)

	change := store.AddItem(ctx, testProduct(), giLarge, false, 2)
	assert.Equal(t, 2, change.Quantity)
	assert.Equal(t, 2, store.ItemCount())

	store.SetDeliveryMethod(ctx, shipping.MethodShipping)
	assert.Equal(t, shipping.MethodShipping, store.DeliveryMethod())

	store.Clear(ctx)
	assert.Empty(t, store.Items())

	kv.AssertCalled(t, "Set", mock.Anything, keys.Items, mock.Anything)
	kv.AssertCalled(t, "Set", mock.Anything, keys.DeliveryMethod, "shipping")
	kv.AssertCalled(t, "Delete", mock.Anything, keys.Items)
}

func TestPersister_SaveNilItemsWritesEmptyArray(t *testing.T) {
	kv := storage.NewMemoryStore()
	keys := cart.NewKeys("shop", "nil")
	require.NoError(t, cart.NewPersister(kv, keys).SaveItems(context.Background(), nil))

	raw, _, _ := kv.Get(context.Background(), keys.Items)
	assert.Equal(t, "[]", raw)
}
