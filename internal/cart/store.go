package cart

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/dojo-shop/internal/catalog"
	"github.com/vasiliy-maslov/dojo-shop/internal/shipping"
)

// Store owns the line items and delivery method of one cart. Every mutation is
// applied in memory first and then written through to the persister; a failed
// write is logged and the in-memory change stands.
type Store struct {
	mu        sync.Mutex
	items     []LineItem
	method    shipping.Method
	persister *Persister
	now       func() time.Time
	loaded    bool
}

type Option func(*Store)

// WithClock overrides the clock used to decide whether a presale is running.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(persister *Persister, opts ...Option) *Store {
	s := &Store{
		items:     []LineItem{},
		method:    shipping.MethodPickup,
		persister: persister,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init loads the persisted cart. Only the first call reads storage.
func (s *Store) Init(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return
	}
	s.loaded = true

	state, err := s.persister.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("store: failed to restore cart, falling back to defaults")
	}
	s.items = state.Items
	s.method = state.DeliveryMethod
}

// AddItem puts quantity units of the variant into the cart. Stock lines merge
// with an existing stock line and never exceed the variant's stock; preorder
// lines merge only with preorder lines. The unit price is fixed here.
// Unknown, inactive and sold-out stock variants leave the cart untouched.
func (s *Store) AddItem(ctx context.Context, product catalog.Product, variantID uuid.UUID, isPreorder bool, quantity int) Change {
	if quantity < 1 {
		quantity = 1
	}

	variant, ok := product.FindVariant(variantID)
	if !ok || !variant.IsActive {
		log.Warn().Stringer("product_id", product.ID).Stringer("variant_id", variantID).Msg("store: variant not found or inactive, ignoring add")
		return Change{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := indexOf(s.items, variantID, isPreorder); idx >= 0 {
		item := &s.items[idx]
		if !isPreorder && variant.StockQuantity < 1 {
			log.Debug().Stringer("variant_id", variantID).Msg("store: variant sold out, quantity kept")
			return Change{Quantity: item.Quantity, Clamped: true}
		}

		newQuantity, clamped := clampQuantity(item.Quantity+quantity, variant.StockQuantity, isPreorder)
		item.Quantity = newQuantity
		if !isPreorder {
			item.StockAvailable = variant.StockQuantity
		}
		s.logClamp(variantID, clamped, newQuantity)
		s.saveItems(ctx)
		return Change{Quantity: newQuantity, Clamped: clamped}
	}

	if !isPreorder && variant.StockQuantity < 1 {
		log.Debug().Stringer("variant_id", variantID).Msg("store: variant sold out, nothing added")
		return Change{Clamped: true}
	}

	at := s.now()
	referencePrice := catalog.VariantUnitPrice(catalog.EffectivePrice(product, at), variant)
	price := referencePrice
	var note *string
	if isPreorder {
		price = catalog.VariantUnitPrice(catalog.PreorderPrice(product), variant)
		note = product.PreorderNote
	}

	initialQuantity, clamped := clampQuantity(quantity, variant.StockQuantity, isPreorder)
	s.items = append(s.items, LineItem{
		ProductID:      product.ID,
		ProductName:    product.Name,
		ProductSlug:    product.Slug,
		VariantID:      variant.ID,
		VariantName:    variant.DisplayName(),
		Price:          price,
		OriginalPrice:  referencePrice,
		Quantity:       initialQuantity,
		ImageURL:       product.PrimaryImage(),
		StockAvailable: variant.StockQuantity,
		IsPreorder:     isPreorder,
		PreorderNote:   note,
	})
	s.logClamp(variantID, clamped, initialQuantity)
	s.saveItems(ctx)

	return Change{Quantity: initialQuantity, Clamped: clamped}
}

// RemoveItem drops every line of the variant, stock and preorder alike.
// Use RemoveLine to remove a single mode.
func (s *Store) RemoveItem(ctx context.Context, variantID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeWhere(ctx, func(item LineItem) bool {
		return item.VariantID == variantID
	})
}

// RemoveLine drops only the line with the given identity.
func (s *Store) RemoveLine(ctx context.Context, variantID uuid.UUID, isPreorder bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeWhere(ctx, func(item LineItem) bool {
		return item.matches(variantID, isPreorder)
	})
}

// UpdateQuantity sets the quantity of every line of the variant. Stock lines are
// clamped to their stock snapshot. A quantity below one removes the variant.
func (s *Store) UpdateQuantity(ctx context.Context, variantID uuid.UUID, quantity int) Change {
	if quantity < 1 {
		s.RemoveItem(ctx, variantID)
		return Change{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result Change
	updated := false
	for i := range s.items {
		item := &s.items[i]
		if item.VariantID != variantID {
			continue
		}
		newQuantity, clamped := clampQuantity(quantity, item.StockAvailable, item.IsPreorder)
		if newQuantity < 1 {
			continue
		}
		item.Quantity = newQuantity
		result.Quantity = newQuantity
		result.Clamped = result.Clamped || clamped
		updated = true
		s.logClamp(variantID, clamped, newQuantity)
	}
	if updated {
		s.saveItems(ctx)
	}

	return result
}

// SetDeliveryMethod stores the method independently of the items. Unknown
// methods are ignored.
func (s *Store) SetDeliveryMethod(ctx context.Context, method shipping.Method) {
	if !method.Valid() {
		log.Warn().Stringer("delivery_method", method).Msg("store: ignoring unknown delivery method")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.method = method
	if err := s.persister.SaveDeliveryMethod(ctx, method); err != nil {
		log.Error().Err(err).Msg("store: failed to persist delivery method")
	}
}

// Clear empties the cart and deletes the stored items. The delivery method survives.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = []LineItem{}
	if err := s.persister.ClearItems(ctx); err != nil {
		log.Error().Err(err).Msg("store: failed to clear persisted items")
	}
}

// ClearSubmitted takes the submitted lines out of the cart after a successful
// checkout. Quantities are subtracted per (variant, preorder) identity, so units
// added while the order was in flight stay in the cart. An emptied cart deletes
// the items record like Clear.
func (s *Store) ClearSubmitted(ctx context.Context, submitted []LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range submitted {
		idx := indexOf(s.items, sub.VariantID, sub.IsPreorder)
		if idx < 0 {
			continue
		}
		s.items[idx].Quantity -= sub.Quantity
		if s.items[idx].Quantity < 1 {
			s.items = append(s.items[:idx], s.items[idx+1:]...)
		}
	}

	if len(s.items) == 0 {
		s.items = []LineItem{}
		if err := s.persister.ClearItems(ctx); err != nil {
			log.Error().Err(err).Msg("store: failed to clear persisted items")
		}
		return
	}

	log.Info().Int("remaining_lines", len(s.items)).Msg("store: cart changed during checkout, keeping unsubmitted units")
	s.saveItems(ctx)
}

func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]LineItem(nil), s.items...)
}

func (s *Store) DeliveryMethod() shipping.Method {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.method
}

func (s *Store) IsInCart(variantID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.VariantID == variantID {
			return true
		}
	}
	return false
}

// ItemQuantity sums the quantity of all lines of the variant.
func (s *Store) ItemQuantity(variantID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	quantity := 0
	for _, item := range s.items {
		if item.VariantID == variantID {
			quantity += item.Quantity
		}
	}
	return quantity
}

func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return itemCount(s.items)
}

func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	return subtotal(s.items)
}

// Summary derives totals from the current items in one consistent read.
func (s *Store) Summary(cfg shipping.Config) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := subtotal(s.items)
	discount := decimal.Zero
	shippingAmount := shipping.Calculate(sub, s.method, cfg)

	return Summary{
		Items:          append([]LineItem{}, s.items...),
		DeliveryMethod: s.method,
		ItemCount:      itemCount(s.items),
		Subtotal:       sub,
		DiscountAmount: discount,
		ShippingAmount: shippingAmount,
		Total:          sub.Sub(discount).Add(shippingAmount),
	}
}

func (s *Store) removeWhere(ctx context.Context, match func(LineItem) bool) {
	kept := make([]LineItem, 0, len(s.items))
	for _, item := range s.items {
		if !match(item) {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(s.items) {
		return
	}
	s.items = kept
	s.saveItems(ctx)
}

// saveItems must be called with mu held so writes land in mutation order.
func (s *Store) saveItems(ctx context.Context) {
	if err := s.persister.SaveItems(ctx, s.items); err != nil {
		log.Error().Err(err).Int("items", len(s.items)).Msg("store: failed to persist cart items")
	}
}

func (s *Store) logClamp(variantID uuid.UUID, clamped bool, quantity int) {
	if clamped {
		log.Debug().Stringer("variant_id", variantID).Int("quantity", quantity).Msg("store: quantity clamped to available stock")
	}
}
