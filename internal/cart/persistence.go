package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/dojo-shop/internal/shipping"
)

// KeyValueStore is the durable storage behind a cart. found is false when the key
// has never been written.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Keys names the two independent records of one cart.
type Keys struct {
	Items          string
	DeliveryMethod string
}

func NewKeys(prefix, sessionID string) Keys {
	return Keys{
		Items:          fmt.Sprintf("%s:%s:items", prefix, sessionID),
		DeliveryMethod: fmt.Sprintf("%s:%s:delivery_method", prefix, sessionID),
	}
}

// StorageError wraps a failed read or write of a cart record. The store recovers
// from it locally; it never reaches cart callers.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// State is what gets persisted for one cart.
type State struct {
	Items          []LineItem
	DeliveryMethod shipping.Method
}

type Persister struct {
	kv   KeyValueStore
	keys Keys
}

func NewPersister(kv KeyValueStore, keys Keys) *Persister {
	return &Persister{kv: kv, keys: keys}
}

// Load reads both records. The returned state is always usable: unreadable or
// malformed records fall back to an empty cart and pickup, and the failures are
// reported through the joined error.
func (p *Persister) Load(ctx context.Context) (State, error) {
	state := State{Items: []LineItem{}, DeliveryMethod: shipping.MethodPickup}
	var errs []error

	raw, found, err := p.kv.Get(ctx, p.keys.Items)
	switch {
	case err != nil:
		errs = append(errs, &StorageError{Op: "read", Key: p.keys.Items, Err: err})
	case found:
		var items []LineItem
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			errs = append(errs, &StorageError{Op: "decode", Key: p.keys.Items, Err: err})
		} else {
			state.Items = sanitizeItems(items)
		}
	}

	rawMethod, found, err := p.kv.Get(ctx, p.keys.DeliveryMethod)
	switch {
	case err != nil:
		errs = append(errs, &StorageError{Op: "read", Key: p.keys.DeliveryMethod, Err: err})
	case found:
		method, err := shipping.ParseMethod(rawMethod)
		if err != nil {
			errs = append(errs, &StorageError{Op: "decode", Key: p.keys.DeliveryMethod, Err: err})
		} else {
			state.DeliveryMethod = method
		}
	}

	return state, errors.Join(errs...)
}

func (p *Persister) SaveItems(ctx context.Context, items []LineItem) error {
	if items == nil {
		items = []LineItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return &StorageError{Op: "encode", Key: p.keys.Items, Err: err}
	}
	if err := p.kv.Set(ctx, p.keys.Items, string(payload)); err != nil {
		return &StorageError{Op: "write", Key: p.keys.Items, Err: err}
	}
	return nil
}

func (p *Persister) SaveDeliveryMethod(ctx context.Context, method shipping.Method) error {
	if err := p.kv.Set(ctx, p.keys.DeliveryMethod, method.String()); err != nil {
		return &StorageError{Op: "write", Key: p.keys.DeliveryMethod, Err: err}
	}
	return nil
}

// ClearItems removes the items record. The delivery method record is kept.
func (p *Persister) ClearItems(ctx context.Context) error {
	if err := p.kv.Delete(ctx, p.keys.Items); err != nil {
		return &StorageError{Op: "delete", Key: p.keys.Items, Err: err}
	}
	return nil
}

// sanitizeItems drops lines a cart could never have produced: missing ids,
// non-positive quantities, stock lines without stock and duplicate identities.
// Stock lines above their snapshot are clamped back to it.
func sanitizeItems(items []LineItem) []LineItem {
	result := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil || item.VariantID == uuid.Nil || item.Quantity < 1 {
			log.Warn().Str("variant_id", item.VariantID.String()).Int("quantity", item.Quantity).Msg("persister: dropping malformed stored line item")
			continue
		}
		if !item.IsPreorder {
			if item.StockAvailable < 1 {
				log.Warn().Stringer("variant_id", item.VariantID).Msg("persister: dropping stored stock line without stock")
				continue
			}
			item.Quantity, _ = clampQuantity(item.Quantity, item.StockAvailable, false)
		}
		if indexOf(result, item.VariantID, item.IsPreorder) >= 0 {
			log.Warn().Stringer("variant_id", item.VariantID).Bool("is_preorder", item.IsPreorder).Msg("persister: dropping duplicate stored line item")
			continue
		}
		result = append(result, item)
	}
	return result
}

func indexOf(items []LineItem, variantID uuid.UUID, isPreorder bool) int {
	for i := range items {
		if items[i].matches(variantID, isPreorder) {
			return i
		}
	}
	return -1
}
