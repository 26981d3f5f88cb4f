package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var ErrProductNotFound = errors.New("product not found")

type Repository interface {
	// GetProductByID returns the product with its active variants only.
	GetProductByID(ctx context.Context, id uuid.UUID) (*Product, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) GetProductByID(ctx context.Context, productID uuid.UUID) (*Product, error) {
	queryProduct := `
		SELECT id, name, slug, base_price, availability_status, presale_price, presale_ends_at,
		       allow_preorder, preorder_discount_percent, preorder_note, is_active, image_urls
		FROM shop.products
		WHERE id = $1
	`

	var product Product
	err := r.db.QueryRow(ctx, queryProduct, productID).Scan(
		&product.ID,
		&product.Name,
		&product.Slug,
		&product.BasePrice,
		&product.AvailabilityStatus,
		&product.PresalePrice,
		&product.PresaleEndsAt,
		&product.AllowPreorder,
		&product.PreorderDiscountPercent,
		&product.PreorderNote,
		&product.IsActive,
		&product.ImageURLs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, ErrProductNotFound
		}

		return nil, fmt.Errorf("repository: failed to select product by id %s: %w", productID, err)
	}

	queryVariants := `
		SELECT id, product_id, size, color, price_adjustment, stock_quantity, low_stock_alert, is_active
		FROM shop.product_variants
		WHERE product_id = $1 AND is_active
		ORDER BY sort_order, id
	`

	rows, err := r.db.Query(ctx, queryVariants, productID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query variants for product id %s: %w", productID, err)
	}
	defer rows.Close()

	variants := make([]Variant, 0)
	for rows.Next() {
		var v Variant
		err := rows.Scan(
			&v.ID,
			&v.ProductID,
			&v.Size,
			&v.Color,
			&v.PriceAdjustment,
			&v.StockQuantity,
			&v.LowStockAlert,
			&v.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan variant for product id %s: %w", productID, err)
		}
		variants = append(variants, v)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating variants for product id %s: %w", productID, err)
	}

	product.Variants = variants
	log.Debug().Stringer("product_id", productID).Int("variants", len(variants)).Msg("repository: product loaded")

	return &product, nil
}

func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation
}
