package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	productColumns = `id, name, category_id, regular_price, discount_percent, effective_discount, sale_price,
		active, out_of_stock, offer_ids`

	getProductSQL    = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductsSQL   = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`
	getSizesSQL      = `SELECT product_id, size, quantity FROM product_sizes WHERE product_id = ANY($1) ORDER BY product_id, size`
	getCategorySQL   = `SELECT id, name, active, offer_ids FROM categories WHERE id = $1`
	updatePricingSQL = `UPDATE products SET effective_discount = $2, sale_price = $3 WHERE id = $1`

	adjustStockSQL = `UPDATE product_sizes SET quantity = quantity + $3
		WHERE product_id = $1 AND size = $2 AND quantity + $3 >= 0`
	stockLevelSQL = `SELECT p.name, s.quantity FROM products p
		JOIN product_sizes s ON s.product_id = p.id
		WHERE p.id = $1 AND s.size = $2`
	refreshOutOfStockSQL = `UPDATE products SET out_of_stock = NOT EXISTS (
		SELECT 1 FROM product_sizes WHERE product_id = $1 AND quantity > 0) WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product with its sizes.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	products := []product.Product{p}
	if err := r.loadSizes(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// GetByIDs returns the products that exist among ids, with their sizes.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	if err := r.loadSizes(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetCategory returns a category by id.
func (r *ProductRepository) GetCategory(ctx context.Context, id string) (*product.Category, error) {
	var c product.Category
	err := r.pool.QueryRow(ctx, getCategorySQL, id).Scan(&c.ID, &c.Name, &c.Active, &c.OfferIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrCategoryNotFound
		}
		return nil, errors.Wrapf(err, "get category %q", id)
	}
	return &c, nil
}

// UpdatePricing stores recomputed pricing.
func (r *ProductRepository) UpdatePricing(ctx context.Context, id string, effectiveDiscount, salePrice decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, updatePricingSQL, id, effectiveDiscount, salePrice)
	if err != nil {
		return errors.Wrapf(err, "update pricing of %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) loadSizes(ctx context.Context, products []product.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}

	rows, err := r.pool.Query(ctx, getSizesSQL, ids)
	if err != nil {
		return errors.Wrap(err, "get sizes")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			productID string
			s         product.Size
		)
		if err := rows.Scan(&productID, &s.Size, &s.Quantity); err != nil {
			return errors.Wrap(err, "scan size")
		}
		s.InStock = s.Quantity > 0
		i := index[productID]
		products[i].Sizes = append(products[i].Sizes, s)
	}
	return errors.Wrap(rows.Err(), "iterate sizes")
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.CategoryID, &p.RegularPrice, &p.DiscountPercent, &p.EffectiveDiscount, &p.SalePrice,
		&p.Active, &p.OutOfStock, &p.OfferIDs,
	)
	return p, err
}

// applyStock applies signed deltas inside q. A decrement that would take a
// size below zero fails with *product.InsufficientStockError. Increments for
// rows that no longer exist are ignored.
func applyStock(ctx context.Context, q dbtx, deltas []product.StockDelta) error {
	touched := make(map[string]bool, len(deltas))
	for _, d := range deltas {
		tag, err := q.Exec(ctx, adjustStockSQL, d.ProductID, d.Size, d.Quantity)
		if err != nil {
			return errors.Wrapf(err, "adjust stock of %s/%s", d.ProductID, d.Size)
		}
		if tag.RowsAffected() == 0 {
			if d.Quantity >= 0 {
				continue
			}
			return stockError(ctx, q, d)
		}
		touched[d.ProductID] = true
	}
	for id := range touched {
		if _, err := q.Exec(ctx, refreshOutOfStockSQL, id); err != nil {
			return errors.Wrapf(err, "refresh stock flag of %s", id)
		}
	}
	return nil
}

func stockError(ctx context.Context, q dbtx, d product.StockDelta) error {
	var (
		name      string
		available int
	)
	err := q.QueryRow(ctx, stockLevelSQL, d.ProductID, d.Size).Scan(&name, &available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &product.UnknownSizeError{ProductID: d.ProductID, Size: d.Size}
		}
		return errors.Wrap(err, "read stock level")
	}
	return &product.InsufficientStockError{
		ProductID: d.ProductID,
		Name:      name,
		Size:      d.Size,
		Available: available,
		Requested: -d.Quantity,
	}
}
