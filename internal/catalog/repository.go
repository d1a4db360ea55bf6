package catalog

import (
	"context"
	"database/sql"

	"github.com/ecobazaar/ordercore/internal/domain"
)

// CatalogRepository owns the product ledger. Stock and sold counters are only
// ever changed through AdjustStock, a single atomic UPDATE, never through an
// application-level read-modify-write.
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product := &domain.Product{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, seller_id, name, description, category, price, stock, sold,
		       eco_points, image_url, approved, created_at
		FROM catalog.products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.SellerID, &product.Name, &product.Description,
		&product.Category, &product.Price, &product.Stock, &product.Sold,
		&product.EcoPoints, &product.ImageURL, &product.Approved, &product.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return product, nil
}

func (r *CatalogRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, seller_id, name, description, category, price, stock, sold,
		       eco_points, image_url, approved, created_at
		FROM catalog.products
		WHERE approved
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var products []domain.Product
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(&product.ID, &product.SellerID, &product.Name, &product.Description,
			&product.Category, &product.Price, &product.Stock, &product.Sold,
			&product.EcoPoints, &product.ImageURL, &product.Approved, &product.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// AdjustStock applies deltas to a product's stock and sold counters in one
// atomic statement, flooring both at zero. A missing product reports false
// and is not an error; orders may reference products deleted since checkout.
func (r *CatalogRepository) AdjustStock(ctx context.Context, id string, stockDelta, soldDelta int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE catalog.products
		SET stock = GREATEST(0, stock + $2), sold = GREATEST(0, sold + $3)
		WHERE id = $1
	`, id, stockDelta, soldDelta)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}
