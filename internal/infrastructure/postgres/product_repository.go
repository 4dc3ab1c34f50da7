package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.ProductRepository = (*ProductRepo)(nil)

// ProductRepo lectura del registro de productos sobre PostgreSQL (usable con pool o tx).
type ProductRepo struct {
	q Querier
}

// NewProductRepository construye el adaptador de persistencia para productos. Pasar pool o tx (Querier).
func NewProductRepository(q Querier) *ProductRepo {
	return &ProductRepo{q: q}
}

// GetByID obtiene un producto por ID.
func (r *ProductRepo) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	query := `
		SELECT id, owner_id, sku, name, price, tax_rate, min_stock, max_stock, active, created_at, updated_at
		FROM products WHERE id = $1`
	var p entity.Product
	err := r.q.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.OwnerID, &p.SKU, &p.Name, &p.Price, &p.TaxRate, &p.MinStock, &p.MaxStock,
		&p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("get product", err)
	}
	return &p, nil
}

// GetThresholds obtiene los umbrales del producto para el propietario.
func (r *ProductRepo) GetThresholds(ctx context.Context, productID, ownerID string) (*entity.ProductThresholds, error) {
	query := `SELECT id, owner_id, min_stock, max_stock FROM products WHERE id = $1 AND owner_id = $2`
	var t entity.ProductThresholds
	err := r.q.QueryRow(ctx, query, productID, ownerID).Scan(&t.ProductID, &t.OwnerID, &t.MinStock, &t.MaxStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("get product thresholds", err)
	}
	return &t, nil
}

// ListThresholdsByOwner umbrales de los productos activos del propietario.
func (r *ProductRepo) ListThresholdsByOwner(ctx context.Context, ownerID string) ([]*entity.ProductThresholds, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, owner_id, min_stock, max_stock
		FROM products WHERE owner_id = $1 AND active ORDER BY id`, ownerID)
	if err != nil {
		return nil, mapError("list product thresholds", err)
	}
	defer rows.Close()
	var list []*entity.ProductThresholds
	for rows.Next() {
		var t entity.ProductThresholds
		if err := rows.Scan(&t.ProductID, &t.OwnerID, &t.MinStock, &t.MaxStock); err != nil {
			return nil, mapError("scan product thresholds", err)
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// ListLegacyStock contador legado products.stock; ownerID vacío lista todos los propietarios.
func (r *ProductRepo) ListLegacyStock(ctx context.Context, ownerID string) ([]*entity.LegacyStock, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, owner_id, stock, active
		FROM products
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY owner_id, id`, ownerID)
	if err != nil {
		return nil, mapError("list legacy stock", err)
	}
	defer rows.Close()
	var list []*entity.LegacyStock
	for rows.Next() {
		var l entity.LegacyStock
		if err := rows.Scan(&l.ProductID, &l.OwnerID, &l.Quantity, &l.Active); err != nil {
			return nil, mapError("scan legacy stock", err)
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}
