package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.CurrentStockRepository = (*CurrentStockRepo)(nil)

// CurrentStockRepo saldo materializado por producto y propietario (usable con pool o tx).
type CurrentStockRepo struct {
	q Querier
}

// NewCurrentStockRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCurrentStockRepository(q Querier) *CurrentStockRepo {
	return &CurrentStockRepo{q: q}
}

// Get obtiene la fila de caché; nil, nil si no existe.
func (r *CurrentStockRepo) Get(ctx context.Context, productID, ownerID string) (*entity.CurrentStock, error) {
	query := `
		SELECT product_id, owner_id, quantity, updated_at
		FROM current_stock WHERE product_id = $1 AND owner_id = $2`
	var s entity.CurrentStock
	err := r.q.QueryRow(ctx, query, productID, ownerID).Scan(&s.ProductID, &s.OwnerID, &s.Quantity, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("get current stock", err)
	}
	return &s, nil
}

// GetForUpdate serializa a los escritores del producto aunque la fila aún no exista: primero un
// advisory lock de transacción sobre (owner, producto) y luego SELECT FOR UPDATE de la fila.
func (r *CurrentStockRepo) GetForUpdate(ctx context.Context, productID, ownerID string) (*entity.CurrentStock, error) {
	if _, err := r.q.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1 || ':' || $2, 0))`, ownerID, productID,
	); err != nil {
		return nil, mapError("lock current stock", err)
	}
	query := `
		SELECT product_id, owner_id, quantity, updated_at
		FROM current_stock WHERE product_id = $1 AND owner_id = $2
		FOR UPDATE`
	var s entity.CurrentStock
	err := r.q.QueryRow(ctx, query, productID, ownerID).Scan(&s.ProductID, &s.OwnerID, &s.Quantity, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("get current stock for update", err)
	}
	return &s, nil
}

// Upsert inserta o actualiza la cantidad en caché.
func (r *CurrentStockRepo) Upsert(ctx context.Context, s *entity.CurrentStock) error {
	query := `
		INSERT INTO current_stock (product_id, owner_id, quantity, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, owner_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`
	if _, err := r.q.Exec(ctx, query, s.ProductID, s.OwnerID, s.Quantity, s.UpdatedAt); err != nil {
		return mapError("upsert current stock", err)
	}
	return nil
}

// ListByOwner lista los saldos en caché del propietario.
func (r *CurrentStockRepo) ListByOwner(ctx context.Context, ownerID string) ([]*entity.CurrentStock, error) {
	rows, err := r.q.Query(ctx, `
		SELECT product_id, owner_id, quantity, updated_at
		FROM current_stock WHERE owner_id = $1 ORDER BY product_id`, ownerID)
	if err != nil {
		return nil, mapError("list current stock", err)
	}
	defer rows.Close()
	var list []*entity.CurrentStock
	for rows.Next() {
		var s entity.CurrentStock
		if err := rows.Scan(&s.ProductID, &s.OwnerID, &s.Quantity, &s.UpdatedAt); err != nil {
			return nil, mapError("scan current stock", err)
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}

var _ repository.AdjustmentRepository = (*AdjustmentRepo)(nil)

// AdjustmentRepo auditoría de ajustes.
type AdjustmentRepo struct {
	q Querier
}

// NewAdjustmentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewAdjustmentRepository(q Querier) *AdjustmentRepo {
	return &AdjustmentRepo{q: q}
}

// Create persiste el registro de ajuste.
func (r *AdjustmentRepo) Create(ctx context.Context, a *entity.AdjustmentRecord) error {
	query := `
		INSERT INTO stock_adjustments (id, entry_id, owner_id, product_id, old_quantity, new_quantity, difference, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(ctx, query,
		a.ID, a.EntryID, a.OwnerID, a.ProductID, a.OldQuantity, a.NewQuantity, a.Difference,
		a.Reason, a.CreatedBy, a.CreatedAt,
	)
	if err != nil {
		return mapError("insert stock adjustment", err)
	}
	return nil
}

// GetByEntryID obtiene el ajuste de un asiento; nil, nil si no existe.
func (r *AdjustmentRepo) GetByEntryID(ctx context.Context, entryID string) (*entity.AdjustmentRecord, error) {
	query := `
		SELECT id, entry_id, owner_id, product_id, old_quantity, new_quantity, difference, reason, created_by, created_at
		FROM stock_adjustments WHERE entry_id = $1`
	var a entity.AdjustmentRecord
	err := r.q.QueryRow(ctx, query, entryID).Scan(
		&a.ID, &a.EntryID, &a.OwnerID, &a.ProductID, &a.OldQuantity, &a.NewQuantity, &a.Difference,
		&a.Reason, &a.CreatedBy, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("get stock adjustment", err)
	}
	return &a, nil
}
