package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.StockEntryRepository = (*StockEntryRepo)(nil)

const stockEntryColumns = `id, owner_id, product_id, movement_type, direction, quantity, reference_type, reference_id,
		notes, created_by, created_at, is_active, reversal_of, backorder`

// StockEntryRepo libro de stock sobre PostgreSQL (usable con pool o tx).
type StockEntryRepo struct {
	q Querier
}

// NewStockEntryRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockEntryRepository(q Querier) *StockEntryRepo {
	return &StockEntryRepo{q: q}
}

// Create inserta el asiento. El índice único parcial sobre asientos activos hace de llave de
// idempotencia; ON CONFLICT DO NOTHING evita abortar la transacción cuando la llave ya existe.
func (r *StockEntryRepo) Create(ctx context.Context, e *entity.StockEntry) error {
	query := `
		INSERT INTO stock_entries (` + stockEntryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (reference_type, reference_id, product_id) WHERE is_active DO NOTHING`
	cmd, err := r.q.Exec(ctx, query,
		e.ID, e.OwnerID, e.ProductID, e.MovementType, e.Direction, e.Quantity, e.ReferenceType, e.ReferenceID,
		e.Notes, e.CreatedBy, e.CreatedAt, e.IsActive, nullIfEmpty(e.ReversalOf), e.Backorder,
	)
	if err != nil {
		return mapError("insert stock entry", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: referencia %s/%s producto %s", domain.ErrDuplicate, e.ReferenceType, e.ReferenceID, e.ProductID)
	}
	return nil
}

// GetByID obtiene un asiento por ID.
func (r *StockEntryRepo) GetByID(ctx context.Context, id string) (*entity.StockEntry, error) {
	query := `SELECT ` + stockEntryColumns + ` FROM stock_entries WHERE id = $1`
	e, err := scanStockEntry(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("get stock entry", err)
	}
	return e, nil
}

// FindActiveByReference busca el asiento activo de la llave de idempotencia.
func (r *StockEntryRepo) FindActiveByReference(ctx context.Context, refType entity.ReferenceType, refID, productID string) (*entity.StockEntry, error) {
	query := `SELECT ` + stockEntryColumns + `
		FROM stock_entries
		WHERE reference_type = $1 AND reference_id = $2 AND product_id = $3 AND is_active`
	e, err := scanStockEntry(r.q.QueryRow(ctx, query, refType, refID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("find stock entry by reference", err)
	}
	return e, nil
}

// ListActiveByReference lista los asientos activos de una referencia de negocio.
func (r *StockEntryRepo) ListActiveByReference(ctx context.Context, ownerID string, refType entity.ReferenceType, refID string) ([]*entity.StockEntry, error) {
	query := `SELECT ` + stockEntryColumns + `
		FROM stock_entries
		WHERE owner_id = $1 AND reference_type = $2 AND reference_id = $3 AND is_active
		ORDER BY product_id`
	return r.list(ctx, "list stock entries by reference", query, ownerID, refType, refID)
}

// Deactivate anula el asiento; false si ya estaba anulado o no existe.
func (r *StockEntryRepo) Deactivate(ctx context.Context, id string) (bool, error) {
	cmd, err := r.q.Exec(ctx, `UPDATE stock_entries SET is_active = FALSE WHERE id = $1 AND is_active`, id)
	if err != nil {
		return false, mapError("deactivate stock entry", err)
	}
	return cmd.RowsAffected() == 1, nil
}

// SumActive agrega con signo los asientos activos del producto. Es la única consulta que calcula
// el saldo desde el libro.
func (r *StockEntryRepo) SumActive(ctx context.Context, productID, ownerID string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN direction = 'DECREASE' THEN -quantity ELSE quantity END), 0)
		FROM stock_entries
		WHERE product_id = $1 AND owner_id = $2 AND is_active`
	var total decimal.Decimal
	if err := r.q.QueryRow(ctx, query, productID, ownerID).Scan(&total); err != nil {
		return decimal.Zero, mapError("sum stock entries", err)
	}
	return total, nil
}

// HasOpening indica si el producto ya tiene saldo inicial activo.
func (r *StockEntryRepo) HasOpening(ctx context.Context, productID, ownerID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM stock_entries
			WHERE product_id = $1 AND owner_id = $2 AND movement_type = 'OPENING' AND is_active
		)`
	var ok bool
	if err := r.q.QueryRow(ctx, query, productID, ownerID).Scan(&ok); err != nil {
		return false, mapError("has opening", err)
	}
	return ok, nil
}

// ListByProduct historial del producto, más recientes primero.
func (r *StockEntryRepo) ListByProduct(ctx context.Context, productID, ownerID string, limit, offset int) ([]*entity.StockEntry, error) {
	query := `SELECT ` + stockEntryColumns + `
		FROM stock_entries
		WHERE product_id = $1 AND owner_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`
	return r.list(ctx, "list stock entries by product", query, productID, ownerID, limit, offset)
}

func (r *StockEntryRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.StockEntry, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	var list []*entity.StockEntry
	for rows.Next() {
		e, err := scanStockEntry(rows)
		if err != nil {
			return nil, mapError(op+" scan", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func scanStockEntry(row pgx.Row) (*entity.StockEntry, error) {
	var e entity.StockEntry
	var reversalOf *string
	err := row.Scan(
		&e.ID, &e.OwnerID, &e.ProductID, &e.MovementType, &e.Direction, &e.Quantity, &e.ReferenceType, &e.ReferenceID,
		&e.Notes, &e.CreatedBy, &e.CreatedAt, &e.IsActive, &reversalOf, &e.Backorder,
	)
	if err != nil {
		return nil, err
	}
	e.ReversalOf = stringOrEmpty(reversalOf)
	return &e, nil
}
