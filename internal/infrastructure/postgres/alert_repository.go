package postgres

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.AlertRepository = (*AlertRepo)(nil)

// AlertRepo registro de alerta vigente por producto (usable con pool o tx).
type AlertRepo struct {
	q Querier
}

// NewAlertRepository construye el adaptador. Pasar pool o tx (Querier).
func NewAlertRepository(q Querier) *AlertRepo {
	return &AlertRepo{q: q}
}

// ReplaceForProduct reemplaza la alerta del producto; la llave primaria impide duplicados.
func (r *AlertRepo) ReplaceForProduct(ctx context.Context, a *entity.StockAlert) error {
	query := `
		INSERT INTO stock_alerts (product_id, owner_id, state, current_stock, min_stock, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product_id, owner_id)
		DO UPDATE SET state = EXCLUDED.state,
		              current_stock = EXCLUDED.current_stock,
		              min_stock = EXCLUDED.min_stock,
		              evaluated_at = EXCLUDED.evaluated_at`
	if _, err := r.q.Exec(ctx, query, a.ProductID, a.OwnerID, a.State, a.CurrentStock, a.MinStock, a.EvaluatedAt); err != nil {
		return mapError("replace stock alert", err)
	}
	return nil
}

// ListByOwner lista las alertas registradas del propietario.
func (r *AlertRepo) ListByOwner(ctx context.Context, ownerID string) ([]*entity.StockAlert, error) {
	rows, err := r.q.Query(ctx, `
		SELECT product_id, owner_id, state, current_stock, min_stock, evaluated_at
		FROM stock_alerts WHERE owner_id = $1 ORDER BY product_id`, ownerID)
	if err != nil {
		return nil, mapError("list stock alerts", err)
	}
	defer rows.Close()
	var list []*entity.StockAlert
	for rows.Next() {
		var a entity.StockAlert
		if err := rows.Scan(&a.ProductID, &a.OwnerID, &a.State, &a.CurrentStock, &a.MinStock, &a.EvaluatedAt); err != nil {
			return nil, mapError("scan stock alert", err)
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}

// DeleteExcept borra las alertas de productos que ya no están activos para el propietario.
func (r *AlertRepo) DeleteExcept(ctx context.Context, ownerID string, keepProductIDs []string) (int64, error) {
	if keepProductIDs == nil {
		keepProductIDs = []string{}
	}
	cmd, err := r.q.Exec(ctx, `
		DELETE FROM stock_alerts
		WHERE owner_id = $1 AND NOT (product_id = ANY($2::text[]))`, ownerID, keepProductIDs)
	if err != nil {
		return 0, mapError("delete stale stock alerts", err)
	}
	return cmd.RowsAffected(), nil
}
