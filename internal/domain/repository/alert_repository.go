package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// AlertRepository define el puerto de los registros de alerta. Cada evaluación reemplaza el
// registro anterior del producto: nunca hay más de una alerta por (owner, producto).
type AlertRepository interface {
	ReplaceForProduct(ctx context.Context, alert *entity.StockAlert) error
	ListByOwner(ctx context.Context, ownerID string) ([]*entity.StockAlert, error)
	// DeleteExcept borra las alertas del propietario cuyo producto no está en keepProductIDs
	// (productos desactivados o eliminados del registro). Devuelve cuántas borró.
	DeleteExcept(ctx context.Context, ownerID string, keepProductIDs []string) (int64, error)
}
