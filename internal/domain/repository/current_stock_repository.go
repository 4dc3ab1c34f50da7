package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// CurrentStockRepository define el puerto del saldo materializado por producto+propietario.
// Usado dentro de transacciones para garantizar consistencia con el libro.
type CurrentStockRepository interface {
	// Get devuelve nil, nil si no hay fila en caché.
	Get(ctx context.Context, productID, ownerID string) (*entity.CurrentStock, error)
	// GetForUpdate toma el bloqueo de escritura del producto aunque la fila no exista y lo retiene
	// hasta el fin de la transacción; nil, nil si no hay fila.
	GetForUpdate(ctx context.Context, productID, ownerID string) (*entity.CurrentStock, error)
	Upsert(ctx context.Context, stock *entity.CurrentStock) error
	ListByOwner(ctx context.Context, ownerID string) ([]*entity.CurrentStock, error)
}

// AdjustmentRepository define el puerto de auditoría de ajustes.
type AdjustmentRepository interface {
	Create(ctx context.Context, record *entity.AdjustmentRecord) error
	// GetByEntryID devuelve nil, nil si el asiento no tiene registro.
	GetByEntryID(ctx context.Context, entryID string) (*entity.AdjustmentRecord, error)
}
