package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// StockEntryRepository define el puerto de persistencia del libro de stock (solo inserción + anulación).
type StockEntryRepository interface {
	// Create inserta el asiento. Devuelve domain.ErrDuplicate si ya existe un asiento activo con la
	// misma (reference_type, reference_id, product_id).
	Create(ctx context.Context, entry *entity.StockEntry) error
	// GetByID devuelve nil, nil si no existe.
	GetByID(ctx context.Context, id string) (*entity.StockEntry, error)
	// FindActiveByReference devuelve el asiento activo para la llave de idempotencia o nil, nil.
	FindActiveByReference(ctx context.Context, refType entity.ReferenceType, refID, productID string) (*entity.StockEntry, error)
	// ListActiveByReference lista los asientos activos de una referencia de negocio.
	ListActiveByReference(ctx context.Context, ownerID string, refType entity.ReferenceType, refID string) ([]*entity.StockEntry, error)
	// Deactivate marca el asiento como anulado; false si ya estaba anulado.
	Deactivate(ctx context.Context, id string) (bool, error)
	// SumActive es el único camino de agregación del saldo: suma con signo de los asientos activos.
	SumActive(ctx context.Context, productID, ownerID string) (decimal.Decimal, error)
	HasOpening(ctx context.Context, productID, ownerID string) (bool, error)
	// ListByProduct historial de asientos (activos y anulados), más recientes primero.
	ListByProduct(ctx context.Context, productID, ownerID string, limit, offset int) ([]*entity.StockEntry, error)
}
