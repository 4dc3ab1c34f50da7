package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ProductRepository puerto de solo lectura al registro de productos (el núcleo no modifica datos maestros).
type ProductRepository interface {
	// GetByID devuelve nil, nil si no existe.
	GetByID(ctx context.Context, id string) (*entity.Product, error)
	// GetThresholds devuelve nil, nil si el producto no existe para el propietario.
	GetThresholds(ctx context.Context, productID, ownerID string) (*entity.ProductThresholds, error)
	ListThresholdsByOwner(ctx context.Context, ownerID string) ([]*entity.ProductThresholds, error)
	// ListLegacyStock lista el contador legado de los productos; ownerID vacío = todos los propietarios.
	ListLegacyStock(ctx context.Context, ownerID string) ([]*entity.LegacyStock, error)
}
