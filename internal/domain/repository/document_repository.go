package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// DocumentRepository define el puerto de persistencia de facturas, GRN y notas con sus líneas.
type DocumentRepository interface {
	// Create guarda cabecera y líneas.
	Create(ctx context.Context, doc *entity.BusinessDocument) error
	// GetByID devuelve nil, nil si no existe.
	GetByID(ctx context.Context, id string) (*entity.BusinessDocument, error)
	GetByReference(ctx context.Context, ownerID string, kind entity.DocumentKind, reference string) (*entity.BusinessDocument, error)
}
