package billing

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
)

// SaleRecorder puerto hacia el núcleo de stock. La factura solo existe si RecordSale confirma;
// cualquier error del núcleo (stock insuficiente, conflicto, persistencia) deja todo sin escribir.
type SaleRecorder interface {
	RecordSale(ctx context.Context, cmd inventory.SaleCommand) (*inventory.OperationResult, error)
}
