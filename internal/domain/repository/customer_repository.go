package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// CustomerRepository puerto del saldo pendiente de clientes (ventas a crédito, devoluciones).
type CustomerRepository interface {
	// GetByID devuelve nil, nil si no existe.
	GetByID(ctx context.Context, id string) (*entity.Customer, error)
	// AddBalance suma delta (con signo) al saldo; domain.ErrNotFound si el cliente no es del propietario.
	AddBalance(ctx context.Context, id, ownerID string, delta decimal.Decimal) error
}

// VendorRepository puerto de cuentas por pagar a proveedores.
type VendorRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Vendor, error)
	AddPayable(ctx context.Context, id, ownerID string, delta decimal.Decimal) error
}
