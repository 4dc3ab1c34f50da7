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

var _ repository.CustomerRepository = (*CustomerRepo)(nil)

// CustomerRepo implementación de CustomerRepository (usable con pool o tx).
type CustomerRepo struct {
	q Querier
}

// NewCustomerRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCustomerRepository(q Querier) *CustomerRepo {
	return &CustomerRepo{q: q}
}

// GetByID obtiene un cliente por ID.
func (r *CustomerRepo) GetByID(ctx context.Context, id string) (*entity.Customer, error) {
	query := `
		SELECT id, owner_id, name, tax_id, balance, updated_at
		FROM customers WHERE id = $1`
	var c entity.Customer
	err := r.q.QueryRow(ctx, query, id).Scan(&c.ID, &c.OwnerID, &c.Name, &c.TaxID, &c.Balance, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("get customer", err)
	}
	return &c, nil
}

// AddBalance suma delta al saldo pendiente del cliente.
func (r *CustomerRepo) AddBalance(ctx context.Context, id, ownerID string, delta decimal.Decimal) error {
	cmd, err := r.q.Exec(ctx,
		`UPDATE customers SET balance = balance + $3, updated_at = now() WHERE id = $1 AND owner_id = $2`,
		id, ownerID, delta,
	)
	if err != nil {
		return mapError("update customer balance", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: cliente %s", domain.ErrNotFound, id)
	}
	return nil
}

var _ repository.VendorRepository = (*VendorRepo)(nil)

// VendorRepo cuentas por pagar a proveedores.
type VendorRepo struct {
	q Querier
}

// NewVendorRepository construye el adaptador. Pasar pool o tx (Querier).
func NewVendorRepository(q Querier) *VendorRepo {
	return &VendorRepo{q: q}
}

// GetByID obtiene un proveedor por ID.
func (r *VendorRepo) GetByID(ctx context.Context, id string) (*entity.Vendor, error) {
	var v entity.Vendor
	err := r.q.QueryRow(ctx,
		`SELECT id, owner_id, name, payable, updated_at FROM vendors WHERE id = $1`, id,
	).Scan(&v.ID, &v.OwnerID, &v.Name, &v.Payable, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("get vendor", err)
	}
	return &v, nil
}

// AddPayable suma delta a la cuenta por pagar.
func (r *VendorRepo) AddPayable(ctx context.Context, id, ownerID string, delta decimal.Decimal) error {
	cmd, err := r.q.Exec(ctx,
		`UPDATE vendors SET payable = payable + $3, updated_at = now() WHERE id = $1 AND owner_id = $2`,
		id, ownerID, delta,
	)
	if err != nil {
		return mapError("update vendor payable", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: proveedor %s", domain.ErrNotFound, id)
	}
	return nil
}
