package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer cliente del propietario. El núcleo solo toca Balance (saldo pendiente por ventas a crédito).
type Customer struct {
	ID        string
	OwnerID   string
	Name      string
	TaxID     string
	Balance   decimal.Decimal
	UpdatedAt time.Time
}

// Vendor proveedor del propietario. El núcleo solo toca Payable (cuentas por pagar).
type Vendor struct {
	ID        string
	OwnerID   string
	Name      string
	Payable   decimal.Decimal
	UpdatedAt time.Time
}
