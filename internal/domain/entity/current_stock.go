package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrentStock saldo materializado de un producto para un propietario (tabla current_stock).
// Es derivado del libro y se puede reconstruir en cualquier momento.
type CurrentStock struct {
	OwnerID   string
	ProductID string
	Quantity  decimal.Decimal
	UpdatedAt time.Time
}

// AdjustmentRecord detalle de auditoría de un asiento ADJUSTMENT (uno por asiento).
type AdjustmentRecord struct {
	ID          string
	EntryID     string
	OwnerID     string
	ProductID   string
	OldQuantity decimal.Decimal
	NewQuantity decimal.Decimal
	Difference  decimal.Decimal // NewQuantity - OldQuantity
	Reason      string
	CreatedBy   string
	CreatedAt   time.Time
}
