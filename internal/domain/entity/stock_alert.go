package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertState estado de stock de un producto.
type AlertState string

const (
	AlertNormal     AlertState = "NORMAL"
	AlertLowStock   AlertState = "LOW_STOCK"
	AlertOutOfStock AlertState = "OUT_OF_STOCK"
)

// StockAlert último resultado de evaluación para un producto; se reemplaza en cada evaluación.
type StockAlert struct {
	OwnerID      string
	ProductID    string
	State        AlertState
	CurrentStock decimal.Decimal
	MinStock     decimal.Decimal
	EvaluatedAt  time.Time
}
