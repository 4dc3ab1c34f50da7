package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product datos maestros del producto que el núcleo lee (nunca modifica).
type Product struct {
	ID        string
	OwnerID   string
	SKU       string
	Name      string
	Price     decimal.Decimal // precio de venta
	TaxRate   decimal.Decimal // 0.19, 0.05 o 19, 5
	MinStock  decimal.Decimal
	MaxStock  decimal.Decimal
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductThresholds umbrales de alerta del registro de productos.
type ProductThresholds struct {
	ProductID string
	OwnerID   string
	MinStock  decimal.Decimal
	MaxStock  decimal.Decimal
}

// LegacyStock contador de stock mutable anterior al libro (solo lectura, usado por la migración).
type LegacyStock struct {
	ProductID string
	OwnerID   string
	Quantity  decimal.Decimal
	Active    bool
}
