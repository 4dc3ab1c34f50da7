package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType clasifica un asiento del libro de stock. Conjunto cerrado: usar ParseMovementType en los bordes.
type MovementType string

// Tipos de movimiento de inventario.
const (
	MovementTypeIN         MovementType = "IN"         // entrada
	MovementTypeOUT        MovementType = "OUT"        // salida
	MovementTypeADJUSTMENT MovementType = "ADJUSTMENT" // ajuste (dirección en Direction)
	MovementTypeOPENING    MovementType = "OPENING"    // saldo inicial (migración)
)

// ParseMovementType valida un tipo de movimiento recibido como texto.
func ParseMovementType(s string) (MovementType, bool) {
	switch t := MovementType(strings.ToUpper(strings.TrimSpace(s))); t {
	case MovementTypeIN, MovementTypeOUT, MovementTypeADJUSTMENT, MovementTypeOPENING:
		return t, true
	}
	return "", false
}

// ReferenceType origen de negocio del asiento; junto con ReferenceID forma la llave de idempotencia.
type ReferenceType string

const (
	ReferenceSale       ReferenceType = "sale"
	ReferencePurchase   ReferenceType = "purchase"
	ReferenceReturn     ReferenceType = "return"
	ReferenceAdjustment ReferenceType = "adjustment"
	ReferenceOpening    ReferenceType = "opening"
	ReferenceMigration  ReferenceType = "migration"
)

// ParseReferenceType valida un tipo de referencia recibido como texto.
func ParseReferenceType(s string) (ReferenceType, bool) {
	switch t := ReferenceType(strings.ToLower(strings.TrimSpace(s))); t {
	case ReferenceSale, ReferencePurchase, ReferenceReturn, ReferenceAdjustment, ReferenceOpening, ReferenceMigration:
		return t, true
	}
	return "", false
}

// Direction sentido del efecto sobre el saldo.
type Direction string

const (
	DirectionIncrease Direction = "INCREASE"
	DirectionDecrease Direction = "DECREASE"
)

// Opposite devuelve el sentido contrario.
func (d Direction) Opposite() Direction {
	if d == DirectionIncrease {
		return DirectionDecrease
	}
	return DirectionIncrease
}

// DirectionOf devuelve el sentido implícito de un tipo de movimiento; ADJUSTMENT no tiene sentido implícito.
func DirectionOf(t MovementType) (Direction, bool) {
	switch t {
	case MovementTypeIN, MovementTypeOPENING:
		return DirectionIncrease, true
	case MovementTypeOUT:
		return DirectionDecrease, true
	}
	return "", false
}

// StockEntry asiento inmutable del libro de stock. Quantity siempre es positiva; el sentido lo da
// MovementType (o Direction en ajustes). Los asientos no se borran: se anulan con IsActive=false
// y un asiento compensatorio que apunta al original en ReversalOf.
type StockEntry struct {
	ID            string
	OwnerID       string
	ProductID     string
	MovementType  MovementType
	Direction     Direction
	Quantity      decimal.Decimal
	ReferenceType ReferenceType
	ReferenceID   string
	Notes         string
	CreatedBy     string
	CreatedAt     time.Time
	IsActive      bool
	ReversalOf    string
	Backorder     bool // la salida se aceptó dejando saldo negativo por autorización explícita
}

// SignedQuantity efecto del asiento sobre el saldo (+ entrada, - salida).
func (e *StockEntry) SignedQuantity() decimal.Decimal {
	if e.Direction == DirectionDecrease {
		return e.Quantity.Neg()
	}
	return e.Quantity
}
