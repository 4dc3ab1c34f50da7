package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockMovedEvent se publica por cada asiento confirmado.
type StockMovedEvent struct {
	EventType     string          `json:"event_type"`
	OwnerID       string          `json:"owner_id"`
	ProductID     string          `json:"product_id"`
	EntryID       string          `json:"entry_id"`
	MovementType  string          `json:"movement_type"`
	Direction     string          `json:"direction"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	Balance       decimal.Decimal `json:"balance"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// StockAlertEvent se publica cuando un producto queda en stock bajo o agotado.
type StockAlertEvent struct {
	EventType    string          `json:"event_type"`
	OwnerID      string          `json:"owner_id"`
	ProductID    string          `json:"product_id"`
	State        string          `json:"state"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	MinStock     decimal.Decimal `json:"min_stock"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

const (
	EventStockMoved = "stock.moved"
	EventStockAlert = "stock.alert"
)
