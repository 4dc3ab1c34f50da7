package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// OperationKind tipo de operación de negocio del coordinador.
type OperationKind string

const (
	OperationSale       OperationKind = "sale"
	OperationPurchase   OperationKind = "purchase"
	OperationReturn     OperationKind = "return"
	OperationAdjustment OperationKind = "adjustment"
	OperationReversal   OperationKind = "reversal"
)

// OperationState estados de la máquina del coordinador.
type OperationState string

const (
	StateValidating OperationState = "VALIDATING"
	StateReserving  OperationState = "RESERVING"
	StateCommitting OperationState = "COMMITTING"
	StateDone       OperationState = "DONE"
	StateAborted    OperationState = "ABORTED"
)

// ReturnDirection sentido de una devolución.
type ReturnDirection string

const (
	ReturnFromCustomer ReturnDirection = "FROM_CUSTOMER" // entra stock
	ReturnToVendor     ReturnDirection = "TO_VENDOR"     // sale stock
)

// LineItem línea de una operación. UnitPrice y TaxRate solo se usan para el documento.
type LineItem struct {
	ProductID string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	TaxRate   decimal.Decimal
}

// DocumentDraft documento a crear junto con los asientos. Si GrandTotal es cero los totales se
// calculan desde las líneas.
type DocumentDraft struct {
	Number     string
	NetTotal   decimal.Decimal
	TaxTotal   decimal.Decimal
	GrandTotal decimal.Decimal
	OnCredit   bool
	Date       time.Time
}

// Correlated entidades externas que se actualizan en la misma transacción.
type Correlated struct {
	CustomerID string
	VendorID   string
	Document   *DocumentDraft
}

// Operation entrada genérica de Execute.
type Operation struct {
	Kind            OperationKind
	OwnerID         string
	Actor           string
	Reference       string
	ReturnDirection ReturnDirection // solo para devoluciones
	Lines           []LineItem
	Correlated      Correlated
	AllowBackorder  bool
	Notes           string
}

// OperationResult resultado de una operación. Replayed indica que la referencia ya estaba
// registrada y no se escribió nada; NoOp que no había nada que escribir.
type OperationResult struct {
	Kind       OperationKind                `json:"kind"`
	State      OperationState               `json:"state"`
	Reference  string                       `json:"reference"`
	Entries    []*entity.StockEntry         `json:"entries"`
	Balances   map[string]decimal.Decimal   `json:"balances"`
	Alerts     map[string]entity.AlertState `json:"alerts,omitempty"`
	Document   *entity.BusinessDocument     `json:"document,omitempty"`
	Adjustment *entity.AdjustmentRecord     `json:"adjustment,omitempty"`
	Replayed   bool                         `json:"replayed"`
	NoOp       bool                         `json:"no_op"`
}

// SaleCommand venta: salidas de stock; a crédito incrementa el saldo del cliente.
type SaleCommand struct {
	OwnerID        string
	Actor          string
	Lines          []LineItem
	CustomerID     string
	InvoiceRef     string
	Document       *DocumentDraft
	AllowBackorder bool
}

// PurchaseCommand compra: entradas de stock; a crédito incrementa la cuenta por pagar.
type PurchaseCommand struct {
	OwnerID     string
	Actor       string
	Lines       []LineItem
	VendorID    string
	PurchaseRef string
	Document    *DocumentDraft
}

// ReturnCommand devolución de cliente (entrada) o a proveedor (salida).
// ReturnRef identifica la devolución y es obligatoria; OriginalRef solo queda en las notas del asiento.
type ReturnCommand struct {
	OwnerID     string
	Actor       string
	Lines       []LineItem
	Direction   ReturnDirection
	OriginalRef string
	ReturnRef   string
	CustomerID  string
	VendorID    string
	Document    *DocumentDraft
}

// AdjustCommand fija el saldo de un producto en NewQuantity.
type AdjustCommand struct {
	OwnerID     string
	ProductID   string
	NewQuantity decimal.Decimal
	Reason      string
	Actor       string
	Reference   string // opcional; con referencia el ajuste es idempotente
}

// ReverseCommand anula un asiento.
type ReverseCommand struct {
	OwnerID string
	EntryID string
	Actor   string
	Reason  string
}
