package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// LineItemRequest línea de una venta, compra o devolución.
type LineItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
}

// DocumentRequest datos opcionales del documento de negocio (factura, GRN, nota).
// Totales en cero = se calculan desde las líneas.
type DocumentRequest struct {
	Number     string          `json:"number,omitempty"`
	NetTotal   decimal.Decimal `json:"net_total"`
	TaxTotal   decimal.Decimal `json:"tax_total"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	OnCredit   bool            `json:"on_credit"`
	Date       *time.Time      `json:"date,omitempty"`
}

// RecordSaleRequest body para POST /api/inventory/sales.
type RecordSaleRequest struct {
	InvoiceRef     string            `json:"invoice_ref"`
	CustomerID     string            `json:"customer_id,omitempty"`
	Lines          []LineItemRequest `json:"lines"`
	Document       *DocumentRequest  `json:"document,omitempty"`
	AllowBackorder bool              `json:"allow_backorder"`
}

// RecordPurchaseRequest body para POST /api/inventory/purchases.
type RecordPurchaseRequest struct {
	PurchaseRef string            `json:"purchase_ref"`
	VendorID    string            `json:"vendor_id,omitempty"`
	Lines       []LineItemRequest `json:"lines"`
	Document    *DocumentRequest  `json:"document,omitempty"`
}

// RecordReturnRequest body para POST /api/inventory/returns. Direction: FROM_CUSTOMER | TO_VENDOR.
type RecordReturnRequest struct {
	Direction   string            `json:"direction"`
	OriginalRef string            `json:"original_ref"`
	ReturnRef   string            `json:"return_ref"` // obligatoria: una por devolución
	CustomerID  string            `json:"customer_id,omitempty"`
	VendorID    string            `json:"vendor_id,omitempty"`
	Lines       []LineItemRequest `json:"lines"`
	Document    *DocumentRequest  `json:"document,omitempty"`
}

// AdjustStockRequest body para POST /api/inventory/adjustments.
type AdjustStockRequest struct {
	ProductID   string          `json:"product_id"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
	Reason      string          `json:"reason"`
	Reference   string          `json:"reference,omitempty"`
}

// ReverseEntryRequest body para POST /api/inventory/entries/:id/reverse.
type ReverseEntryRequest struct {
	Reason string `json:"reason"`
}

// StockEntryResponse asiento del libro.
type StockEntryResponse struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	MovementType  string          `json:"movement_type"`
	Direction     string          `json:"direction"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	IsActive      bool            `json:"is_active"`
	ReversalOf    string          `json:"reversal_of,omitempty"`
	Backorder     bool            `json:"backorder,omitempty"`
}

// DocumentLineResponse línea del documento de negocio.
type DocumentLineResponse struct {
	ProductID string          `json:"product_id"`
	EntryID   string          `json:"entry_id,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// DocumentResponse documento de negocio creado con la operación.
type DocumentResponse struct {
	ID         string                 `json:"id"`
	Kind       string                 `json:"kind"`
	Reference  string                 `json:"reference"`
	Number     string                 `json:"number"`
	CustomerID string                 `json:"customer_id,omitempty"`
	VendorID   string                 `json:"vendor_id,omitempty"`
	NetTotal   decimal.Decimal        `json:"net_total"`
	TaxTotal   decimal.Decimal        `json:"tax_total"`
	GrandTotal decimal.Decimal        `json:"grand_total"`
	OnCredit   bool                   `json:"on_credit"`
	Date       string                 `json:"date"`
	Lines      []DocumentLineResponse `json:"lines"`
}

// OperationResponse resultado de una operación de stock.
type OperationResponse struct {
	Kind      string                     `json:"kind"`
	State     string                     `json:"state"`
	Reference string                     `json:"reference"`
	Replayed  bool                       `json:"replayed"`
	NoOp      bool                       `json:"no_op"`
	Entries   []StockEntryResponse       `json:"entries"`
	Balances  map[string]decimal.Decimal `json:"balances"`
	Alerts    map[string]string          `json:"alerts,omitempty"`
	Document  *DocumentResponse          `json:"document,omitempty"`
}

// StockResponse saldo actual de un producto.
type StockResponse struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// AlertResponse producto en LOW_STOCK u OUT_OF_STOCK.
type AlertResponse struct {
	ProductID    string          `json:"product_id"`
	State        string          `json:"state"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	MinStock     decimal.Decimal `json:"min_stock"`
	EvaluatedAt  time.Time       `json:"evaluated_at"`
}

// FromStockEntry convierte un asiento a su representación HTTP.
func FromStockEntry(e *entity.StockEntry) StockEntryResponse {
	return StockEntryResponse{
		ID:            e.ID,
		ProductID:     e.ProductID,
		MovementType:  string(e.MovementType),
		Direction:     string(e.Direction),
		Quantity:      e.Quantity,
		ReferenceType: string(e.ReferenceType),
		ReferenceID:   e.ReferenceID,
		Notes:         e.Notes,
		CreatedBy:     e.CreatedBy,
		CreatedAt:     e.CreatedAt,
		IsActive:      e.IsActive,
		ReversalOf:    e.ReversalOf,
		Backorder:     e.Backorder,
	}
}

// FromStockEntries convierte una lista de asientos; nunca devuelve nil.
func FromStockEntries(list []*entity.StockEntry) []StockEntryResponse {
	out := make([]StockEntryResponse, 0, len(list))
	for _, e := range list {
		out = append(out, FromStockEntry(e))
	}
	return out
}

// FromDocument convierte un documento de negocio; nil si d es nil.
func FromDocument(d *entity.BusinessDocument) *DocumentResponse {
	if d == nil {
		return nil
	}
	resp := &DocumentResponse{
		ID:         d.ID,
		Kind:       string(d.Kind),
		Reference:  d.Reference,
		Number:     d.Number,
		CustomerID: d.CustomerID,
		VendorID:   d.VendorID,
		NetTotal:   d.NetTotal,
		TaxTotal:   d.TaxTotal,
		GrandTotal: d.GrandTotal,
		OnCredit:   d.OnCredit,
		Date:       d.Date.Format("2006-01-02"),
		Lines:      make([]DocumentLineResponse, 0, len(d.Lines)),
	}
	for _, l := range d.Lines {
		resp.Lines = append(resp.Lines, DocumentLineResponse{
			ProductID: l.ProductID,
			EntryID:   l.EntryID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			TaxRate:   l.TaxRate,
			Subtotal:  l.Subtotal,
		})
	}
	return resp
}

// FromAlerts convierte alertas; nunca devuelve nil.
func FromAlerts(list []*entity.StockAlert) []AlertResponse {
	out := make([]AlertResponse, 0, len(list))
	for _, a := range list {
		out = append(out, AlertResponse{
			ProductID:    a.ProductID,
			State:        string(a.State),
			CurrentStock: a.CurrentStock,
			MinStock:     a.MinStock,
			EvaluatedAt:  a.EvaluatedAt,
		})
	}
	return out
}
