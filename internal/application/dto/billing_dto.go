package dto

import "github.com/shopspring/decimal"

// CreateInvoiceRequest body para POST /api/invoices.
// Reference identifica la venta en el libro; si va vacía se usa Prefix-Number.
type CreateInvoiceRequest struct {
	CustomerID     string               `json:"customer_id"`
	Prefix         string               `json:"prefix"`
	Number         string               `json:"number,omitempty"` // opcional; si va vacío se genera uno único
	Reference      string               `json:"reference,omitempty"`
	OnCredit       bool                 `json:"on_credit"`
	AllowBackorder bool                 `json:"allow_backorder"`
	Items          []InvoiceItemRequest `json:"items"`
}

// InvoiceItemRequest línea de factura (producto, cantidad, precio unitario).
// UnitPrice en cero = precio de lista del producto.
type InvoiceItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// InvoiceResponse factura con detalle.
type InvoiceResponse struct {
	ID           string                  `json:"id"`
	OwnerID      string                  `json:"owner_id"`
	CustomerID   string                  `json:"customer_id"`
	CustomerName string                  `json:"customer_name,omitempty"`
	Reference    string                  `json:"reference"`
	Number       string                  `json:"number"`
	Date         string                  `json:"date"`
	NetTotal     decimal.Decimal         `json:"net_total"`
	TaxTotal     decimal.Decimal         `json:"tax_total"`
	GrandTotal   decimal.Decimal         `json:"grand_total"`
	OnCredit     bool                    `json:"on_credit"`
	Replayed     bool                    `json:"replayed,omitempty"`
	Details      []InvoiceDetailResponse `json:"details"`
}

// InvoiceDetailResponse línea de detalle en la respuesta.
type InvoiceDetailResponse struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	EntryID   string          `json:"entry_id,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}
