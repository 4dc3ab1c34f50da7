package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentKind tipo de documento de negocio creado junto con los asientos.
type DocumentKind string

const (
	DocumentInvoice    DocumentKind = "INVOICE"     // venta
	DocumentGRN        DocumentKind = "GRN"         // recepción de compra
	DocumentCreditNote DocumentKind = "CREDIT_NOTE" // devolución de cliente
	DocumentDebitNote  DocumentKind = "DEBIT_NOTE"  // devolución a proveedor
)

// BusinessDocument cabecera de factura, GRN o nota creada por el coordinador en la misma transacción.
type BusinessDocument struct {
	ID         string
	OwnerID    string
	Kind       DocumentKind
	Reference  string // referencia externa (ej. número de factura); coincide con reference_id de los asientos
	Number     string
	CustomerID string
	VendorID   string
	NetTotal   decimal.Decimal
	TaxTotal   decimal.Decimal
	GrandTotal decimal.Decimal
	OnCredit   bool
	Date       time.Time
	CreatedBy  string
	CreatedAt  time.Time
	Lines      []*DocumentLine
}
