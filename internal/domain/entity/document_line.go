package entity

import "github.com/shopspring/decimal"

// DocumentLine línea de un documento de negocio.
type DocumentLine struct {
	ID         string
	DocumentID string
	ProductID  string
	EntryID    string // asiento de stock generado por la línea
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	TaxRate    decimal.Decimal
	Subtotal   decimal.Decimal
}

// NormalizeTaxRate acepta la tasa como fracción (0.19) o porcentaje (19) y la devuelve como fracción.
func NormalizeTaxRate(rate decimal.Decimal) decimal.Decimal {
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		return rate.Div(decimal.NewFromInt(100))
	}
	return rate
}
