package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

// Las cantidades se persisten como NUMERIC(18,4).
const (
	QuantityScale     = 4
	quantityIntDigits = 14
)

var maxQuantity = decimal.New(1, quantityIntDigits)

// CheckQuantityPrecision rechaza cantidades que el almacenamiento redondearía o no podría guardar.
func CheckQuantityPrecision(field string, q decimal.Decimal) error {
	if !q.Equal(q.Truncate(QuantityScale)) {
		return domain.Invalid(field, fmt.Sprintf("admite como máximo %d decimales", QuantityScale))
	}
	if q.Abs().GreaterThanOrEqual(maxQuantity) {
		return domain.Invalid(field, "fuera de rango")
	}
	return nil
}
