package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ClassifyStock implementa la clasificación de estado de stock (servicio de dominio).
// Saldo <= 0 es agotado (negativo solo existe con backorder registrado);
// 0 < saldo <= mínimo, con mínimo > 0, es stock bajo; lo demás es normal.
func ClassifyStock(current, minStock decimal.Decimal) entity.AlertState {
	if current.LessThanOrEqual(decimal.Zero) {
		return entity.AlertOutOfStock
	}
	if minStock.GreaterThan(decimal.Zero) && current.LessThanOrEqual(minStock) {
		return entity.AlertLowStock
	}
	return entity.AlertNormal
}

// Balance suma el efecto de los asientos activos. Es la única definición de saldo en memoria;
// los asientos anulados nunca cuentan.
func Balance(entries []*entity.StockEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e == nil || !e.IsActive {
			continue
		}
		total = total.Add(e.SignedQuantity())
	}
	return total
}
