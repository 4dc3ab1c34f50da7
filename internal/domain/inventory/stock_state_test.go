package inventory_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
)

func TestClassifyStock(t *testing.T) {
	d := decimal.NewFromInt
	cases := []struct {
		name    string
		current decimal.Decimal
		min     decimal.Decimal
		want    entity.AlertState
	}{
		{"cero es agotado", d(0), d(10), entity.AlertOutOfStock},
		{"negativo por backorder es agotado", d(-3), d(10), entity.AlertOutOfStock},
		{"igual al mínimo es bajo", d(10), d(10), entity.AlertLowStock},
		{"bajo el mínimo es bajo", d(1), d(10), entity.AlertLowStock},
		{"sobre el mínimo es normal", d(11), d(10), entity.AlertNormal},
		{"sin mínimo nunca es bajo", d(1), d(0), entity.AlertNormal},
		{"escenario ajuste 50 con mínimo 60", d(50), d(60), entity.AlertLowStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, inventory.ClassifyStock(tc.current, tc.min))
		})
	}
}

func TestBalance_IgnoraAsientosAnulados(t *testing.T) {
	entries := []*entity.StockEntry{
		{MovementType: entity.MovementTypeOPENING, Direction: entity.DirectionIncrease, Quantity: decimal.NewFromInt(40), IsActive: true},
		{MovementType: entity.MovementTypeIN, Direction: entity.DirectionIncrease, Quantity: decimal.NewFromInt(100), IsActive: true},
		{MovementType: entity.MovementTypeOUT, Direction: entity.DirectionDecrease, Quantity: decimal.NewFromInt(30), IsActive: true},
		{MovementType: entity.MovementTypeADJUSTMENT, Direction: entity.DirectionDecrease, Quantity: decimal.NewFromInt(20), IsActive: true},
		{MovementType: entity.MovementTypeOUT, Direction: entity.DirectionDecrease, Quantity: decimal.NewFromInt(50), IsActive: false},
		nil,
	}
	assert.True(t, decimal.NewFromInt(90).Equal(inventory.Balance(entries)))
}
