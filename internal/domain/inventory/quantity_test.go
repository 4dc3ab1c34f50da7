package inventory_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
)

func TestCheckQuantityPrecision(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"1", true},
		{"1.0001", true},
		{"1.50000", true}, // ceros a la derecha no pierden precisión
		{"99999999999999.9999", true},
		{"0.00004", false},
		{"1.00005", false},
		{"100000000000000", false},
		{"-100000000000000", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			err := inventory.CheckQuantityPrecision("quantity", decimal.RequireFromString(tc.in))
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}
