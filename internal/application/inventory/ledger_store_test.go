package inventory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
)

func appendIn(store *memory.Store, in inventory.AppendInput) (*entity.StockEntry, bool, error) {
	ledger := inventory.NewLedgerStore()
	var entry *entity.StockEntry
	var created bool
	err := store.Run(context.Background(), func(repos repository.Repos) error {
		var err error
		entry, created, err = ledger.Append(context.Background(), repos.Entries, in)
		return err
	})
	return entry, created, err
}

func TestAppend_DerivaDireccionDelTipo(t *testing.T) {
	store := memory.NewStore()
	entry, created, err := appendIn(store, inventory.AppendInput{
		OwnerID: "o", ProductID: "p", MovementType: entity.MovementTypeOUT, Quantity: qty(3),
		ReferenceType: entity.ReferenceSale, ReferenceID: "S-1",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, entity.DirectionDecrease, entry.Direction)
	assert.True(t, entry.IsActive)
	assertQty(t, -3, entry.SignedQuantity())
}

func TestAppend_MismaLlaveDevuelveElAsientoExistente(t *testing.T) {
	store := memory.NewStore()
	in := inventory.AppendInput{
		OwnerID: "o", ProductID: "p", MovementType: entity.MovementTypeIN, Quantity: qty(3),
		ReferenceType: entity.ReferencePurchase, ReferenceID: "PO-1",
	}
	first, _, err := appendIn(store, in)
	require.NoError(t, err)

	second, created, err := appendIn(store, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	in.OwnerID = "intruso"
	_, _, err = appendIn(store, in)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestAppend_Validaciones(t *testing.T) {
	base := inventory.AppendInput{
		OwnerID: "o", ProductID: "p", MovementType: entity.MovementTypeIN, Quantity: qty(1),
		ReferenceType: entity.ReferencePurchase, ReferenceID: "r",
	}
	cases := map[string]func(in *inventory.AppendInput){
		"tipo desconocido":             func(in *inventory.AppendInput) { in.MovementType = "TRANSFER" },
		"referencia desconocida":       func(in *inventory.AppendInput) { in.ReferenceType = "gift" },
		"cantidad cero":                func(in *inventory.AppendInput) { in.Quantity = qty(0) },
		"cantidad negativa":            func(in *inventory.AppendInput) { in.Quantity = qty(-1) },
		"cantidad con cinco decimales": func(in *inventory.AppendInput) { in.Quantity = decimal.RequireFromString("0.00005") },
		"sin referencia":               func(in *inventory.AppendInput) { in.ReferenceID = "" },
		"dirección contraria al tipo":  func(in *inventory.AppendInput) { in.Direction = entity.DirectionDecrease },
		"ajuste sin dirección":         func(in *inventory.AppendInput) { in.MovementType = entity.MovementTypeADJUSTMENT },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, _, err := appendIn(memory.NewStore(), in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestRebuild_EsIdempotente(t *testing.T) {
	store := memory.NewStore()
	_, _, err := appendIn(store, inventory.AppendInput{
		OwnerID: "o", ProductID: "p", MovementType: entity.MovementTypeOPENING, Quantity: qty(12),
		ReferenceType: entity.ReferenceMigration, ReferenceID: "legacy:p",
	})
	require.NoError(t, err)

	m := inventory.NewBalanceMaterializer()
	for i := 0; i < 2; i++ {
		err := store.Run(context.Background(), func(repos repository.Repos) error {
			total, err := m.Rebuild(context.Background(), repos, "p", "o")
			assertQty(t, 12, total)
			return err
		})
		require.NoError(t, err)
	}
}
