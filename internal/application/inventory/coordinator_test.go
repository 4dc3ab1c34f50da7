package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/lock"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const testOwner = "00000000-0000-0000-0000-0000000000aa"

type fixture struct {
	store     *memory.Store
	locks     *lock.KeyedMutex
	coord     *inventory.Coordinator
	alerts    *inventory.AlertEngine
	migration *inventory.MigrationEngine
}

func newFixture(t *testing.T, cfg inventory.CoordinatorConfig, pub inventory.EventPublisher) *fixture {
	t.Helper()
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 2 * time.Second
	}
	store := memory.NewStore()
	locks := lock.NewKeyedMutex()
	ledger := inventory.NewLedgerStore()
	materializer := inventory.NewBalanceMaterializer()
	alerts := inventory.NewAlertEngine(store, materializer, pub, nil)
	return &fixture{
		store:     store,
		locks:     locks,
		coord:     inventory.NewCoordinator(store, locks, ledger, materializer, alerts, pub, nil, cfg),
		alerts:    alerts,
		migration: inventory.NewMigrationEngine(store, locks, ledger, materializer, alerts, nil, cfg.LockTimeout),
	}
}

func qty(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func assertQty(t *testing.T, want int64, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, qty(want).Equal(got), "esperado %d, obtenido %s %v", want, got.String(), msgAndArgs)
}

func (f *fixture) purchase(t *testing.T, productID string, n int64, ref string) *inventory.OperationResult {
	t.Helper()
	res, err := f.coord.RecordPurchase(context.Background(), inventory.PurchaseCommand{
		OwnerID:     testOwner,
		Actor:       "tester",
		Lines:       []inventory.LineItem{{ProductID: productID, Quantity: qty(n)}},
		PurchaseRef: ref,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) sale(productID string, n int64, ref string) (*inventory.OperationResult, error) {
	return f.coord.RecordSale(context.Background(), inventory.SaleCommand{
		OwnerID:    testOwner,
		Actor:      "tester",
		Lines:      []inventory.LineItem{{ProductID: productID, Quantity: qty(n)}},
		InvoiceRef: ref,
	})
}

func (f *fixture) stock(t *testing.T, productID string) decimal.Decimal {
	t.Helper()
	q, err := f.coord.GetCurrentStock(context.Background(), testOwner, productID)
	require.NoError(t, err)
	return q
}

func (f *fixture) movements(t *testing.T, productID string) []*entity.StockEntry {
	t.Helper()
	list, err := f.coord.ListMovements(context.Background(), testOwner, productID, 500, 0)
	require.NoError(t, err)
	return list
}

func (f *fixture) customer(t *testing.T, id string) *entity.Customer {
	t.Helper()
	var c *entity.Customer
	require.NoError(t, f.store.Run(context.Background(), func(repos repository.Repos) error {
		var err error
		c, err = repos.Customers.GetByID(context.Background(), id)
		return err
	}))
	require.NotNil(t, c)
	return c
}

func (f *fixture) vendor(t *testing.T, id string) *entity.Vendor {
	t.Helper()
	var v *entity.Vendor
	require.NoError(t, f.store.Run(context.Background(), func(repos repository.Repos) error {
		var err error
		v, err = repos.Vendors.GetByID(context.Background(), id)
		return err
	}))
	require.NotNil(t, v)
	return v
}

// ──────────────────────────────────────────────────────────────────────────────
// Escenarios de punta a punta
// ──────────────────────────────────────────────────────────────────────────────

func TestEscenario_CompraVentaAjusteYAlerta(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.store.PutProduct(&entity.Product{ID: "P", OwnerID: testOwner, SKU: "P-1", MinStock: qty(60), Active: true})

	// 1. compra sobre libro vacío
	f.purchase(t, "P", 100, "PO-1")
	assertQty(t, 100, f.stock(t, "P"))

	// 2. venta y reintento idéntico
	res, err := f.sale("P", 30, "S1")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assertQty(t, 70, f.stock(t, "P"))

	again, err := f.sale("P", 30, "S1")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, res.Entries[0].ID, again.Entries[0].ID)
	assertQty(t, 70, f.stock(t, "P"))

	// 3. venta sin saldo suficiente
	_, err = f.sale("P", 80, "S2")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "P", insufficient.ProductID)
	assertQty(t, 70, insufficient.Available)
	assertQty(t, 70, f.stock(t, "P"))

	// 4. ajuste por daño
	adj, err := f.coord.AdjustStock(context.Background(), inventory.AdjustCommand{
		OwnerID: testOwner, ProductID: "P", NewQuantity: qty(50), Reason: "damage", Actor: "tester",
	})
	require.NoError(t, err)
	require.NotNil(t, adj.Adjustment)
	assertQty(t, 70, adj.Adjustment.OldQuantity)
	assertQty(t, 50, adj.Adjustment.NewQuantity)
	assertQty(t, -20, adj.Adjustment.Difference)
	assertQty(t, 50, f.stock(t, "P"))
	assert.Equal(t, entity.AlertLowStock, adj.Alerts["P"])

	// 5. evaluación de alerta
	state, err := f.alerts.Evaluate(context.Background(), "P", testOwner)
	require.NoError(t, err)
	assert.Equal(t, entity.AlertLowStock, state)

	// 2 asientos activos + 1 ajuste; el reintento no duplicó nada
	assert.Len(t, f.movements(t, "P"), 3)
}

func TestEscenario_MigracionDeSaldoLegado(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.store.PutLegacyStock(&entity.LegacyStock{ProductID: "Q", OwnerID: testOwner, Quantity: qty(40), Active: true})

	report, err := f.migration.Migrate(context.Background(), testOwner)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	item := report.Items[0]
	assert.Equal(t, "Q", item.ProductID)
	assert.True(t, item.Match)
	assert.True(t, item.Migrated)
	assertQty(t, 40, item.LedgerBalance)
	assert.Equal(t, 1, report.Migrated)

	entries := f.movements(t, "Q")
	require.Len(t, entries, 1)
	assert.Equal(t, entity.MovementTypeOPENING, entries[0].MovementType)
	assert.Equal(t, entity.ReferenceMigration, entries[0].ReferenceType)
	assert.Equal(t, "legacy:Q", entries[0].ReferenceID)
	assertQty(t, 40, f.stock(t, "Q"))
}

// ──────────────────────────────────────────────────────────────────────────────
// Propiedades
// ──────────────────────────────────────────────────────────────────────────────

func TestAbortoAtomico_VentaMultiItemSinEscriturasParciales(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	for _, p := range []string{"A", "B", "C"} {
		f.purchase(t, p, 10, "PO-"+p)
	}

	_, err := f.coord.RecordSale(context.Background(), inventory.SaleCommand{
		OwnerID: testOwner,
		Lines: []inventory.LineItem{
			{ProductID: "A", Quantity: qty(5)},
			{ProductID: "B", Quantity: qty(50)},
			{ProductID: "C", Quantity: qty(5)},
		},
		InvoiceRef: "INV-MULTI",
	})
	require.Error(t, err)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "B", insufficient.ProductID)

	for _, p := range []string{"A", "B", "C"} {
		assertQty(t, 10, f.stock(t, p), p)
		assert.Len(t, f.movements(t, p), 1, "solo la compra de %s", p)
	}
}

func TestAbortoAtomico_FalloDePersistenciaDeshaceTodo(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.store.PutCustomer(&entity.Customer{ID: "c1", OwnerID: testOwner, Name: "Cliente"})
	f.purchase(t, "A", 10, "PO-A")
	f.purchase(t, "B", 10, "PO-B")

	cmd := inventory.SaleCommand{
		OwnerID: testOwner,
		Lines: []inventory.LineItem{
			{ProductID: "A", Quantity: qty(2), UnitPrice: qty(100)},
			{ProductID: "B", Quantity: qty(3), UnitPrice: qty(100)},
		},
		CustomerID: "c1",
		InvoiceRef: "INV-9",
		Document:   &inventory.DocumentDraft{OnCredit: true},
	}
	f.store.FailNext(memory.OpDocumentsCreate, errors.New("disco lleno"))

	_, err := f.coord.RecordSale(context.Background(), cmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.True(t, domain.IsRetryable(err))

	assertQty(t, 10, f.stock(t, "A"))
	assertQty(t, 10, f.stock(t, "B"))
	assert.Len(t, f.movements(t, "A"), 1)
	assert.True(t, f.customer(t, "c1").Balance.IsZero(), "el saldo del cliente no debe moverse")

	// El reintento con la misma referencia confirma la operación completa.
	res, err := f.coord.RecordSale(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	require.NotNil(t, res.Document)
	assertQty(t, 8, f.stock(t, "A"))
	assertQty(t, 7, f.stock(t, "B"))
	assertQty(t, 500, f.customer(t, "c1").Balance)
}

func TestCarrera_DosVentasPorLaUltimaUnidad(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 1, "PO-1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.sale("P", 1, []string{"S-A", "S-B"}[i])
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrConcurrencyConflict):
			rejected++
		default:
			t.Fatalf("error inesperado: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assertQty(t, 0, f.stock(t, "P"))
}

func TestCarrera_NuncaQuedaSaldoNegativo(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{LockTimeout: 10 * time.Second}, nil)
	f.purchase(t, "P", 20, "PO-1")

	const buyers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok int
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.sale("P", 1, "S-"+decimal.NewFromInt(int64(i)).String())
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, ok)
	assertQty(t, 0, f.stock(t, "P"))

	rec, err := f.coord.Reconcile(context.Background(), testOwner, "P")
	require.NoError(t, err)
	assert.True(t, rec.Match)
	assertQty(t, 0, rec.Ledger)
}

func TestIdentidadDeSaldo_CacheIgualALibro(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.store.PutLegacyStock(&entity.LegacyStock{ProductID: "P", OwnerID: testOwner, Quantity: qty(15), Active: true})
	_, err := f.migration.Migrate(context.Background(), testOwner)
	require.NoError(t, err)

	f.purchase(t, "P", 30, "PO-1")
	_, err = f.sale("P", 12, "S-1")
	require.NoError(t, err)
	_, err = f.coord.AdjustStock(context.Background(), inventory.AdjustCommand{OwnerID: testOwner, ProductID: "P", NewQuantity: qty(40), Reason: "conteo"})
	require.NoError(t, err)
	_, err = f.sale("P", 5, "S-2")
	require.NoError(t, err)

	var sum decimal.Decimal
	for _, e := range f.movements(t, "P") {
		if e.IsActive {
			sum = sum.Add(e.SignedQuantity())
		}
	}
	assertQty(t, 35, sum)
	assertQty(t, 35, f.stock(t, "P"))

	rec, err := f.coord.Reconcile(context.Background(), testOwner, "P")
	require.NoError(t, err)
	assert.True(t, rec.Match)
}

// ──────────────────────────────────────────────────────────────────────────────
// Validaciones y casos borde
// ──────────────────────────────────────────────────────────────────────────────

func TestRecordSale_CantidadNoPositivaEsValidacion(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 10, "PO-1")

	for _, n := range []int64{0, -3} {
		_, err := f.sale("P", n, "S-X")
		require.Error(t, err)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Field, "quantity")
	}
	assertQty(t, 10, f.stock(t, "P"))
}

func TestCantidadesConMasDeCuatroDecimalesSonValidacion(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 10, "PO-1")

	_, err := f.coord.RecordSale(context.Background(), inventory.SaleCommand{
		OwnerID:    testOwner,
		Lines:      []inventory.LineItem{{ProductID: "P", Quantity: decimal.RequireFromString("0.00004")}},
		InvoiceRef: "S-X",
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "lines[0].quantity", verr.Field)
	assert.False(t, domain.IsRetryable(err))

	_, err = f.coord.AdjustStock(context.Background(), inventory.AdjustCommand{
		OwnerID: testOwner, ProductID: "P", NewQuantity: decimal.RequireFromString("1.00005"), Reason: "conteo",
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "new_quantity", verr.Field)
	assertQty(t, 10, f.stock(t, "P"))

	res, err := f.coord.RecordSale(context.Background(), inventory.SaleCommand{
		OwnerID:    testOwner,
		Lines:      []inventory.LineItem{{ProductID: "P", Quantity: decimal.RequireFromString("1.0001")}},
		InvoiceRef: "S-Y",
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("8.9999").Equal(res.Balances["P"]))
}

func TestRecordSale_SinReferenciaEsValidacion(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	_, err := f.sale("P", 1, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRecordSale_LineasRepetidasSeAgrupanPorProducto(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 10, "PO-1")

	res, err := f.coord.RecordSale(context.Background(), inventory.SaleCommand{
		OwnerID:    testOwner,
		Lines:      []inventory.LineItem{{ProductID: "P", Quantity: qty(4)}, {ProductID: "P", Quantity: qty(3)}},
		InvoiceRef: "S-1",
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assertQty(t, 7, res.Entries[0].Quantity)
	assertQty(t, 3, f.stock(t, "P"))
}

func TestRecordSale_MismaReferenciaConOtrosProductosEsConflicto(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "A", 10, "PO-A")
	f.purchase(t, "B", 10, "PO-B")
	_, err := f.sale("A", 1, "S-1")
	require.NoError(t, err)

	_, err = f.sale("B", 1, "S-1")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assertQty(t, 10, f.stock(t, "B"))
}

func TestRecordSale_ClienteDeOtroPropietarioNoExiste(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.store.PutCustomer(&entity.Customer{ID: "c9", OwnerID: "otro"})
	f.purchase(t, "P", 10, "PO-1")

	_, err := f.coord.RecordSale(context.Background(), inventory.SaleCommand{
		OwnerID:    testOwner,
		Lines:      []inventory.LineItem{{ProductID: "P", Quantity: qty(1)}},
		CustomerID: "c9",
		InvoiceRef: "S-1",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assertQty(t, 10, f.stock(t, "P"))
}

func TestRecordSale_BloqueoOcupadoEsConflictoReintentable(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{LockTimeout: 30 * time.Millisecond}, nil)
	f.purchase(t, "P", 10, "PO-1")

	unlock, err := f.locks.Lock(context.Background(), "stock:"+testOwner+":P", time.Second)
	require.NoError(t, err)
	_, err = f.sale("P", 1, "S-1")
	unlock()

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.True(t, domain.IsRetryable(err))

	_, err = f.sale("P", 1, "S-1")
	require.NoError(t, err)
	assertQty(t, 9, f.stock(t, "P"))
}

func TestBackorder_SoloConConfiguracionYPeticionExplicita(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 2, "PO-1")
	_, err := f.coord.RecordSale(context.Background(), inventory.SaleCommand{
		OwnerID: testOwner, Lines: []inventory.LineItem{{ProductID: "P", Quantity: qty(5)}}, InvoiceRef: "S-1", AllowBackorder: true,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	g := newFixture(t, inventory.CoordinatorConfig{AllowBackorder: true}, nil)
	g.purchase(t, "P", 2, "PO-1")
	res, err := g.coord.RecordSale(context.Background(), inventory.SaleCommand{
		OwnerID: testOwner, Lines: []inventory.LineItem{{ProductID: "P", Quantity: qty(5)}}, InvoiceRef: "S-1", AllowBackorder: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Entries[0].Backorder)
	assertQty(t, -3, g.stock(t, "P"))
	assert.Equal(t, entity.AlertOutOfStock, res.Alerts["P"])

	// Sin la marca, el mismo servicio sigue rechazando.
	_, err = g.sale("P", 1, "S-2")
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestAdjustStock_MismoValorEsNoOp(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 10, "PO-1")

	res, err := f.coord.AdjustStock(context.Background(), inventory.AdjustCommand{
		OwnerID: testOwner, ProductID: "P", NewQuantity: qty(10), Reason: "conteo",
	})
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, inventory.StateDone, res.State)
	assert.Empty(t, res.Entries)
	assert.Len(t, f.movements(t, "P"), 1)
}

func TestAdjustStock_Validaciones(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	cases := []inventory.AdjustCommand{
		{OwnerID: testOwner, ProductID: "P", NewQuantity: qty(-1), Reason: "x"},
		{OwnerID: testOwner, ProductID: "P", NewQuantity: qty(1), Reason: "  "},
		{OwnerID: testOwner, NewQuantity: qty(1), Reason: "x"},
	}
	for _, cmd := range cases {
		_, err := f.coord.AdjustStock(context.Background(), cmd)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
}

func TestAdjustStock_ConReferenciaEsIdempotente(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 10, "PO-1")
	cmd := inventory.AdjustCommand{OwnerID: testOwner, ProductID: "P", NewQuantity: qty(15), Reason: "conteo", Reference: "ADJ-1"}

	first, err := f.coord.AdjustStock(context.Background(), cmd)
	require.NoError(t, err)
	second, err := f.coord.AdjustStock(context.Background(), cmd)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Entries[0].ID, second.Entries[0].ID)
	require.NotNil(t, second.Adjustment)
	assertQty(t, 5, second.Adjustment.Difference)
	assertQty(t, 15, f.stock(t, "P"))
}

func TestExecute_AjusteSeDelegaEnAdjustStock(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 10, "PO-1")

	res, err := f.coord.Execute(context.Background(), inventory.Operation{
		Kind:    inventory.OperationAdjustment,
		OwnerID: testOwner,
		Lines:   []inventory.LineItem{{ProductID: "P", Quantity: qty(4)}},
		Notes:   "merma",
	})
	require.NoError(t, err)
	assert.Equal(t, inventory.OperationAdjustment, res.Kind)
	assertQty(t, 4, f.stock(t, "P"))
}

// ──────────────────────────────────────────────────────────────────────────────
// Documentos y entidades correlacionadas
// ──────────────────────────────────────────────────────────────────────────────

func TestVentaACredito_CreaFacturaYSumaSaldoDelCliente(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.store.PutCustomer(&entity.Customer{ID: "c1", OwnerID: testOwner})
	f.purchase(t, "P", 10, "PO-1")

	res, err := f.coord.RecordSale(context.Background(), inventory.SaleCommand{
		OwnerID:    testOwner,
		Lines:      []inventory.LineItem{{ProductID: "P", Quantity: qty(2), UnitPrice: qty(100), TaxRate: qty(19)}},
		CustomerID: "c1",
		InvoiceRef: "FV-1",
		Document:   &inventory.DocumentDraft{OnCredit: true},
	})
	require.NoError(t, err)
	doc := res.Document
	require.NotNil(t, doc)
	assert.Equal(t, entity.DocumentInvoice, doc.Kind)
	assert.Equal(t, "FV-1", doc.Number)
	assertQty(t, 200, doc.NetTotal)
	assertQty(t, 38, doc.TaxTotal)
	assertQty(t, 238, doc.GrandTotal)
	require.Len(t, doc.Lines, 1)
	assert.Equal(t, res.Entries[0].ID, doc.Lines[0].EntryID)
	assertQty(t, 238, f.customer(t, "c1").Balance)

	// Devolución del cliente: entra stock y baja el saldo.
	ret, err := f.coord.RecordReturn(context.Background(), inventory.ReturnCommand{
		OwnerID:     testOwner,
		Lines:       []inventory.LineItem{{ProductID: "P", Quantity: qty(1), UnitPrice: qty(100), TaxRate: qty(19)}},
		Direction:   inventory.ReturnFromCustomer,
		OriginalRef: "FV-1",
		ReturnRef:   "NC-1",
		CustomerID:  "c1",
		Document:    &inventory.DocumentDraft{OnCredit: true},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentCreditNote, ret.Document.Kind)
	assert.Equal(t, entity.MovementTypeIN, ret.Entries[0].MovementType)
	assert.Equal(t, entity.ReferenceReturn, ret.Entries[0].ReferenceType)
	assertQty(t, 9, f.stock(t, "P"))
	assertQty(t, 119, f.customer(t, "c1").Balance)
}

func TestCompraACredito_YDevolucionAlProveedor(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.store.PutVendor(&entity.Vendor{ID: "v1", OwnerID: testOwner})

	res, err := f.coord.RecordPurchase(context.Background(), inventory.PurchaseCommand{
		OwnerID:     testOwner,
		Lines:       []inventory.LineItem{{ProductID: "P", Quantity: qty(10), UnitPrice: qty(5)}},
		VendorID:    "v1",
		PurchaseRef: "OC-1",
		Document:    &inventory.DocumentDraft{OnCredit: true, GrandTotal: qty(60), NetTotal: qty(50), TaxTotal: qty(10)},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentGRN, res.Document.Kind)
	assertQty(t, 60, res.Document.GrandTotal)
	assertQty(t, 60, f.vendor(t, "v1").Payable)

	ret, err := f.coord.RecordReturn(context.Background(), inventory.ReturnCommand{
		OwnerID:     testOwner,
		Lines:       []inventory.LineItem{{ProductID: "P", Quantity: qty(4), UnitPrice: qty(5)}},
		Direction:   inventory.ReturnToVendor,
		OriginalRef: "OC-1",
		ReturnRef:   "ND-1",
		VendorID:    "v1",
		Document:    &inventory.DocumentDraft{OnCredit: true},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.MovementTypeOUT, ret.Entries[0].MovementType)
	assert.Equal(t, entity.DocumentDebitNote, ret.Document.Kind)
	assertQty(t, 6, f.stock(t, "P"))
	assertQty(t, 40, f.vendor(t, "v1").Payable)

	// No se puede devolver al proveedor más de lo que hay.
	_, err = f.coord.RecordReturn(context.Background(), inventory.ReturnCommand{
		OwnerID:   testOwner,
		Lines:     []inventory.LineItem{{ProductID: "P", Quantity: qty(7)}},
		Direction: inventory.ReturnToVendor,
		ReturnRef: "DEV-2",
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestRecordReturn_DireccionDesconocida(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	_, err := f.coord.RecordReturn(context.Background(), inventory.ReturnCommand{
		OwnerID: testOwner, Lines: []inventory.LineItem{{ProductID: "P", Quantity: qty(1)}}, Direction: "SIDEWAYS", ReturnRef: "R-1",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRecordReturn_DevolucionesParcialesDeLaMismaVenta(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 100, "PO-1")
	_, err := f.sale("P", 10, "S1")
	require.NoError(t, err)

	devolver := func(n int64, ref string) (*inventory.OperationResult, error) {
		return f.coord.RecordReturn(context.Background(), inventory.ReturnCommand{
			OwnerID:     testOwner,
			Lines:       []inventory.LineItem{{ProductID: "P", Quantity: qty(n)}},
			Direction:   inventory.ReturnFromCustomer,
			OriginalRef: "S1",
			ReturnRef:   ref,
		})
	}

	first, err := devolver(3, "NC-1")
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	second, err := devolver(4, "NC-2")
	require.NoError(t, err)
	assert.False(t, second.Replayed, "otra devolución contra la misma venta no es un reintento")
	assertQty(t, 97, f.stock(t, "P"))
	assert.Equal(t, "devolución de S1", second.Entries[0].Notes)

	_, err = devolver(1, "")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "return_ref", verr.Field)
	assertQty(t, 97, f.stock(t, "P"))
}

func TestRecordSale_ReintentoConOtraCantidadEsConflicto(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 100, "PO-1")
	_, err := f.sale("P", 10, "S1")
	require.NoError(t, err)

	_, err = f.sale("P", 50, "S1")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.False(t, domain.IsRetryable(err))
	assertQty(t, 90, f.stock(t, "P"))

	res, err := f.sale("P", 10, "S1")
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assertQty(t, 90, f.stock(t, "P"))
}

// ──────────────────────────────────────────────────────────────────────────────
// Anulaciones y reconciliación
// ──────────────────────────────────────────────────────────────────────────────

func TestReverseEntry_RestauraSaldoYDejaParDeAuditoria(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 100, "PO-1")
	sale, err := f.sale("P", 30, "S-1")
	require.NoError(t, err)
	saleEntry := sale.Entries[0]

	res, err := f.coord.ReverseEntry(context.Background(), inventory.ReverseCommand{
		OwnerID: testOwner, EntryID: saleEntry.ID, Actor: "tester", Reason: "factura anulada",
	})
	require.NoError(t, err)
	assertQty(t, 100, f.stock(t, "P"))
	require.Len(t, res.Entries, 1)
	comp := res.Entries[0]
	assert.Equal(t, saleEntry.ID, comp.ReversalOf)
	assert.Equal(t, entity.MovementTypeIN, comp.MovementType)
	assert.False(t, comp.IsActive)

	var original *entity.StockEntry
	for _, e := range f.movements(t, "P") {
		if e.ID == saleEntry.ID {
			original = e
		}
	}
	require.NotNil(t, original)
	assert.False(t, original.IsActive)

	// Segunda anulación: el asiento ya no está activo.
	_, err = f.coord.ReverseEntry(context.Background(), inventory.ReverseCommand{OwnerID: testOwner, EntryID: saleEntry.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Tras anular, la misma referencia puede registrarse de nuevo.
	again, err := f.sale("P", 30, "S-1")
	require.NoError(t, err)
	assert.False(t, again.Replayed)
	assertQty(t, 70, f.stock(t, "P"))
}

func TestReverseEntry_AjusteDejaSuRegistroDeAjuste(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 10, "PO-1")
	adj, err := f.coord.AdjustStock(context.Background(), inventory.AdjustCommand{
		OwnerID: testOwner, ProductID: "P", NewQuantity: qty(4), Reason: "merma", Actor: "tester",
	})
	require.NoError(t, err)

	res, err := f.coord.ReverseEntry(context.Background(), inventory.ReverseCommand{
		OwnerID: testOwner, EntryID: adj.Entries[0].ID, Actor: "auditor", Reason: "conteo mal digitado",
	})
	require.NoError(t, err)
	assertQty(t, 10, f.stock(t, "P"))
	comp := res.Entries[0]
	assert.Equal(t, entity.MovementTypeADJUSTMENT, comp.MovementType)
	assert.Equal(t, entity.DirectionIncrease, comp.Direction)

	var record *entity.AdjustmentRecord
	require.NoError(t, f.store.Run(context.Background(), func(repos repository.Repos) error {
		var err error
		record, err = repos.Adjustments.GetByEntryID(context.Background(), comp.ID)
		return err
	}))
	require.NotNil(t, record, "el asiento compensatorio también tiene registro de ajuste")
	assertQty(t, 4, record.OldQuantity)
	assertQty(t, 10, record.NewQuantity)
	assertQty(t, 6, record.Difference)
	assert.Equal(t, "conteo mal digitado", record.Reason)
	assert.Equal(t, "auditor", record.CreatedBy)
	assert.Equal(t, record, res.Adjustment)
}

func TestReverseEntry_NoPuedeDejarSaldoNegativo(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	purchase := f.purchase(t, "P", 10, "PO-1")
	_, err := f.sale("P", 8, "S-1")
	require.NoError(t, err)

	_, err = f.coord.ReverseEntry(context.Background(), inventory.ReverseCommand{OwnerID: testOwner, EntryID: purchase.Entries[0].ID})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assertQty(t, 2, f.stock(t, "P"))
}

func TestReverseEntry_AsientoInexistenteOAjeno(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	res := f.purchase(t, "P", 10, "PO-1")

	_, err := f.coord.ReverseEntry(context.Background(), inventory.ReverseCommand{OwnerID: testOwner, EntryID: "no-existe"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.coord.ReverseEntry(context.Background(), inventory.ReverseCommand{OwnerID: "otro", EntryID: res.Entries[0].ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReconcile_DetectaDivergenciaYRebuildLaCorrige(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 10, "PO-1")
	f.store.PutCurrentStock(&entity.CurrentStock{OwnerID: testOwner, ProductID: "P", Quantity: qty(99)})

	rec, err := f.coord.Reconcile(context.Background(), testOwner, "P")
	require.NoError(t, err)
	assert.False(t, rec.Match)
	assertQty(t, 99, rec.Cached)
	assertQty(t, 10, rec.Ledger)

	total, err := f.coord.RebuildBalance(context.Background(), testOwner, "P")
	require.NoError(t, err)
	assertQty(t, 10, total)
	total, err = f.coord.RebuildBalance(context.Background(), testOwner, "P")
	require.NoError(t, err)
	assertQty(t, 10, total, "rebuild es idempotente")

	rec, err = f.coord.Reconcile(context.Background(), testOwner, "P")
	require.NoError(t, err)
	assert.True(t, rec.Match)
}

func TestGetCurrentStock_SinCacheSeReconstruyeDesdeElLibro(t *testing.T) {
	f := newFixture(t, inventory.CoordinatorConfig{}, nil)
	f.purchase(t, "P", 10, "PO-1")
	f.store.DropCurrentStock(testOwner, "P")

	assertQty(t, 10, f.stock(t, "P"))
	rec, err := f.coord.Reconcile(context.Background(), testOwner, "P")
	require.NoError(t, err)
	assert.False(t, rec.CacheMissing, "la lectura debe repoblar la caché")
	assert.True(t, rec.Match)
}

// ──────────────────────────────────────────────────────────────────────────────
// Eventos
// ──────────────────────────────────────────────────────────────────────────────

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, key string, event any) error {
	return m.Called(key, event).Error(0)
}

func TestEventos_MovimientoYAlertaSePublicanTrasConfirmar(t *testing.T) {
	pub := new(mockPublisher)
	key := testOwner + ":P"
	pub.On("Publish", key, mock.AnythingOfType("inventory.StockMovedEvent")).Return(nil).Twice()
	pub.On("Publish", key, mock.AnythingOfType("inventory.StockAlertEvent")).Return(nil).Once()

	f := newFixture(t, inventory.CoordinatorConfig{}, pub)
	f.purchase(t, "P", 3, "PO-1")
	_, err := f.sale("P", 3, "S-1")
	require.NoError(t, err)

	pub.AssertExpectations(t)
}

func TestEventos_FalloDelBrokerNoDeshaceLaOperacion(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker caído"))

	f := newFixture(t, inventory.CoordinatorConfig{}, pub)
	f.purchase(t, "P", 3, "PO-1")
	assertQty(t, 3, f.stock(t, "P"))
}
