package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/billing"
	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/lock"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
)

const (
	owner    = "owner-1"
	customer = "cli-1"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type env struct {
	store *memory.Store
	coord *inventory.Coordinator
	uc    *billing.CreateInvoiceUseCase
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	materializer := inventory.NewBalanceMaterializer()
	alerts := inventory.NewAlertEngine(store, materializer, nil, nil)
	coord := inventory.NewCoordinator(store, lock.NewKeyedMutex(), inventory.NewLedgerStore(), materializer, alerts, nil, nil,
		inventory.CoordinatorConfig{LockTimeout: time.Second})

	store.PutCustomer(&entity.Customer{ID: customer, OwnerID: owner, Name: "Tienda La 14"})
	store.PutProduct(&entity.Product{ID: "arroz", OwnerID: owner, Name: "Arroz 500g", Price: dec("1000"), TaxRate: dec("19"), Active: true})
	store.PutProduct(&entity.Product{ID: "leche", OwnerID: owner, Name: "Leche 1L", Price: dec("3000"), TaxRate: dec("0.05"), Active: true})

	_, err := coord.RecordPurchase(context.Background(), inventory.PurchaseCommand{
		OwnerID:     owner,
		Actor:       "tester",
		PurchaseRef: "PO-1",
		Lines: []inventory.LineItem{
			{ProductID: "arroz", Quantity: dec("10")},
			{ProductID: "leche", Quantity: dec("5")},
		},
	})
	require.NoError(t, err)
	return &env{store: store, coord: coord, uc: billing.NewCreateInvoiceUseCase(coord, store, nil)}
}

func (e *env) stock(t *testing.T, productID string) decimal.Decimal {
	t.Helper()
	q, err := e.coord.GetCurrentStock(context.Background(), owner, productID)
	require.NoError(t, err)
	return q
}

func (e *env) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	var c *entity.Customer
	require.NoError(t, e.store.Run(context.Background(), func(repos repository.Repos) error {
		var err error
		c, err = repos.Customers.GetByID(context.Background(), customer)
		return err
	}))
	return c.Balance
}

func request() dto.CreateInvoiceRequest {
	return dto.CreateInvoiceRequest{
		CustomerID: customer,
		Prefix:     "FV",
		Number:     "100",
		OnCredit:   true,
		Items: []dto.InvoiceItemRequest{
			{ProductID: "arroz", Quantity: dec("2")},
			{ProductID: "leche", Quantity: dec("1"), UnitPrice: dec("2800")},
		},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// CreateInvoice
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateInvoice_CalculaTotalesYDescuentaStock(t *testing.T) {
	e := newEnv(t)

	inv, err := e.uc.CreateInvoice(context.Background(), owner, "vendedor-1", request())
	require.NoError(t, err)

	// arroz: 2 x 1000 = 2000 + 19% ; leche: 1 x 2800 = 2800 + 5%
	assert.True(t, dec("4800").Equal(inv.NetTotal), inv.NetTotal.String())
	assert.True(t, dec("520").Equal(inv.TaxTotal), inv.TaxTotal.String())
	assert.True(t, dec("5320").Equal(inv.GrandTotal), inv.GrandTotal.String())
	assert.Equal(t, "FV-100", inv.Reference)
	assert.Equal(t, "FV100", inv.Number)
	assert.Equal(t, "Tienda La 14", inv.CustomerName)
	require.Len(t, inv.Details, 2)
	for _, d := range inv.Details {
		assert.NotEmpty(t, d.EntryID, "cada línea apunta a su asiento")
	}

	assert.True(t, dec("8").Equal(e.stock(t, "arroz")))
	assert.True(t, dec("4").Equal(e.stock(t, "leche")))
	assert.True(t, dec("5320").Equal(e.balance(t)), "venta a crédito suma al saldo del cliente")
}

func TestCreateInvoice_StockInsuficienteNoCreaFactura(t *testing.T) {
	e := newEnv(t)
	in := request()
	in.Items[1].Quantity = dec("6")

	_, err := e.uc.CreateInvoice(context.Background(), owner, "vendedor-1", in)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	assert.True(t, dec("10").Equal(e.stock(t, "arroz")), "ninguna línea se descuenta")
	assert.True(t, dec("5").Equal(e.stock(t, "leche")))
	assert.True(t, e.balance(t).IsZero())
}

func TestCreateInvoice_ReintentoDevuelveLaMismaFactura(t *testing.T) {
	e := newEnv(t)

	first, err := e.uc.CreateInvoice(context.Background(), owner, "vendedor-1", request())
	require.NoError(t, err)
	second, err := e.uc.CreateInvoice(context.Background(), owner, "vendedor-1", request())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Replayed)
	assert.True(t, dec("8").Equal(e.stock(t, "arroz")), "el reintento no descuenta dos veces")
	assert.True(t, dec("5320").Equal(e.balance(t)))
}

func TestCreateInvoice_SinNumeroCadaSolicitudEsUnaVentaNueva(t *testing.T) {
	e := newEnv(t)
	in := func(qty string) dto.CreateInvoiceRequest {
		return dto.CreateInvoiceRequest{
			CustomerID: customer,
			Prefix:     "FV",
			Items:      []dto.InvoiceItemRequest{{ProductID: "arroz", Quantity: dec(qty)}},
		}
	}

	a, err := e.uc.CreateInvoice(context.Background(), owner, "vendedor-1", in("2"))
	require.NoError(t, err)
	b, err := e.uc.CreateInvoice(context.Background(), owner, "vendedor-1", in("5"))
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Reference, b.Reference)
	assert.False(t, b.Replayed)
	assert.True(t, dec("3").Equal(e.stock(t, "arroz")), e.stock(t, "arroz").String())
}

func TestCreateInvoice_Validaciones(t *testing.T) {
	e := newEnv(t)
	e.store.PutProduct(&entity.Product{ID: "ajeno", OwnerID: "otro", Price: dec("1"), Active: true})

	cases := []struct {
		name   string
		mutate func(in *dto.CreateInvoiceRequest)
		want   error
	}{
		{"sin cliente", func(in *dto.CreateInvoiceRequest) { in.CustomerID = "" }, domain.ErrInvalidInput},
		{"sin prefijo", func(in *dto.CreateInvoiceRequest) { in.Prefix = "" }, domain.ErrInvalidInput},
		{"sin ítems", func(in *dto.CreateInvoiceRequest) { in.Items = nil }, domain.ErrInvalidInput},
		{"cantidad cero", func(in *dto.CreateInvoiceRequest) { in.Items[0].Quantity = decimal.Zero }, domain.ErrInvalidInput},
		{"precio negativo", func(in *dto.CreateInvoiceRequest) { in.Items[0].UnitPrice = dec("-1") }, domain.ErrInvalidInput},
		{"cliente inexistente", func(in *dto.CreateInvoiceRequest) { in.CustomerID = "nadie" }, domain.ErrNotFound},
		{"producto inexistente", func(in *dto.CreateInvoiceRequest) { in.Items[0].ProductID = "nada" }, domain.ErrNotFound},
		{"producto de otro propietario", func(in *dto.CreateInvoiceRequest) { in.Items[0].ProductID = "ajeno" }, domain.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := request()
			tc.mutate(&in)
			_, err := e.uc.CreateInvoice(context.Background(), owner, "vendedor-1", in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.True(t, dec("10").Equal(e.stock(t, "arroz")))
}

// ──────────────────────────────────────────────────────────────────────────────
// GetInvoice
// ──────────────────────────────────────────────────────────────────────────────

func TestGetInvoice(t *testing.T) {
	e := newEnv(t)
	created, err := e.uc.CreateInvoice(context.Background(), owner, "vendedor-1", request())
	require.NoError(t, err)

	got, err := e.uc.GetInvoice(context.Background(), owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Number, got.Number)
	assert.True(t, created.GrandTotal.Equal(got.GrandTotal))
	assert.Len(t, got.Details, 2)

	_, err = e.uc.GetInvoice(context.Background(), "otro", created.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.uc.GetInvoice(context.Background(), owner, "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
