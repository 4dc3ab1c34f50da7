package inventory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dobles que registran el orden de las llamadas
// ──────────────────────────────────────────────────────────────────────────────

type callLog []string

func (l *callLog) add(call string) { *l = append(*l, call) }

type recordingStock struct {
	log *callLog
	row *entity.CurrentStock
}

func (r *recordingStock) Get(_ context.Context, _, _ string) (*entity.CurrentStock, error) {
	r.log.add("stock.get")
	return r.row, nil
}

func (r *recordingStock) GetForUpdate(_ context.Context, _, _ string) (*entity.CurrentStock, error) {
	r.log.add("stock.lock")
	return r.row, nil
}

func (r *recordingStock) Upsert(_ context.Context, cs *entity.CurrentStock) error {
	r.log.add("stock.upsert")
	cp := *cs
	r.row = &cp
	return nil
}

func (r *recordingStock) ListByOwner(context.Context, string) ([]*entity.CurrentStock, error) {
	return nil, nil
}

// recordingEntries solo implementa SumActive; cualquier otra llamada entra en pánico.
type recordingEntries struct {
	repository.StockEntryRepository
	log   *callLog
	total decimal.Decimal
}

func (r *recordingEntries) SumActive(context.Context, string, string) (decimal.Decimal, error) {
	r.log.add("entries.sum")
	return r.total, nil
}

func recordingRepos(total decimal.Decimal, row *entity.CurrentStock) (repository.Repos, *callLog) {
	log := &callLog{}
	return repository.Repos{
		Stock:   &recordingStock{log: log, row: row},
		Entries: &recordingEntries{log: log, total: total},
	}, log
}

// ──────────────────────────────────────────────────────────────────────────────
// BalanceMaterializer
// ──────────────────────────────────────────────────────────────────────────────

func TestCurrent_SinCacheBloqueaAntesDeSumarYEscribir(t *testing.T) {
	repos, log := recordingRepos(qty(7), nil)

	got, err := inventory.NewBalanceMaterializer().Current(context.Background(), repos, "p", "o")
	require.NoError(t, err)
	assertQty(t, 7, got)
	assert.Equal(t, callLog{"stock.get", "stock.lock", "entries.sum", "stock.upsert"}, *log)
}

func TestCurrent_ConCacheNoEscribe(t *testing.T) {
	repos, log := recordingRepos(qty(7), &entity.CurrentStock{ProductID: "p", OwnerID: "o", Quantity: qty(3)})

	got, err := inventory.NewBalanceMaterializer().Current(context.Background(), repos, "p", "o")
	require.NoError(t, err)
	assertQty(t, 3, got)
	assert.Equal(t, callLog{"stock.get"}, *log)
}

func TestRebuild_BloqueaAntesDeLeerElLibro(t *testing.T) {
	repos, log := recordingRepos(qty(5), &entity.CurrentStock{ProductID: "p", OwnerID: "o", Quantity: qty(99)})

	got, err := inventory.NewBalanceMaterializer().Rebuild(context.Background(), repos, "p", "o")
	require.NoError(t, err)
	assertQty(t, 5, got)
	assert.Equal(t, callLog{"stock.lock", "entries.sum", "stock.upsert"}, *log)
}

func TestPeek_NuncaEscribe(t *testing.T) {
	repos, log := recordingRepos(qty(4), nil)

	got, err := inventory.NewBalanceMaterializer().Peek(context.Background(), repos, "p", "o")
	require.NoError(t, err)
	assertQty(t, 4, got)
	assert.Equal(t, callLog{"stock.get", "entries.sum"}, *log)
}
