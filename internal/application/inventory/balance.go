package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// ReconcileResult compara el saldo en caché con el agregado del libro.
type ReconcileResult struct {
	OwnerID      string          `json:"owner_id"`
	ProductID    string          `json:"product_id"`
	Cached       decimal.Decimal `json:"cached"`
	Ledger       decimal.Decimal `json:"ledger"`
	CacheMissing bool            `json:"cache_missing"`
	Match        bool            `json:"match"`
}

// BalanceMaterializer mantiene current_stock en sincronía con el libro. Todas las escrituras
// ocurren dentro de la transacción del llamador, junto con el asiento que las origina.
type BalanceMaterializer struct {
	now func() time.Time
}

// NewBalanceMaterializer construye el materializador.
func NewBalanceMaterializer() *BalanceMaterializer {
	return &BalanceMaterializer{now: time.Now}
}

// Current lee el saldo de la caché; si no hay fila la reconstruye desde el libro (lectura auto-reparable).
// La reconstrucción toma el bloqueo de escritura del producto, así que un lector nunca pisa el saldo
// que un escritor concurrente acaba de confirmar.
func (m *BalanceMaterializer) Current(ctx context.Context, repos repository.Repos, productID, ownerID string) (decimal.Decimal, error) {
	row, err := repos.Stock.Get(ctx, productID, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	if row != nil {
		return row.Quantity, nil
	}
	return m.Rebuild(ctx, repos, productID, ownerID)
}

// Peek lee el saldo sin escribir nada: caché si existe, si no el agregado del libro.
// Lo usan los consumidores de solo lectura (alertas, reportes).
func (m *BalanceMaterializer) Peek(ctx context.Context, repos repository.Repos, productID, ownerID string) (decimal.Decimal, error) {
	row, err := repos.Stock.Get(ctx, productID, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	if row != nil {
		return row.Quantity, nil
	}
	return repos.Entries.SumActive(ctx, productID, ownerID)
}

// CurrentForUpdate igual que Current pero con la fila bloqueada hasta el fin de la transacción.
func (m *BalanceMaterializer) CurrentForUpdate(ctx context.Context, repos repository.Repos, productID, ownerID string) (decimal.Decimal, error) {
	row, err := repos.Stock.GetForUpdate(ctx, productID, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	if row != nil {
		return row.Quantity, nil
	}
	return m.Rebuild(ctx, repos, productID, ownerID)
}

// ApplyDelta suma signedDelta al saldo en caché. Se llama después de insertar el asiento en la misma
// transacción; si la fila no existiera, la reconstrucción desde el libro ya incluye ese asiento.
func (m *BalanceMaterializer) ApplyDelta(ctx context.Context, repos repository.Repos, productID, ownerID string, signedDelta decimal.Decimal) (decimal.Decimal, error) {
	row, err := repos.Stock.GetForUpdate(ctx, productID, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	if row == nil {
		return m.Rebuild(ctx, repos, productID, ownerID)
	}
	row.Quantity = row.Quantity.Add(signedDelta)
	row.UpdatedAt = m.now().UTC()
	if err := repos.Stock.Upsert(ctx, row); err != nil {
		return decimal.Zero, err
	}
	return row.Quantity, nil
}

// Rebuild recalcula el saldo desde el libro y sobrescribe la caché. Idempotente.
// La suma se lee después de tomar el bloqueo de la fila: ve todo lo que confirmaron los escritores previos.
func (m *BalanceMaterializer) Rebuild(ctx context.Context, repos repository.Repos, productID, ownerID string) (decimal.Decimal, error) {
	if _, err := repos.Stock.GetForUpdate(ctx, productID, ownerID); err != nil {
		return decimal.Zero, err
	}
	total, err := repos.Entries.SumActive(ctx, productID, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	row := &entity.CurrentStock{
		OwnerID:   ownerID,
		ProductID: productID,
		Quantity:  total,
		UpdatedAt: m.now().UTC(),
	}
	if err := repos.Stock.Upsert(ctx, row); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// Reconcile informa la divergencia entre caché y libro sin corregirla.
func (m *BalanceMaterializer) Reconcile(ctx context.Context, repos repository.Repos, productID, ownerID string) (*ReconcileResult, error) {
	ledger, err := repos.Entries.SumActive(ctx, productID, ownerID)
	if err != nil {
		return nil, err
	}
	res := &ReconcileResult{OwnerID: ownerID, ProductID: productID, Ledger: ledger}
	row, err := repos.Stock.Get(ctx, productID, ownerID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		res.CacheMissing = true
		res.Match = true // la próxima lectura la reconstruye desde el libro
		return res, nil
	}
	res.Cached = row.Quantity
	res.Match = row.Quantity.Equal(ledger)
	return res, nil
}
