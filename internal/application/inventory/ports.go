package inventory

import (
	"context"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción, pasando repositorios atados a esa tx.
// Si fn devuelve error se hace Rollback de todo lo escrito; si no, Commit.
type TxRunner interface {
	Run(ctx context.Context, fn func(repos repository.Repos) error) error
}

// Locker provee el ámbito exclusivo por (owner, producto). Lock debe respetar ctx y el timeout y
// devolver domain.ErrConcurrencyConflict si no logra el bloqueo a tiempo.
type Locker interface {
	Lock(ctx context.Context, key string, timeout time.Duration) (unlock func(), err error)
}

// EventPublisher publica eventos de stock de forma best-effort (después del commit).
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}
