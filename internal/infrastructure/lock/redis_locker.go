package lock

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

var _ inventory.Locker = (*RedisLocker)(nil)

// Intervalo entre intentos de SETNX mientras la llave está tomada.
const retryInterval = 25 * time.Millisecond

// RedisLocker bloqueo exclusivo compartido entre réplicas del servicio. Cada bloqueo es una llave
// "lock:<key>" con un token propio y TTL; solo el dueño del token puede liberarla.
type RedisLocker struct {
	rdb     *redis.Client
	ttl     time.Duration
	release *redis.Script
	log     *logger.Logger
}

// NewRedisClient abre la conexión y verifica que responda.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewRedisLocker construye el bloqueo. ttl acota cuánto puede retener la llave un proceso caído.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisLocker{
		rdb:     rdb,
		ttl:     ttl,
		release: redis.NewScript(releaseLockScript),
		log:     log.Component("redis_lock"),
	}
}

// Lock reintenta SETNX hasta timeout. Devuelve domain.ErrConcurrencyConflict si no lo obtiene.
func (l *RedisLocker) Lock(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	lockKey := "lock:" + key
	token := uuid.New().String()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: redis setnx %s: %w", domain.ErrConcurrencyConflict, key, err)
		}
		if ok {
			return l.unlockFunc(lockKey, token), nil
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, fmt.Errorf("%w: %s (espera %s)", domain.ErrConcurrencyConflict, key, timeout)
		}
		if wait > retryInterval {
			wait = retryInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrConcurrencyConflict, key, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) unlockFunc(lockKey, token string) func() {
	return func() {
		// La liberación no debe depender del ctx de la operación, que puede estar cancelado.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.release.Run(ctx, l.rdb, []string{lockKey}, token).Err(); err != nil {
			l.log.Warn().Err(err).Str("key", lockKey).Msg("no se pudo liberar el bloqueo; expira por TTL")
		}
	}
}
