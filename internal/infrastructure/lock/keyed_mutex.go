// Package lock provee el ámbito exclusivo por (owner, producto) que usa el coordinador.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
)

var _ inventory.Locker = (*KeyedMutex)(nil)

// KeyedMutex bloqueo exclusivo por llave dentro del proceso. Cada llave es un semáforo de un
// cupo; las llaves sin dueño ni esperas se liberan del mapa.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex construye el bloqueo en memoria.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Lock espera hasta timeout por la llave. Devuelve domain.ErrConcurrencyConflict si vence el plazo
// o ctx se cancela.
func (k *KeyedMutex) Lock(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	s := k.acquire(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				k.release(key)
			})
		}, nil
	case <-timer.C:
		k.release(key)
		return nil, fmt.Errorf("%w: %s (espera %s)", domain.ErrConcurrencyConflict, key, timeout)
	case <-ctx.Done():
		k.release(key)
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrConcurrencyConflict, key, ctx.Err())
	}
}

func (k *KeyedMutex) acquire(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *KeyedMutex) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// Len número de llaves con dueño o esperas (diagnóstico).
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
