package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/lock"
)

func TestKeyedMutex_SegundoLockEsperaYFallaPorTimeout(t *testing.T) {
	km := lock.NewKeyedMutex()
	unlock, err := km.Lock(context.Background(), "stock:o1:p1", time.Second)
	require.NoError(t, err)
	defer unlock()

	_, err = km.Lock(context.Background(), "stock:o1:p1", 20*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}

func TestKeyedMutex_LlavesDistintasNoSeBloquean(t *testing.T) {
	km := lock.NewKeyedMutex()
	u1, err := km.Lock(context.Background(), "stock:o1:p1", time.Second)
	require.NoError(t, err)
	defer u1()

	u2, err := km.Lock(context.Background(), "stock:o1:p2", 20*time.Millisecond)
	require.NoError(t, err)
	u2()
}

func TestKeyedMutex_UnlockDespiertaAlSiguiente(t *testing.T) {
	km := lock.NewKeyedMutex()
	unlock, err := km.Lock(context.Background(), "k", time.Second)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		u, err := km.Lock(context.Background(), "k", time.Second)
		if err == nil {
			u()
		}
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	unlock()
	require.NoError(t, <-done)
	assert.Equal(t, 0, km.Len(), "las llaves libres deben salir del mapa")
}

func TestKeyedMutex_ContextoCancelado(t *testing.T) {
	km := lock.NewKeyedMutex()
	unlock, err := km.Lock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = km.Lock(ctx, "k", time.Second)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeyedMutex_ExclusionMutua(t *testing.T) {
	km := lock.NewKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(context.Background(), "k", 5*time.Second)
			if err != nil {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, km.Len())
}
