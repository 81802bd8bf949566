package schedcore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreLockReentrantSameThread(t *testing.T) {
	l := newCoreLock()
	l.Lock(1)
	l.Lock(1) // reentrant, must not block
	assert.Equal(t, uint64(1), l.Owner())
	l.Unlock(1)
	assert.Equal(t, uint64(1), l.Owner(), "still held at depth 1")
	l.Unlock(1)
	assert.Equal(t, uint64(0), l.Owner())
}

func TestCoreLockUnlockByNonOwnerPanics(t *testing.T) {
	l := newCoreLock()
	l.Lock(1)
	defer l.Unlock(1)
	assert.Panics(t, func() { l.Unlock(2) })
}

func TestCoreLockUnlockWhenUnheldPanics(t *testing.T) {
	l := newCoreLock()
	assert.Panics(t, func() { l.Unlock(1) })
}

func TestCoreLockExcludesOtherThreads(t *testing.T) {
	l := newCoreLock()
	l.Lock(1)

	acquired := make(chan struct{})
	go func() {
		l.Lock(2)
		close(acquired)
		l.Unlock(2)
	}()

	select {
	case <-acquired:
		t.Fatal("second thread acquired the lock while the first still held it")
	case <-time.After(50 * time.Millisecond):
	}

	l.Unlock(1)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second thread never acquired the lock after release")
	}
}

func TestCoreLockManyGoroutinesMutuallyExclusive(t *testing.T) {
	l := newCoreLock()
	var active int32
	var mu sync.Mutex
	var maxObserved int

	var wg sync.WaitGroup
	for i := uint64(1); i <= 8; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			l.Lock(id)
			active++
			mu.Lock()
			if int(active) > maxObserved {
				maxObserved = int(active)
			}
			mu.Unlock()
			active--
			l.Unlock(id)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, maxObserved, "at most one goroutine should observe the lock held at a time")
}
