package joblock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ConcurrentAcquireHasOneWinner(t *testing.T) {
	lock := NewMemory()

	const racers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := lock.Acquire(context.Background())
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, lock.Held())
}

func TestMemory_ReleaseWithoutAcquire(t *testing.T) {
	lock := NewMemory()

	ok, err := lock.Release(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_AcquireReleaseCycle(t *testing.T) {
	ctx := context.Background()
	lock := NewMemory()

	ok, _ := lock.Acquire(ctx)
	require.True(t, ok)
	ok, _ = lock.Acquire(ctx)
	assert.False(t, ok, "second acquire must be refused while held")

	ok, _ = lock.Release(ctx)
	assert.True(t, ok)
	ok, _ = lock.Release(ctx)
	assert.False(t, ok, "double release reports not held")

	ok, _ = lock.Acquire(ctx)
	assert.True(t, ok)
}

func TestMemory_AcquireCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lock := NewMemory()
	ok, err := lock.Acquire(ctx)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.False(t, lock.Held())
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, KeyFor("notification_job"), KeyFor("notification_job"))
	assert.NotEqual(t, KeyFor("notification_job"), KeyFor("digest_job"))
}

func TestLeaseHolderIsUnique(t *testing.T) {
	a := NewLease(nil, "notification_job", 0, nil)
	b := NewLease(nil, "notification_job", 0, nil)
	assert.NotEmpty(t, a.Holder())
	assert.NotEqual(t, a.Holder(), b.Holder())
}
