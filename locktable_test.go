package woofdb

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cb1 runs immediately; cb2 runs after cb1 releases; then cb3.
func TestLockTableFIFOSerialization(t *testing.T) {
	var lt = NewLockTable(newHostLoop())

	var mu sync.Mutex
	var order []int
	var done = make(chan struct{}, 3)

	var owner = new(int)
	var alive = func() bool { return true }

	var run = func(n int) func() {
		return func() {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			done <- struct{}{}
		}
	}

	var ranImmediately = lt.LockCall("K", run(1), alive)
	require.True(t, ranImmediately)
	run(1)() // caller is responsible for invoking fn itself when ranImmediately
	<-done

	var enq2 = lt.LockCall("K", run(2), alive)
	require.False(t, enq2)
	var enq3 = lt.LockCall("K", run(3), alive)
	require.False(t, enq3)

	lt.LockRelease("K")
	<-done
	lt.LockRelease("K")
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
	_ = owner
}

func TestLockTableExpiredOwnerSkipped(t *testing.T) {
	var lt = NewLockTable(newHostLoop())

	var ran []int
	var mu sync.Mutex
	var done = make(chan struct{}, 2)

	lt.LockCall("K", func() {}, func() bool { return true }) // cb1 runs immediately

	lt.LockCall("K", func() {
		mu.Lock()
		ran = append(ran, 2)
		mu.Unlock()
		done <- struct{}{}
	}, func() bool { return false }) // cb2's owner is already expired

	lt.LockCall("K", func() {
		mu.Lock()
		ran = append(ran, 3)
		mu.Unlock()
		done <- struct{}{}
	}, func() bool { return true })

	lt.LockRelease("K") // should skip cb2 (expired) and fire cb3

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for callback")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{3}, ran)
}

func TestLockTableNoLeaks(t *testing.T) {
	var lt = NewLockTable(newHostLoop())
	lt.LockCall("K", func() {}, nil)
	lt.LockRelease("K")

	var shard = lt.shardFor("K")
	shard.mu.Lock()
	_, exists := shard.entries["K"]
	shard.mu.Unlock()
	assert.False(t, exists, "entry should be removed once queue empties")
}

func TestLockTableSkipIfExists(t *testing.T) {
	var lt = NewLockTable(newHostLoop())
	lt.LockCall("K", func() {}, nil)

	var enqueued = lt.LockEnqueueCallback("K", func() {}, nil, true)
	assert.False(t, enqueued, "skipIfExists should no-op while a runner holds the key")
}
