package woofdb

// LockTable is a per-descriptor named serialized callback queue. It is
// sharded by a highwayhash of the key (github.com/minio/highwayhash) purely
// to reduce lock contention across unrelated keys; per-key FIFO and mutual
// exclusion are unaffected by sharding.

import (
	"sync"

	"github.com/minio/highwayhash"
)

const lockTableShards = 64

var lockTableHashKey = [highwayhash.Size]byte{} // zero key: sharding only, not a security boundary

// lockCallback pairs a queued callback with a liveness check for its owner.
// aliveCheck is built by the caller from a weak.Pointer to the owning
// host-side object (e.g. a DBHandle); nil means "always alive".
type lockCallback struct {
	fn        func()
	aliveCheck func() bool
}

func (c lockCallback) isAlive() bool {
	return c.aliveCheck == nil || c.aliveCheck()
}

type lockEntry struct {
	mu      sync.Mutex
	running bool
	queue   []lockCallback
}

type lockShard struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

// LockTable is the concrete, per-descriptor named lock table.
type LockTable struct {
	shards [lockTableShards]*lockShard
	loop   *hostLoop
}

// NewLockTable constructs a LockTable that marshals fired callbacks onto
// loop. Passing nil uses the process-wide host loop.
func NewLockTable(loop *hostLoop) *LockTable {
	var lt = &LockTable{loop: loop}
	if lt.loop == nil {
		lt.loop = processHostLoop
	}
	for i := range lt.shards {
		lt.shards[i] = &lockShard{entries: make(map[string]*lockEntry)}
	}
	return lt
}

func (lt *LockTable) shardFor(key string) *lockShard {
	var h = highwayhash.Sum64([]byte(key), lockTableHashKey[:])
	return lt.shards[h%uint64(len(lt.shards))]
}

// LockCall attempts to run fn immediately for key. If no callback is
// currently running for key, it is marked running and this call returns
// true (the caller is expected to invoke fn itself and eventually call
// LockRelease). Otherwise fn is enqueued behind the current holder and this
// call returns false.
func (lt *LockTable) LockCall(key string, fn func(), aliveCheck func() bool) (ranImmediately bool) {
	var shard = lt.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	var e, ok = shard.entries[key]
	if !ok {
		e = &lockEntry{running: true}
		shard.entries[key] = e
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		e.running = true
		return true
	}
	e.queue = append(e.queue, lockCallback{fn: fn, aliveCheck: aliveCheck})
	return false
}

// LockEnqueueCallback conditionally enqueues fn for key. If skipIfExists is
// true and key already has a runner (or queued callbacks), this is a no-op
// returning false. Otherwise behaves like LockCall but always enqueues
// rather than ever reporting "ran immediately" -- the caller supplies fn to
// be invoked later via the fired-callback path, even if it could run now.
func (lt *LockTable) LockEnqueueCallback(key string, fn func(), aliveCheck func() bool, skipIfExists bool) (enqueued bool) {
	var shard = lt.shardFor(key)
	shard.mu.Lock()
	var e, ok = shard.entries[key]
	if !ok {
		e = &lockEntry{}
		shard.entries[key] = e
	}
	shard.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if skipIfExists && (e.running || len(e.queue) > 0) {
		return false
	}

	if !e.running {
		e.running = true
		lt.loop.post(fn)
		return true
	}
	e.queue = append(e.queue, lockCallback{fn: fn, aliveCheck: aliveCheck})
	return true
}

// LockRelease transitions key's running flag from true to false. If queued
// callbacks remain, the next live one is dequeued and scheduled on the host
// loop; expired owners are skipped without blocking successors. If the
// queue empties with nothing running, the entry is removed entirely.
func (lt *LockTable) LockRelease(key string) {
	var shard = lt.shardFor(key)
	shard.mu.Lock()
	var e, ok = shard.entries[key]
	shard.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.running = false

	var next lockCallback
	var found bool
	for len(e.queue) > 0 {
		next, e.queue = e.queue[0], e.queue[1:]
		if next.isAlive() {
			found = true
			break
		}
		// Expired owner: skip without blocking successors.
	}

	if found {
		e.running = true
	}
	var empty = !found && len(e.queue) == 0
	e.mu.Unlock()

	if found {
		lt.loop.post(next.fn)
		return
	}
	if empty {
		shard.mu.Lock()
		// Only remove if nothing raced in between (re-check running/queue).
		if cur, ok := shard.entries[key]; ok && cur == e {
			cur.mu.Lock()
			if !cur.running && len(cur.queue) == 0 {
				delete(shard.entries, key)
			}
			cur.mu.Unlock()
		}
		shard.mu.Unlock()
	}
}

// FireNextCallback dequeues the next live callback for key and invokes it
// asynchronously, via the host loop, marking key as running. Unlike
// LockRelease it does not first clear the current holder's running flag --
// intended for hosts that want to explicitly pump a key's queue (e.g. after
// reconnecting an owner) rather than via a release.
func (lt *LockTable) FireNextCallback(key string) {
	lt.popAndRun(key, func(fn func()) { lt.loop.post(fn) })
}

// FireNextCallbackImmediate invokes the next queued callback for key
// synchronously, in the calling goroutine.
func (lt *LockTable) FireNextCallbackImmediate(key string) {
	lt.popAndRun(key, func(fn func()) { fn() })
}

func (lt *LockTable) popAndRun(key string, run func(func())) {
	var shard = lt.shardFor(key)
	shard.mu.Lock()
	var e, ok = shard.entries[key]
	shard.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	var next lockCallback
	var found bool
	for len(e.queue) > 0 {
		next, e.queue = e.queue[0], e.queue[1:]
		if next.isAlive() {
			found = true
			e.running = true
			break
		}
	}
	e.mu.Unlock()

	if found {
		run(next.fn)
	}
}

// depth reports the number of queued (not-yet-running) callbacks across all
// keys, for the Settings metrics collector.
func (lt *LockTable) depth() int {
	var total int
	for _, shard := range lt.shards {
		shard.mu.Lock()
		for _, e := range shard.entries {
			e.mu.Lock()
			total += len(e.queue)
			e.mu.Unlock()
		}
		shard.mu.Unlock()
	}
	return total
}
