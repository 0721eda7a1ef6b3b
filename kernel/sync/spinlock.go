// Package sync provides synchronization primitives that work without a
// scheduler.
package sync

import "sync/atomic"

// spinsBeforeYield is the number of acquisition attempts made between calls
// to yieldFn.
const spinsBeforeYield = 64

var (
	// yieldFn is invoked by waiters after spinsBeforeYield failed attempts.
	// It stays nil until a scheduler exists; tests and hosted builds set
	// it to runtime.Gosched.
	yieldFn func()
)

// SetYieldFunc registers the function called by spinning waiters between
// acquisition attempts.
func SetYieldFunc(fn func()) { yieldFn = fn }

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	for {
		for i := 0; i < spinsBeforeYield; i++ {
			// Test before test-and-set so waiters spin on a shared
			// cache line instead of bouncing it between cores.
			if atomic.LoadUint32(&l.state) == 0 && atomic.CompareAndSwapUint32(&l.state, 0, 1) {
				return
			}
		}

		if yieldFn != nil {
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
