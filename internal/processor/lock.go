package processor

import "sync/atomic"

// runLock rejects overlapping Process calls without blocking
type runLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

// TryAcquire reports whether the caller now owns the lock
func (l *runLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release must only be called by the owner
func (l *runLock) Release() {
	l.state.Store(0)
}
