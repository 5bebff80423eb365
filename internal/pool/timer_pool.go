// Package pool recycles the timers that bound port writes.
package pool

import (
	"sync"
	"time"
)

var timers = sync.Pool{
	New: func() any {
		t := time.NewTimer(time.Hour)
		t.Stop()

		return t
	},
}

// GetTimer returns a timer that fires after d. Return it with PutTimer.
//
// Timers follow the Go 1.23 semantics: Reset and Stop never leave a stale tick in C.
func GetTimer(d time.Duration) *time.Timer {
	t, _ := timers.Get().(*time.Timer)
	t.Reset(d)

	return t
}

// PutTimer stops t and returns it to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	t.Stop()
	timers.Put(t)
}
