package intrinsics

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReentrantLock(t *testing.T) {
	var l reentrantLock

	l.Lock()
	l.Lock() // same goroutine re-enters

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		l.Lock()
		acquired.Store(true)
		l.Unlock()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, acquired.Load(), "other goroutine entered a held lock")

	l.Unlock()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, acquired.Load(), "lock released before outermost unlock")

	l.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiting goroutine never acquired the lock")
	}
	assert.True(t, acquired.Load())
}

func TestUnlockNotHeld(t *testing.T) {
	var l reentrantLock
	l.Lock()
	l.Unlock()

	assert.Panics(t, func() { l.Unlock() })
}
