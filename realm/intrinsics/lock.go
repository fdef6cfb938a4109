package intrinsics

import (
	"sync"

	"github.com/petermattis/goid"
)

// reentrantLock serializes access to a goja runtime. The owning goroutine
// may lock again, which happens when an endowment callback evaluates code
// in a sibling context of the same runtime.
type reentrantLock struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner int64
	depth int
}

func (l *reentrantLock) Lock() {
	me := goid.Get()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cond == nil {
		l.cond = sync.NewCond(&l.mu)
	}
	for l.depth > 0 && l.owner != me {
		l.cond.Wait()
	}
	l.owner = me
	l.depth++
}

func (l *reentrantLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depth == 0 || l.owner != goid.Get() {
		panic("intrinsics: unlock of runtime lock not held by this goroutine")
	}
	l.depth--
	if l.depth == 0 {
		l.owner = 0
		l.cond.Broadcast()
	}
}
