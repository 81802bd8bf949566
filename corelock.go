package schedcore

import "sync"

// coreLock is the single reentrant mutex protecting all scheduler state:
// the schedule log, registry writes, backend state, and the
// current-callback-thread slot. It is owner-tracking and depth-counting
// over a plain sync.Mutex rather than a borrowed reentrant-mutex library,
// per spec §9's design note -- the shutdown path's CurrentCBThread needs
// owner identity, which a generic reentrant mutex doesn't expose.
//
// The lock is held for the entire duration of every backend callout,
// including -- for BEFORE/AFTER_EXEC_CB -- the whole callback execution,
// which is what gives the scheduler its one-callback-at-a-time-globally
// guarantee (spec §5).
type coreLock struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner uint64 // 0 means unheld; thread registry ids start at 1
	depth int
}

func newCoreLock() *coreLock {
	l := &coreLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Lock acquires the lock for threadID, reentrantly if threadID already
// holds it.
func (l *coreLock) Lock(threadID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.owner != 0 && l.owner != threadID {
		l.cond.Wait()
	}
	l.owner = threadID
	l.depth++
}

// Unlock releases one level of threadID's hold. It panics if threadID
// does not hold the lock -- that is an invariant violation in the
// caller, not a recoverable condition.
func (l *coreLock) Unlock(threadID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != threadID || l.depth == 0 {
		panic("schedcore: coreLock.Unlock called by non-owner")
	}
	l.depth--
	if l.depth == 0 {
		l.owner = 0
		l.cond.Signal()
	}
}

// Owner returns the id of the thread currently holding the lock, or 0 if
// unheld. Safe to call from any thread; the result may be stale the
// instant it is returned unless the caller already holds the lock.
func (l *coreLock) Owner() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}
