// Package harness implements the minimal looper-plus-worker-pool event
// loop schedcore is designed to interpose on: one looper goroutine driving
// a plain list of timers and a synthetic poll stand-in, and an N-goroutine worker
// pool pulling from a mutex-protected FIFO queue. It is an external
// collaborator exercising the core end-to-end, not part of the scheduler
// itself -- every decision it would otherwise make autonomously is routed
// through schedcore.Facade.ThreadYield.
package harness

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hollowfield-labs/schedcore"
)

// pollInterval is how long the looper "blocks" in its synthetic poll
// before re-checking timers; the harness has no real I/O to wait on.
const pollInterval = time.Millisecond

// Callback is one unit of work the harness can execute.
type Callback struct {
	Fn func()
}

// TimerSpec describes one one-shot timer, due Delay after Run starts.
type TimerSpec struct {
	Delay    time.Duration
	Callback Callback
}

// WorkSpec describes one item submitted to the worker pool's queue before
// Run starts (the harness does not support dynamic submission mid-run).
type WorkSpec struct {
	Callback Callback
}

// Program is the fixed, deterministic set of external inputs a Harness run
// executes -- the same Program fed to a RECORD run and a REPLAY run is what
// spec §8's determinism properties (S2, S4, S6) require.
type Program struct {
	Timers  []TimerSpec
	Work    []WorkSpec
	Workers int
}

type scheduledTimer struct {
	deadline time.Time
	lcbn     schedcore.LCBN
	fn       func()
	fired    bool
}

type scheduledWork struct {
	lcbn schedcore.LCBN
	fn   func()
}

// Harness binds a Program to a *schedcore.Facade and drives it to
// completion.
type Harness struct {
	facade *schedcore.Facade

	mu        sync.Mutex
	timers    []*scheduledTimer
	queue     []*scheduledWork
	birthNext uint32

	totalWork int
	completed atomic.Int64
}

// New constructs a Harness bound to facade.
func New(facade *schedcore.Facade) *Harness {
	return &Harness{facade: facade}
}

func (h *Harness) nextLCBN(kind schedcore.Kind) schedcore.LCBN {
	h.mu.Lock()
	defer h.mu.Unlock()
	order := h.birthNext
	h.birthNext++
	return schedcore.LCBN{Kind: kind, Path: schedcore.Path(nil).Child(order)}
}

// Run registers the looper and Workers worker threads, schedules every
// timer and work item in prog, and blocks until all of them have executed.
func (h *Harness) Run(prog Program) error {
	if prog.Workers <= 0 {
		prog.Workers = 1
	}

	looperID, err := h.facade.RegisterThread(schedcore.RoleLooper)
	if err != nil {
		return err
	}

	start := time.Now()
	for _, ts := range prog.Timers {
		lcbn := h.nextLCBN(schedcore.KindTimer)
		h.facade.RegisterLCBN(lcbn)
		h.mu.Lock()
		h.timers = append(h.timers, &scheduledTimer{deadline: start.Add(ts.Delay), lcbn: lcbn, fn: ts.Callback.Fn})
		h.mu.Unlock()
	}
	for _, ws := range prog.Work {
		lcbn := h.nextLCBN(schedcore.KindWork)
		h.facade.RegisterLCBN(lcbn)
		h.mu.Lock()
		h.queue = append(h.queue, &scheduledWork{lcbn: lcbn, fn: ws.Callback.Fn})
		h.mu.Unlock()
	}
	h.totalWork = len(prog.Work)

	var wg sync.WaitGroup
	wg.Add(prog.Workers)
	for i := 0; i < prog.Workers; i++ {
		go func() {
			defer wg.Done()
			h.runWorker()
		}()
	}

	h.runLooper(looperID)
	wg.Wait()
	return nil
}

func (h *Harness) execute(lcbn schedcore.LCBN, fn func()) {
	before := schedcore.NewSPP(schedcore.TagBeforeExecCB)
	before.CallbackKind = lcbn.Kind
	before.LogicalCBNode = lcbn
	h.facade.ThreadYield(before)

	if fn != nil {
		fn()
	}

	after := schedcore.NewSPP(schedcore.TagAfterExecCB)
	after.CallbackKind = lcbn.Kind
	after.LogicalCBNode = lcbn
	h.facade.ThreadYield(after)
}

func (h *Harness) pendingTimersLocked() []*scheduledTimer {
	var out []*scheduledTimer
	for _, t := range h.timers {
		if !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (h *Harness) allTimersFired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pendingTimersLocked()) == 0
}

func (h *Harness) allDone() bool {
	return h.allTimersFired() && h.completed.Load() >= int64(h.totalWork)
}

// runLooper is the looper goroutine's body: bracket a poll, inspect
// timers, run whichever are ready, then decide whether to close.
func (h *Harness) runLooper(looperID uint64) {
	_ = looperID
	for {
		h.facade.ThreadYield(schedcore.NewSPP(schedcore.TagLooperBeforeEpoll))
		time.Sleep(pollInterval)
		h.facade.ThreadYield(schedcore.NewSPP(schedcore.TagLooperAfterEpoll))

		ioSpp := schedcore.NewSPP(schedcore.TagLooperIOPollBeforeHandlingEvents)
		h.facade.ThreadYield(ioSpp)

		h.mu.Lock()
		pending := append([]*scheduledTimer(nil), h.pendingTimersLocked()...)
		h.mu.Unlock()

		if len(pending) > 0 {
			var earliest *scheduledTimer
			for _, t := range pending {
				if earliest == nil || t.deadline.Before(earliest.deadline) {
					earliest = t
				}
			}
			ntSpp := schedcore.NewSPP(schedcore.TagTimerNextTimeout)
			ntSpp.NextTimer = schedcore.TimerInfo{Deadline: earliest.deadline, LCBN: earliest.lcbn}
			ntSpp.Now = time.Now()
			h.facade.ThreadYield(ntSpp)
		}

		now := time.Now()
		var ready []*scheduledTimer
		for _, t := range pending {
			rSpp := schedcore.NewSPP(schedcore.TagTimerReady)
			rSpp.Timer = schedcore.TimerInfo{Deadline: t.deadline, LCBN: t.lcbn}
			rSpp.Now = now
			h.facade.ThreadYield(rSpp)
			if rSpp.Ready == 1 {
				ready = append(ready, t)
			}
		}

		if len(ready) > 0 {
			runSpp := schedcore.NewSPP(schedcore.TagTimerRun)
			runSpp.Timers = make([]schedcore.TimerInfo, len(ready))
			for i, t := range ready {
				runSpp.Timers[i] = schedcore.TimerInfo{Deadline: t.deadline, LCBN: t.lcbn}
			}
			h.facade.ThreadYield(runSpp)
			for i, ti := range runSpp.Timers {
				if i < len(runSpp.Thoughts) && runSpp.Thoughts[i] == 1 {
					h.fireTimer(ti.LCBN)
				}
			}
		}

		h.facade.ThreadYield(schedcore.NewSPP(schedcore.TagLooperGettingDone))

		if h.allDone() {
			closeSpp := schedcore.NewSPP(schedcore.TagLooperRunClosing)
			h.facade.ThreadYield(closeSpp)
			if closeSpp.DeferClosing == 0 {
				return
			}
		}
	}
}

func (h *Harness) fireTimer(target schedcore.LCBN) {
	h.mu.Lock()
	var t *scheduledTimer
	for _, c := range h.timers {
		if !c.fired && c.lcbn.SamePosition(target) {
			t = c
			c.fired = true
			break
		}
	}
	h.mu.Unlock()
	if t == nil {
		return
	}
	h.execute(t.lcbn, t.fn)
}

// runWorker is one worker-pool goroutine's body: ask for work, take it if
// offered, run it, announce completion.
func (h *Harness) runWorker() {
	if _, err := h.facade.RegisterThread(schedcore.RoleThreadPool); err != nil {
		return
	}
	for {
		h.mu.Lock()
		snapshot := make([]schedcore.WorkItem, len(h.queue))
		for i, w := range h.queue {
			snapshot[i] = schedcore.WorkItem{LCBN: w.lcbn}
		}
		h.mu.Unlock()

		wantsSpp := schedcore.NewSPP(schedcore.TagTPWantsWork)
		wantsSpp.StartTime = time.Now()
		wantsSpp.WorkQueueSnapshot = snapshot
		h.facade.ThreadYield(wantsSpp)

		if wantsSpp.ShouldGetWork != 1 {
			if h.completed.Load() >= int64(h.totalWork) {
				return
			}
			time.Sleep(pollInterval)
			continue
		}

		getSpp := schedcore.NewSPP(schedcore.TagTPGettingWork)
		getSpp.WorkQueueSnapshot = snapshot
		h.facade.ThreadYield(getSpp)

		h.mu.Lock()
		if getSpp.Index < 0 || getSpp.Index >= len(h.queue) {
			h.mu.Unlock()
			continue
		}
		item := h.queue[getSpp.Index]
		h.queue = append(h.queue[:getSpp.Index], h.queue[getSpp.Index+1:]...)
		h.mu.Unlock()

		gotSpp := schedcore.NewSPP(schedcore.TagTPGotWork)
		gotSpp.Item = schedcore.WorkItem{LCBN: item.lcbn}
		gotSpp.OriginalIndex = getSpp.Index
		h.facade.ThreadYield(gotSpp)

		h.execute(item.lcbn, item.fn)
		h.completed.Add(1)

		beforeDone := schedcore.NewSPP(schedcore.TagTPBeforePutDone)
		beforeDone.Item = gotSpp.Item
		h.facade.ThreadYield(beforeDone)

		afterDone := schedcore.NewSPP(schedcore.TagTPAfterPutDone)
		afterDone.Item = gotSpp.Item
		h.facade.ThreadYield(afterDone)

		if h.completed.Load() >= int64(h.totalWork) {
			return
		}
	}
}
