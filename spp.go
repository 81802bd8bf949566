package schedcore

import "time"

// sppMagic is the sentinel every valid SPP carries. A zero-value SPP (one
// a caller forgot to construct via NewSPP) fails LooksValid and is
// rejected by ThreadYield as an invariant violation.
const sppMagic = 0x53504c30 // "SPL0"

// PollEvent is one polled I/O readiness event, as seen at
// LOOPER_IOPOLL_BEFORE_HANDLING_EVENTS. FD and UserData are opaque to
// schedcore; LCBN is the node that would execute if this event is
// handled.
type PollEvent struct {
	FD       int
	UserData any
	LCBN     LCBN
}

// WorkItem is one item on the worker pool's work queue, as seen at the
// TP_* schedule points.
type WorkItem struct {
	ID   uint64
	LCBN LCBN
}

// TimerInfo describes one timer under consideration at TIMER_READY,
// TIMER_RUN, or TIMER_NEXT_TIMEOUT.
type TimerInfo struct {
	ID       uint64
	Deadline time.Time
	LCBN     LCBN
}

// SPP is a Schedule-Point Payload: the per-point record carrying the
// input fields a calling thread fills in, and the output fields a
// backend fills in before ThreadYield returns. Every SPP carries the
// Tag that selects which of the fields below are meaningful. LooksValid
// checks only the magic sentinel; the Tag value itself is not validated.
//
// This models the "tagged variant in a sum type" design note (spec §9)
// as one flat struct rather than one type per point -- idiomatic in Go,
// where a closed interface hierarchy would need a type switch at every
// call site anyway, for no benefit over checking Tag directly.
type SPP struct {
	magic uint64
	Tag   Tag

	// BEFORE_EXEC_CB / AFTER_EXEC_CB
	CallbackKind  Kind
	LogicalCBNode LCBN

	// LOOPER_IOPOLL_BEFORE_HANDLING_EVENTS
	Items []PollEvent // in: ordered; out: possibly reordered
	// Thoughts is shared by IOPOLL_BEFORE_HANDLING_EVENTS (per-item) and
	// TIMER_RUN (per-timer): 0 means defer, 1 means handle/fire.
	Thoughts []int

	// TP_WANTS_WORK
	StartTime         time.Time
	WorkQueueSnapshot []WorkItem
	ShouldGetWork     int // out: 0/1

	// TP_GETTING_WORK
	Index int // out: chosen queue index, 0 == FIFO

	// TP_GOT_WORK / TP_BEFORE_PUT_DONE / TP_AFTER_PUT_DONE
	Item          WorkItem
	OriginalIndex int

	// LOOPER_RUN_CLOSING
	DeferClosing int // out: 0/1

	// TIMER_READY
	Timer TimerInfo
	Now   time.Time
	Ready int // out: 0/1

	// TIMER_RUN
	Timers []TimerInfo // in: ordered; out: possibly reordered (paired with Thoughts)

	// TIMER_NEXT_TIMEOUT
	NextTimer     TimerInfo
	TimeUntilFire time.Duration // out
}

// NewSPP constructs an initialised SPP for the given Tag with its magic
// sentinel set. Callers fill in the input fields appropriate to Tag
// before passing it to Facade.ThreadYield.
func NewSPP(tag Tag) *SPP {
	return &SPP{magic: sppMagic, Tag: tag}
}

// LooksValid reports whether the SPP carries the initialised magic
// sentinel. An SPP that fails this check was never passed through
// NewSPP and is rejected by ThreadYield as an invariant violation,
// per spec §8 property 1.
func (s *SPP) LooksValid() bool {
	return s != nil && s.magic == sppMagic
}
