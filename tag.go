// Package schedcore implements a semantic scheduler interposed between an
// async event loop's looper and worker-pool threads, and the decisions
// they would otherwise make autonomously. In RECORD mode it observes and
// logs the sequence of decisions; in REPLAY mode it forces execution to
// reproduce a previously recorded (or synthetically constructed) sequence.
//
// The package is organised around a public façade (Facade), a closed
// family of schedule points (Tag) and their payloads (SPP), a pluggable
// Backend interface with four implementations living in ./backend/*, and
// a text-based schedule log format (Emit/Load).
package schedcore

// Tag identifies one schedule point: a site where a loop or worker thread
// yields a decision to the scheduler. The set is closed and the mapping
// from Tag to SPP variant is total and injective (§3 of the
// specification this package implements).
type Tag int

const (
	TagUnknown Tag = iota

	// Brackets one callback invocation. Reachable from either thread role.
	TagBeforeExecCB
	TagAfterExecCB

	// Looper-only schedule points.
	TagLooperBeforeEpoll
	TagLooperAfterEpoll
	TagLooperIOPollBeforeHandlingEvents
	TagLooperGettingDone
	TagLooperRunClosing
	TagTimerReady
	TagTimerRun
	TagTimerNextTimeout

	// Worker-pool-only schedule points.
	TagTPWantsWork
	TagTPGettingWork
	TagTPGotWork
	TagTPBeforePutDone
	TagTPAfterPutDone
)

var tagNames = map[Tag]string{
	TagBeforeExecCB:                     "BEFORE_EXEC_CB",
	TagAfterExecCB:                      "AFTER_EXEC_CB",
	TagLooperBeforeEpoll:                "LOOPER_BEFORE_EPOLL",
	TagLooperAfterEpoll:                 "LOOPER_AFTER_EPOLL",
	TagLooperIOPollBeforeHandlingEvents: "LOOPER_IOPOLL_BEFORE_HANDLING_EVENTS",
	TagLooperGettingDone:                "LOOPER_GETTING_DONE",
	TagLooperRunClosing:                 "LOOPER_RUN_CLOSING",
	TagTimerReady:                       "TIMER_READY",
	TagTimerRun:                         "TIMER_RUN",
	TagTimerNextTimeout:                 "TIMER_NEXT_TIMEOUT",
	TagTPWantsWork:                      "TP_WANTS_WORK",
	TagTPGettingWork:                    "TP_GETTING_WORK",
	TagTPGotWork:                        "TP_GOT_WORK",
	TagTPBeforePutDone:                  "TP_BEFORE_PUT_DONE",
	TagTPAfterPutDone:                   "TP_AFTER_PUT_DONE",
}

var tagsByName = func() map[string]Tag {
	m := make(map[string]Tag, len(tagNames))
	for tag, name := range tagNames {
		m[name] = tag
	}
	return m
}()

// String implements fmt.Stringer.
func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return "UNKNOWN_TAG"
}

// ParseTag parses the textual form written by Emit.
func ParseTag(s string) (Tag, bool) {
	t, ok := tagsByName[s]
	return t, ok
}

// Role is the part a registered thread plays in the loop.
type Role int

const (
	RoleUnknown Role = iota
	RoleLooper
	RoleThreadPool
)

func (r Role) String() string {
	switch r {
	case RoleLooper:
		return "LOOPER"
	case RoleThreadPool:
		return "THREADPOOL"
	default:
		return "UNKNOWN"
	}
}

// requiredRole reports which Role is allowed to reach a Tag; RoleUnknown
// means "either role", matching BEFORE/AFTER_EXEC_CB's "either" column in
// the specification's schedule-point table.
func requiredRole(t Tag) Role {
	switch t {
	case TagLooperBeforeEpoll, TagLooperAfterEpoll, TagLooperIOPollBeforeHandlingEvents,
		TagLooperGettingDone, TagLooperRunClosing, TagTimerReady, TagTimerRun, TagTimerNextTimeout:
		return RoleLooper
	case TagTPWantsWork, TagTPGettingWork, TagTPGotWork, TagTPBeforePutDone, TagTPAfterPutDone:
		return RoleThreadPool
	default:
		return RoleUnknown
	}
}
