// Package vanilla implements schedcore's pass-through recording backend:
// every schedule point gets the identity decision, and AFTER_EXEC_CB
// landmarks are appended to the schedule log. It never replays and never
// diverges. Grounded on spec §4.2.
package vanilla

import (
	"sync/atomic"

	"github.com/hollowfield-labs/schedcore"
	"github.com/hollowfield-labs/schedcore/schedlog"
)

// Name is the string passed to schedcore.WithBackend to select this backend.
const Name = "vanilla"

func init() {
	schedcore.RegisterBackend(Name, New)
}

// Backend is schedcore's trivial reference implementation: it never
// disagrees with the loop's own choices, and exists both as a working
// RECORD-only backend and as the baseline the other three are measured
// against.
type Backend struct {
	cfg         schedcore.BackendConfig
	execCounter atomic.Uint64
}

// New constructs a vanilla Backend. cfg.Args is ignored.
func New(cfg schedcore.BackendConfig) (schedcore.Backend, error) {
	return &Backend{cfg: cfg}, nil
}

func (b *Backend) Name() string { return Name }

// RegisterLCBN only logs the registration at debug level: vanilla does
// not track the causation tree,
// since it never needs to check a live callback's position against one.
func (b *Backend) RegisterLCBN(lcbn schedcore.LCBN) {
	schedlog.Debug(b.cfg.Logger, "lcbn registered", schedlog.F("lcbn", lcbn.String()))
}

// NextLCBNType always returns the wildcard: vanilla never constrains the
// loop's phase.
func (b *Backend) NextLCBNType() schedcore.Kind { return schedcore.KindAny }

// ThreadYield writes the identity decision for every point, and for
// AFTER_EXEC_CB assigns the callback its global execution index and
// appends the landmark to the log.
func (b *Backend) ThreadYield(threadID uint64, role schedcore.Role, spp *schedcore.SPP) {
	schedcore.ApplyIdentityDecision(spp)
	if spp.Tag == schedcore.TagAfterExecCB {
		spp.LogicalCBNode.ExecIndex = b.execCounter.Add(1)
		b.cfg.Log.Append(schedcore.TagAfterExecCB, spp.LogicalCBNode, nil)
	}
}

// LCBNsRemaining is always > 0: a RECORD-mode log is always open (spec §3).
func (b *Backend) LCBNsRemaining() int { return 1 }

// ScheduleHasDiverged is always false: vanilla never replays.
func (b *Backend) ScheduleHasDiverged() bool { return false }
