// Package cbtree implements schedcore's callback-tree replayer: in RECORD
// mode it behaves like vanilla but additionally tracks the causation tree
// of LCBNs; in REPLAY mode it forces the loop to reproduce a previously
// recorded schedule, deriving queue/event choices from matching the live
// callback's tree position against the schedule's expected next LCBN, and
// declaring divergence when they disagree. Grounded on spec §4.3 and the
// Divergence Detector of §4.6.
package cbtree

import (
	"sync"
	"sync/atomic"

	"github.com/hollowfield-labs/schedcore"
	"github.com/hollowfield-labs/schedcore/schedlog"
)

// Name is the string passed to schedcore.WithBackend to select this backend.
const Name = "cbtree"

func init() {
	schedcore.RegisterBackend(Name, New)
}

// DefaultYieldsBeforeTimeout is used when Args.YieldsBeforeTimeout is <= 0.
const DefaultYieldsBeforeTimeout = 64

// Args configures a cbtree Backend, passed as schedcore.BackendConfig.Args.
type Args struct {
	// MinExecutedBeforeDivergence is the bounded prefix (spec §4.6) that
	// must be consumed before divergence is tolerated rather than fatal.
	MinExecutedBeforeDivergence uint64
	// YieldsBeforeTimeout bounds how many consecutive non-BEFORE_EXEC_CB
	// schedule points may be observed before the timeout heuristic
	// declares divergence. <= 0 uses DefaultYieldsBeforeTimeout.
	YieldsBeforeTimeout int
}

// Backend is schedcore's record/replay engine: a causation tree built from
// RegisterLCBN calls, and (in REPLAY) a DivergenceDetector comparing that
// live tree against the one implied by the loaded schedule log.
type Backend struct {
	cfg      schedcore.BackendConfig
	detector *schedcore.DivergenceDetector

	execCounter atomic.Uint64

	mu               sync.Mutex
	liveChildren     map[string][]schedcore.LCBN
	recordedChildren map[string][]schedcore.LCBN
}

// New constructs a cbtree Backend. In REPLAY mode it pre-indexes the
// loaded log's causation tree by parent path so AFTER_EXEC_CB can compare
// the live children of a just-finished callback against the recorded set
// in O(1).
func New(cfg schedcore.BackendConfig) (schedcore.Backend, error) {
	args, _ := cfg.Args.(Args)
	if args.YieldsBeforeTimeout <= 0 {
		args.YieldsBeforeTimeout = DefaultYieldsBeforeTimeout
	}

	recorded := map[string][]schedcore.LCBN{}
	if cfg.Mode == schedcore.ModeReplay {
		for _, r := range cfg.Log.Records() {
			if r.Tag != schedcore.TagAfterExecCB {
				continue
			}
			parent, _ := r.LCBN.Path.Parent()
			key := parent.String()
			recorded[key] = append(recorded[key], r.LCBN)
		}
	}

	return &Backend{
		cfg:              cfg,
		detector:         schedcore.NewDivergenceDetector(cfg.Log, cfg.Logger, args.MinExecutedBeforeDivergence, args.YieldsBeforeTimeout, cfg.Metrics),
		liveChildren:     map[string][]schedcore.LCBN{},
		recordedChildren: recorded,
	}, nil
}

func (b *Backend) Name() string { return Name }

// RegisterLCBN records lcbn under its parent's child list, building the
// live causation tree used by the AFTER_EXEC_CB children-match check.
func (b *Backend) RegisterLCBN(lcbn schedcore.LCBN) {
	parent, _ := lcbn.Path.Parent()
	key := parent.String()
	b.mu.Lock()
	b.liveChildren[key] = append(b.liveChildren[key], lcbn)
	b.mu.Unlock()
}

// NextLCBNType returns the kind of the next scheduled AFTER_EXEC_CB, or
// the wildcard outside replay or once diverged (spec §9 Open Question a).
func (b *Backend) NextLCBNType() schedcore.Kind {
	if b.cfg.Mode != schedcore.ModeReplay || b.detector.Diverged() {
		return schedcore.KindAny
	}
	if lcbn, ok := b.cfg.Log.PeekNextLCBN(); ok {
		return lcbn.Kind
	}
	return schedcore.KindAny
}

func (b *Backend) replaying() bool {
	return b.cfg.Mode == schedcore.ModeReplay && !b.detector.Diverged()
}

// ThreadYield is the central per-point dispatch: causation-tree matching
// and divergence checks for BEFORE/AFTER_EXEC_CB, LCBN-aware queue/event
// selection for TP_GETTING_WORK/TP_WANTS_WORK/IOPOLL_BEFORE_HANDLING_EVENTS,
// best-effort decision replay (see schedcore.TryReplayDecision) for
// everything else.
func (b *Backend) ThreadYield(threadID uint64, role schedcore.Role, spp *schedcore.SPP) {
	if spp.Tag == schedcore.TagBeforeExecCB {
		b.detector.ObserveBeforeExecCB()
	} else if b.replaying() {
		b.detector.ObserveOtherYield(spp.Tag.String(), b.cfg.Log.NExecuted())
	}

	switch spp.Tag {
	case schedcore.TagBeforeExecCB:
		b.beforeExecCB(spp)
	case schedcore.TagAfterExecCB:
		b.afterExecCB(spp)
	case schedcore.TagTPGettingWork:
		b.chooseWorkItem(spp)
	case schedcore.TagTPWantsWork:
		b.wantsWork(spp)
	case schedcore.TagLooperIOPollBeforeHandlingEvents:
		b.choosePollEvents(spp)
	default:
		if b.replaying() {
			if schedcore.TryReplayDecision(b.cfg.Log, spp) {
				return
			}
		}
		schedcore.ApplyIdentityDecision(spp)
	}
}

func (b *Backend) beforeExecCB(spp *schedcore.SPP) {
	if !b.replaying() {
		return
	}
	expected, ok := b.cfg.Log.PeekNextLCBN()
	if !ok || !expected.SamePosition(spp.LogicalCBNode) {
		schedlog.Warn(b.cfg.Logger, "before_exec_cb disagrees with schedule",
			schedlog.F("expected", expected.String()), schedlog.F("actual", spp.LogicalCBNode.String()))
		b.detector.Declare("BEFORE_EXEC_CB", b.cfg.Log.NExecuted())
	}
}

// afterExecCB either consumes the matching record already in a pre-loaded
// log (replaying, children agree) or appends a fresh one (RECORD mode, or
// once divergence has been declared). It must never do both for the same
// execution: Append grows the log, so calling it on a record that is
// already present would silently duplicate every successfully replayed
// entry.
func (b *Backend) afterExecCB(spp *schedcore.SPP) {
	if b.replaying() {
		key := spp.LogicalCBNode.Path.String()
		b.mu.Lock()
		live := append([]schedcore.LCBN(nil), b.liveChildren[key]...)
		b.mu.Unlock()
		want := b.recordedChildren[key]

		if sameChildren(live, want) {
			if record, ok := b.cfg.Log.AdvanceToNextLCBN(); ok {
				spp.LogicalCBNode.ExecIndex = record.LCBN.ExecIndex
				return
			}
		}

		schedlog.Warn(b.cfg.Logger, "children registered during callback disagree with schedule",
			schedlog.F("path", key), schedlog.F("live", len(live)), schedlog.F("want", len(want)))
		b.detector.Declare("AFTER_EXEC_CB_CHILDREN", b.cfg.Log.NExecuted())
	}

	spp.LogicalCBNode.ExecIndex = b.execCounter.Add(1)
	b.cfg.Log.Append(schedcore.TagAfterExecCB, spp.LogicalCBNode, nil)
}

func sameChildren(live, want []schedcore.LCBN) bool {
	if len(live) != len(want) {
		return false
	}
	for i := range live {
		if live[i].Kind != want[i].Kind {
			return false
		}
	}
	return true
}

// chooseWorkItem, wantsWork, and choosePollEvents each try the recorded
// decision first (schedcore.TryReplayDecision, which consumes the record
// at the cursor so it stays in step with PeekNextLCBN) before falling
// back to matching the live snapshot against the schedule's next LCBN.
// The recorded-decision path is what reproduces a FuzzingTime or
// TPFreedom run exactly; the LCBN-matching fallback is what lets CBTree
// replay a log that never persisted one (e.g. recorded by Vanilla).

func (b *Backend) chooseWorkItem(spp *schedcore.SPP) {
	if b.replaying() {
		if schedcore.TryReplayDecision(b.cfg.Log, spp) {
			return
		}
		if expected, ok := b.cfg.Log.PeekNextLCBN(); ok {
			for i, item := range spp.WorkQueueSnapshot {
				if item.LCBN.SamePosition(expected) {
					spp.Index = i
					return
				}
			}
		}
	}
	schedcore.ApplyIdentityDecision(spp)
}

func (b *Backend) wantsWork(spp *schedcore.SPP) {
	if b.replaying() {
		if schedcore.TryReplayDecision(b.cfg.Log, spp) {
			return
		}
		expected, ok := b.cfg.Log.PeekNextLCBN()
		if !ok {
			spp.ShouldGetWork = 0
			return
		}
		for _, item := range spp.WorkQueueSnapshot {
			if item.LCBN.SamePosition(expected) {
				spp.ShouldGetWork = 1
				return
			}
		}
		spp.ShouldGetWork = 0
		return
	}
	schedcore.ApplyIdentityDecision(spp)
}

func (b *Backend) choosePollEvents(spp *schedcore.SPP) {
	if b.replaying() {
		if schedcore.TryReplayDecision(b.cfg.Log, spp) {
			return
		}
		if expected, ok := b.cfg.Log.PeekNextLCBN(); ok {
			thoughts := make([]int, len(spp.Items))
			for i, ev := range spp.Items {
				if ev.LCBN.SamePosition(expected) {
					thoughts[i] = 1
				}
			}
			spp.Thoughts = thoughts
			return
		}
	}
	schedcore.ApplyIdentityDecision(spp)
}

// LCBNsRemaining reports the unconsumed suffix of the loaded schedule
// while replaying, or treats the log as perpetually open once recording
// (spec §3: "in RECORD mode, lcbns_remaining() > 0").
func (b *Backend) LCBNsRemaining() int {
	if b.replaying() {
		return b.cfg.Log.Remaining()
	}
	return 1
}

// ScheduleHasDiverged reports whether the detector has flipped to RECORD.
func (b *Backend) ScheduleHasDiverged() bool { return b.detector.Diverged() }
