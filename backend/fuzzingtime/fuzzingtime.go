// Package fuzzingtime implements schedcore's time-perturbing backend: a
// RECORD-mode backend that is identical to vanilla except at TIMER_READY,
// TIMER_RUN, and TIMER_NEXT_TIMEOUT, where it draws perturbations from a
// seeded pseudo-random source so that a given seed reproduces the same
// sequence of decisions. It records every perturbed decision so CBTree can
// exactly replay it afterwards. Grounded on spec §4.4.
package fuzzingtime

import (
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/hollowfield-labs/schedcore"
)

// Name is the string passed to schedcore.WithBackend to select this backend.
const Name = "fuzzingtime"

func init() {
	schedcore.RegisterBackend(Name, New)
}

// DefaultNotReadyProbability and DefaultReorderProbability are used when
// Args leaves the corresponding field at its zero value.
const (
	DefaultNotReadyProbability = 0.1
	DefaultReorderProbability  = 0.3
)

// Args configures a fuzzingtime Backend, passed as
// schedcore.BackendConfig.Args.
type Args struct {
	// Seed makes a run's perturbations reproducible: the same seed against
	// the same program produces the same schedule (spec §8 property, S6).
	Seed int64
	// NotReadyProbability is the chance TIMER_READY declares an otherwise-due
	// timer not yet ready, in [0,1]. Zero uses DefaultNotReadyProbability.
	NotReadyProbability float64
	// ReorderProbability is the chance TIMER_RUN swaps two adjacent ready
	// timers, in [0,1]. Zero uses DefaultReorderProbability.
	ReorderProbability float64
}

// Backend perturbs timer-related decisions while leaving every other
// schedule point at its identity choice.
type Backend struct {
	cfg         schedcore.BackendConfig
	args        Args
	rng         *rand.Rand
	execCounter atomic.Uint64
}

// New constructs a fuzzingtime Backend seeded from cfg.Args.(Args).Seed.
func New(cfg schedcore.BackendConfig) (schedcore.Backend, error) {
	args, _ := cfg.Args.(Args)
	if args.NotReadyProbability <= 0 {
		args.NotReadyProbability = DefaultNotReadyProbability
	}
	if args.ReorderProbability <= 0 {
		args.ReorderProbability = DefaultReorderProbability
	}
	seed := uint64(args.Seed)
	return &Backend{
		cfg:  cfg,
		args: args,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

func (b *Backend) Name() string { return Name }

// RegisterLCBN is a no-op: fuzzingtime never checks tree position.
func (b *Backend) RegisterLCBN(schedcore.LCBN) {}

// NextLCBNType always returns the wildcard: fuzzingtime never replays.
func (b *Backend) NextLCBNType() schedcore.Kind { return schedcore.KindAny }

// ThreadYield perturbs TIMER_READY/TIMER_RUN/TIMER_NEXT_TIMEOUT and applies
// the identity decision everywhere else, logging AFTER_EXEC_CB landmarks
// exactly as vanilla does.
func (b *Backend) ThreadYield(threadID uint64, role schedcore.Role, spp *schedcore.SPP) {
	switch spp.Tag {
	case schedcore.TagTimerReady:
		b.timerReady(spp)
	case schedcore.TagTimerRun:
		b.timerRun(spp)
	case schedcore.TagTimerNextTimeout:
		b.timerNextTimeout(spp)
	case schedcore.TagAfterExecCB:
		spp.LogicalCBNode.ExecIndex = b.execCounter.Add(1)
		b.cfg.Log.Append(schedcore.TagAfterExecCB, spp.LogicalCBNode, nil)
	default:
		schedcore.ApplyIdentityDecision(spp)
	}
}

func (b *Backend) timerReady(spp *schedcore.SPP) {
	schedcore.ApplyIdentityDecision(spp)
	if spp.Ready == 1 && b.rng.Float64() < b.args.NotReadyProbability {
		spp.Ready = 0
	}
	schedcore.RecordDecision(b.cfg.Log, spp)
}

func (b *Backend) timerRun(spp *schedcore.SPP) {
	schedcore.ApplyIdentityDecision(spp)
	n := len(spp.Timers)
	if n > 1 && b.rng.Float64() < b.args.ReorderProbability {
		i := b.rng.IntN(n - 1)
		spp.Timers[i], spp.Timers[i+1] = spp.Timers[i+1], spp.Timers[i]
		spp.Thoughts[i], spp.Thoughts[i+1] = spp.Thoughts[i+1], spp.Thoughts[i]
	}
	schedcore.RecordDecision(b.cfg.Log, spp)
}

// timerNextTimeout may shrink the suggested delay, down to and including
// zero (permitted to force an immediate wake, per spec §9 Open Question b).
func (b *Backend) timerNextTimeout(spp *schedcore.SPP) {
	schedcore.ApplyIdentityDecision(spp)
	if spp.TimeUntilFire > 0 {
		spp.TimeUntilFire = spp.TimeUntilFire / time.Duration(1+b.rng.IntN(4))
	}
	schedcore.RecordDecision(b.cfg.Log, spp)
}

// LCBNsRemaining is always > 0: fuzzingtime only ever records.
func (b *Backend) LCBNsRemaining() int { return 1 }

// ScheduleHasDiverged is always false: fuzzingtime never replays.
func (b *Backend) ScheduleHasDiverged() bool { return false }
