// Package tpfreedom implements schedcore's worker-pool reordering backend:
// a RECORD-mode backend that may delay a worker past an available item
// (TP_WANTS_WORK) or hand it a non-FIFO item (TP_GETTING_WORK), bounded so
// no worker starves. Perturbation frequency is governed by the
// sliding-window rate limiter github.com/joeycumines/go-catrate, on top
// of the explicit max-delay bound the spec
// requires. Grounded on spec §4.5.
package tpfreedom

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"

	"github.com/hollowfield-labs/schedcore"
)

// Name is the string passed to schedcore.WithBackend to select this backend.
const Name = "tpfreedom"

// DefaultMaxDelay bounds how long TP_WANTS_WORK may keep advising a worker
// to stand down, when Args.MaxDelay is zero.
const DefaultMaxDelay = 10 * time.Millisecond

func init() {
	schedcore.RegisterBackend(Name, New)
}

// Args configures a tpfreedom Backend, passed as schedcore.BackendConfig.Args.
type Args struct {
	// Seed makes perturbations reproducible.
	Seed int64
	// MaxDelay bounds how long a worker may be told to stand down at
	// TP_WANTS_WORK even though work is available (spec §4.5's liveness
	// requirement, tested as S5).
	MaxDelay time.Duration
	// PerturbRates governs how often a delay or reorder decision may be
	// injected; nil uses a conservative single-window default.
	PerturbRates map[time.Duration]int
}

var defaultPerturbRates = map[time.Duration]int{100 * time.Millisecond: 5}

// Backend is schedcore's thread-pool-freedom backend.
type Backend struct {
	cfg      schedcore.BackendConfig
	maxDelay time.Duration
	limiter  *catrate.Limiter
	rng      *rand.Rand

	execCounter atomic.Uint64

	mu           sync.Mutex
	waitingSince map[uint64]time.Time
}

// New constructs a tpfreedom Backend.
func New(cfg schedcore.BackendConfig) (schedcore.Backend, error) {
	args, _ := cfg.Args.(Args)
	if args.MaxDelay <= 0 {
		args.MaxDelay = DefaultMaxDelay
	}
	rates := args.PerturbRates
	if len(rates) == 0 {
		rates = defaultPerturbRates
	}
	seed := uint64(args.Seed)
	return &Backend{
		cfg:          cfg,
		maxDelay:     args.MaxDelay,
		limiter:      catrate.NewLimiter(rates),
		rng:          rand.New(rand.NewPCG(seed, seed^0xff51afd7ed558ccd)),
		waitingSince: map[uint64]time.Time{},
	}, nil
}

func (b *Backend) Name() string { return Name }

// RegisterLCBN is a no-op: tpfreedom never checks tree position.
func (b *Backend) RegisterLCBN(schedcore.LCBN) {}

// NextLCBNType always returns the wildcard: tpfreedom never replays.
func (b *Backend) NextLCBNType() schedcore.Kind { return schedcore.KindAny }

// ThreadYield perturbs TP_WANTS_WORK/TP_GETTING_WORK and applies the
// identity decision everywhere else, logging AFTER_EXEC_CB landmarks
// exactly as vanilla does.
func (b *Backend) ThreadYield(threadID uint64, role schedcore.Role, spp *schedcore.SPP) {
	switch spp.Tag {
	case schedcore.TagTPWantsWork:
		b.wantsWork(threadID, spp)
	case schedcore.TagTPGettingWork:
		b.gettingWork(spp)
	case schedcore.TagAfterExecCB:
		spp.LogicalCBNode.ExecIndex = b.execCounter.Add(1)
		b.cfg.Log.Append(schedcore.TagAfterExecCB, spp.LogicalCBNode, nil)
	default:
		schedcore.ApplyIdentityDecision(spp)
	}
}

// wantsWork may advise a worker to stand down even though work is
// available, never for longer than maxDelay continuously.
func (b *Backend) wantsWork(threadID uint64, spp *schedcore.SPP) {
	schedcore.ApplyIdentityDecision(spp)
	if spp.ShouldGetWork != 1 {
		schedcore.RecordDecision(b.cfg.Log, spp)
		return
	}

	now := time.Now()
	b.mu.Lock()
	since, waiting := b.waitingSince[threadID]
	b.mu.Unlock()

	if waiting && now.Sub(since) >= b.maxDelay {
		b.clearWaiting(threadID)
		schedcore.RecordDecision(b.cfg.Log, spp)
		return
	}

	if _, ok := b.limiter.Allow("delay"); ok && b.rng.Float64() < 0.5 {
		spp.ShouldGetWork = 0
		b.mu.Lock()
		if !waiting {
			b.waitingSince[threadID] = now
		}
		b.mu.Unlock()
	} else {
		b.clearWaiting(threadID)
	}
	schedcore.RecordDecision(b.cfg.Log, spp)
}

func (b *Backend) clearWaiting(threadID uint64) {
	b.mu.Lock()
	delete(b.waitingSince, threadID)
	b.mu.Unlock()
}

// gettingWork may choose any valid queue index, not only FIFO's 0.
func (b *Backend) gettingWork(spp *schedcore.SPP) {
	schedcore.ApplyIdentityDecision(spp)
	if n := len(spp.WorkQueueSnapshot); n > 1 {
		if _, ok := b.limiter.Allow("reorder"); ok {
			spp.Index = b.rng.IntN(n)
		}
	}
	schedcore.RecordDecision(b.cfg.Log, spp)
}

// LCBNsRemaining is always > 0: tpfreedom only ever records.
func (b *Backend) LCBNsRemaining() int { return 1 }

// ScheduleHasDiverged is always false: tpfreedom never replays.
func (b *Backend) ScheduleHasDiverged() bool { return false }
