package schedcore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hollowfield-labs/schedcore/schedlog"
)

// Mode is the scheduler's operating mode.
type Mode int

const (
	// ModeRecord observes the loop, making only identity-preserving
	// choices, and appends every decision and LCBN execution to the log.
	ModeRecord Mode = iota
	// ModeReplay forces the loop to reproduce a previously recorded
	// schedule, until and unless the Divergence Detector flips it back
	// to ModeRecord (spec §4.6).
	ModeReplay
)

func (m Mode) String() string {
	if m == ModeReplay {
		return "REPLAY"
	}
	return "RECORD"
}

// BackendConfig is the shared context every Backend constructor receives.
// It is how backends reach the schedule log and logger without the
// Facade having to expose its internals, and how §6's "opaque
// backend-args pointer whose interpretation is defined by each backend"
// requirement is satisfied (Args).
type BackendConfig struct {
	Mode    Mode
	Log     *ScheduleLog
	Logger  schedlog.Logger
	Metrics *Metrics
	// Args is backend-specific: a fuzzingtime.Args seed, a tpfreedom.Args
	// max-delay, a cbtree.Args divergence threshold. nil is valid and
	// each backend must default sanely.
	Args any
}

// Backend is the scheduler's central polymorphism: a family of
// interchangeable decision engines sharing one interface, selected once
// at Init and never swapped while running (a second scheduler backend
// being made active concurrently is an explicit Non-goal). It
// corresponds to the dispatch slots of spec §2.5 as six Go methods:
// Name, RegisterLCBN, NextLCBNType, ThreadYield, LCBNsRemaining and
// ScheduleHasDiverged. Writing the log is not a backend method; the
// Facade does that itself in Emit.
type Backend interface {
	// Name returns the backend's registered name.
	Name() string

	// RegisterLCBN records an LCBN's position in the causation tree
	// before it runs, establishing parent/child links under the core
	// lock. Called by Facade.RegisterLCBN.
	RegisterLCBN(lcbn LCBN)

	// NextLCBNType returns the kind of the next scheduled callback in
	// REPLAY mode, or KindAny if the backend declines to constrain the
	// loop phase (including always, for non-replaying backends).
	NextLCBNType() Kind

	// ThreadYield is the central per-schedule-point dispatch. The core
	// lock is already held by threadID when this is called. The backend
	// must write every output field SPP.Tag specifies before returning.
	ThreadYield(threadID uint64, role Role, spp *SPP)

	// LCBNsRemaining reports how many scheduled decisions remain
	// (REPLAY) or, in RECORD mode, a value that is always > 0 (the log
	// is open, spec §3).
	LCBNsRemaining() int

	// ScheduleHasDiverged reports whether replay has fallen back to
	// recording.
	ScheduleHasDiverged() bool
}

// Constructor builds a Backend from shared config.
type Constructor func(cfg BackendConfig) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// RegisterBackend makes a Backend implementation available to Init by
// name. Backend packages call this from an init() function, the same
// driver-registration shape as database/sql.Register -- a name looked up
// once at configuration time, never dispatched on again afterwards.
func RegisterBackend(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if ctor == nil {
		panic("schedcore: RegisterBackend with nil constructor for " + name)
	}
	if _, dup := registry[name]; dup {
		panic("schedcore: RegisterBackend called twice for " + name)
	}
	registry[name] = ctor
}

func lookupBackend(name string) (Constructor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[name]
	return ctor, ok
}

// RegisteredBackends returns the names of all currently registered
// backends, sorted for deterministic output (used by the demo CLI's
// --help and by tests asserting all four ship registered).
func RegisteredBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func backendNotFoundError(name string) error {
	return fmt.Errorf("schedcore: backend %q is not registered (did you import its package for side effects?)", name)
}
