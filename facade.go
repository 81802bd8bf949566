package schedcore

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hollowfield-labs/schedcore/schederr"
	"github.com/hollowfield-labs/schedcore/schedlog"
)

// NoCurrentCBThread is the sentinel CurrentCBThread returns when no
// thread is presently executing inside a callback.
const NoCurrentCBThread uint64 = 0

// facadeOptions holds configuration resolved from Option values, mirroring
// the teacher's loopOptions/LoopOption/resolveLoopOptions shape
// (options.go) generalised from the event loop's own knobs to Init's.
type facadeOptions struct {
	backend      string
	mode         Mode
	scheduleFile string
	backendArgs  any
	logger       schedlog.Logger
	registerer   prometheus.Registerer
}

// Option configures a call to Init.
type Option interface {
	apply(*facadeOptions) error
}

type optionFunc func(*facadeOptions) error

func (f optionFunc) apply(o *facadeOptions) error { return f(o) }

// WithBackend selects one of the names a backend package has registered
// via RegisterBackend (e.g. "vanilla", "cbtree", "fuzzingtime",
// "tpfreedom"). Required.
func WithBackend(name string) Option {
	return optionFunc(func(o *facadeOptions) error { o.backend = name; return nil })
}

// WithMode selects RECORD or REPLAY.
func WithMode(mode Mode) Option {
	return optionFunc(func(o *facadeOptions) error { o.mode = mode; return nil })
}

// WithScheduleFile sets the path Init loads from (REPLAY) and Emit
// writes to (both modes; REPLAY writes to path+"-replay").
func WithScheduleFile(path string) Option {
	return optionFunc(func(o *facadeOptions) error { o.scheduleFile = path; return nil })
}

// WithBackendArgs passes an opaque value to the selected backend's
// constructor -- a fuzzingtime.Args, tpfreedom.Args, or cbtree.Args.
func WithBackendArgs(args any) Option {
	return optionFunc(func(o *facadeOptions) error { o.backendArgs = args; return nil })
}

// WithLogger overrides the package-level default schedlog.Logger for this
// Facade only.
func WithLogger(l schedlog.Logger) Option {
	return optionFunc(func(o *facadeOptions) error { o.logger = l; return nil })
}

// WithMetricsRegisterer overrides where Prometheus collectors are
// registered; defaults to a fresh, unshared *prometheus.Registry so
// multiple Facade instances in one test binary never collide.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return optionFunc(func(o *facadeOptions) error { o.registerer = reg; return nil })
}

func resolveOptions(opts []Option) (*facadeOptions, error) {
	cfg := &facadeOptions{mode: ModeRecord}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = schedlog.Global()
	}
	if cfg.registerer == nil {
		cfg.registerer = prometheus.NewRegistry()
	}
	return cfg, nil
}

// Facade is the fixed API every loop/worker thread calls into at
// schedule points. It owns the reentrant core lock, the thread registry,
// the schedule log, and the selected Backend. One Facade exists per
// running scheduler; the package-level backend registry and logger are
// the only global state (spec's "supporting more than one scheduler
// backend active at a time" is explicitly a Non-goal, but nothing stops
// two independent Facade values existing for, e.g., two test cases).
type Facade struct {
	runID   uuid.UUID
	opts    *facadeOptions
	lock    *coreLock
	reg     *threadRegistry
	log     *ScheduleLog
	backend Backend
	metrics *Metrics

	currentCBThread atomic.Uint64
}

// Init selects a backend, loads the schedule file if replaying,
// constructs the backend, and installs the reentrant lock. It takes no
// "one-shot" global state beyond the package-level backend registry and
// default logger -- every other piece of state lives on the returned
// *Facade.
func Init(opts ...Option) (*Facade, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	if cfg.backend == "" {
		return nil, schederr.NewConfigError("init", errors.New("no backend selected, call WithBackend"))
	}
	ctor, ok := lookupBackend(cfg.backend)
	if !ok {
		return nil, schederr.NewConfigError("init", fmt.Errorf("%w: %w", schederr.ErrUnknownBackend, backendNotFoundError(cfg.backend)))
	}

	var log *ScheduleLog
	if cfg.mode == ModeReplay {
		if cfg.scheduleFile == "" {
			return nil, schederr.NewConfigError("init", errors.New("replay mode requires WithScheduleFile"))
		}
		log, err = Load(cfg.scheduleFile)
		if err != nil {
			return nil, err
		}
	} else {
		log = NewScheduleLog()
	}

	metrics := NewMetrics(cfg.registerer)
	backend, err := ctor(BackendConfig{Mode: cfg.mode, Log: log, Logger: cfg.logger, Metrics: metrics, Args: cfg.backendArgs})
	if err != nil {
		return nil, schederr.NewConfigError("init", err)
	}

	f := &Facade{
		runID:   uuid.New(),
		opts:    cfg,
		lock:    newCoreLock(),
		reg:     newThreadRegistry(),
		log:     log,
		backend: backend,
		metrics: metrics,
	}
	schedlog.Info(cfg.logger, "scheduler initialised",
		schedlog.F("run_id", f.runID), schedlog.F("backend", cfg.backend), schedlog.F("mode", cfg.mode.String()))
	return f, nil
}

// RegisterThread assigns the calling goroutine an id under role. It
// fails if role is RoleLooper and a looper is already registered.
func (f *Facade) RegisterThread(role Role) (uint64, error) {
	id, err := f.reg.Register(role)
	if err != nil {
		return 0, err
	}
	schedlog.Debug(f.opts.logger, "thread registered", schedlog.F("id", id), schedlog.F("role", role.String()))
	return id, nil
}

// RegisterLCBN records lcbn's position in the causation tree before the
// callback it describes executes, under the core lock.
func (f *Facade) RegisterLCBN(lcbn LCBN) {
	id, _, ok := f.reg.Lookup()
	if !ok {
		schederr.Abort("register_lcbn", errors.New("register_lcbn called from unregistered thread"))
	}
	f.lock.Lock(id)
	defer f.lock.Unlock(id)
	f.backend.RegisterLCBN(lcbn)
}

// NextLCBNType returns the kind of the next scheduled callback in REPLAY
// mode, or KindAny outside replay (or once divergence has been
// declared), per spec §9 Open Question (a).
func (f *Facade) NextLCBNType() Kind {
	if f.opts.mode != ModeReplay {
		return KindAny
	}
	return f.backend.NextLCBNType()
}

// ThreadYield is the central entry point: every schedule point in §3
// calls this. The core lock is held across the entire
// BEFORE_EXEC_CB..AFTER_EXEC_CB bracket (spanning the loop's actual
// callback invocation, which happens between the two calls, outside this
// function) and for the duration of every other call.
func (f *Facade) ThreadYield(spp *SPP) {
	if !spp.LooksValid() {
		schederr.Abort("thread_yield", schederr.ErrSPPUninitialised)
	}

	id, role, ok := f.reg.Lookup()
	if !ok {
		schederr.Abort(spp.Tag.String(), errors.New("thread_yield called from unregistered thread"))
	}
	if required := requiredRole(spp.Tag); required != RoleUnknown && required != role {
		schederr.Abort(spp.Tag.String(), fmt.Errorf("role %s may not reach this point (requires %s)", role, required))
	}

	switch spp.Tag {
	case TagBeforeExecCB:
		f.lock.Lock(id)
		f.currentCBThread.Store(id)
		f.dispatch(id, role, spp)
		// Deliberately not unlocked here: the lock stays held across the
		// collaborator's actual callback invocation, released only by the
		// matching TagAfterExecCB below.
	case TagAfterExecCB:
		if f.lock.Owner() != id {
			schederr.Abort(spp.Tag.String(), errors.New("after_exec_cb with no matching before_exec_cb on this thread"))
		}
		f.dispatch(id, role, spp)
		f.lock.Unlock(id)
		if f.lock.Owner() == 0 {
			f.currentCBThread.Store(NoCurrentCBThread)
		}
	default:
		f.lock.Lock(id)
		defer f.lock.Unlock(id)
		f.dispatch(id, role, spp)
	}
}

func (f *Facade) dispatch(id uint64, role Role, spp *SPP) {
	f.metrics.ScheduleYields.WithLabelValues(spp.Tag.String()).Inc()
	f.backend.ThreadYield(id, role, spp)
	f.metrics.BackendDecisions.WithLabelValues(f.backend.Name(), spp.Tag.String()).Inc()
	if f.backend.ScheduleHasDiverged() {
		f.metrics.Divergences.WithLabelValues(f.backend.Name(), spp.Tag.String()).Inc()
	}
}

// CurrentCBThread returns the id of the thread currently executing
// inside a callback, or NoCurrentCBThread. Only safe to rely on from
// that thread itself -- it is intended for a shutdown path unwinding
// nested callbacks, not for cross-thread polling.
func (f *Facade) CurrentCBThread() uint64 {
	return f.currentCBThread.Load()
}

// Emit writes the schedule log: to the configured file in RECORD mode,
// to the configured file with a "-replay" suffix in REPLAY mode (so the
// original recording is preserved for comparison, per spec §4.1).
func (f *Facade) Emit() (string, error) {
	path, err := Emit(f.log, f.opts.scheduleFile, f.opts.mode)
	if err != nil {
		return "", err
	}
	f.metrics.RecordsEmitted.Add(float64(f.log.Len()))
	schedlog.Info(f.opts.logger, "schedule emitted", schedlog.F("path", path), schedlog.F("records", f.log.Len()))
	return path, nil
}

// LCBNsRemaining reports how many scheduled decisions remain.
func (f *Facade) LCBNsRemaining() int { return f.backend.LCBNsRemaining() }

// ScheduleHasDiverged reports whether replay has fallen back to RECORD.
func (f *Facade) ScheduleHasDiverged() bool { return f.backend.ScheduleHasDiverged() }

// NExecuted returns the number of AFTER_EXEC_CB observations so far.
func (f *Facade) NExecuted() uint64 { return f.log.NExecuted() }

// GetMode returns the mode Init was called with. It does not reflect a
// divergence-triggered fallback -- use ScheduleHasDiverged for that.
func (f *Facade) GetMode() Mode { return f.opts.mode }

// Metrics exposes the Prometheus collectors registered for this Facade,
// for wiring into an HTTP /metrics handler.
func (f *Facade) Metrics() *Metrics { return f.metrics }

// RunID is this Facade's unique session identifier, logged at Init and
// useful for correlating a schedule file with the run that produced it.
func (f *Facade) RunID() string { return f.runID.String() }
