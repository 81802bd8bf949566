package schedcore

import (
	"time"

	"github.com/hollowfield-labs/schedcore/schederr"
	"github.com/hollowfield-labs/schedcore/schedlog"
)

// replayLagQuantileSampleRate is how many BEFORE_EXEC_CB gaps the detector
// buffers in its pSquareQuantile estimator before downsampling into the
// real Prometheus histogram, keeping the hot-path update allocation-free.
const replayLagQuantileSampleRate = 32

// DefaultMinExecutedBeforeDivergence is used when a backend's Args do not
// specify a threshold.
const DefaultMinExecutedBeforeDivergence = 0

// DivergenceDetector implements spec §4.6's policy: a bounded prefix of
// the schedule must be consumed before divergence is tolerated. Below
// that threshold, divergence is fatal (process abort); at or above it,
// divergence silently flips the mode to RECORD from that point on.
//
// Grounded on the teacher's AbortController/AbortSignal one-shot-trip
// state machine (abort.go): Declare plays the role of Abort, Diverged
// the role of Aborted, generalised from "was this operation cancelled"
// to "has this replay diverged" with a conditional fatal/non-fatal path
// bolted on.
type DivergenceDetector struct {
	log       *ScheduleLog
	logger    schedlog.Logger
	minBefore uint64
	diverged  bool

	// consecutiveNonCallbackYields counts schedule-point visits since the
	// last BEFORE_EXEC_CB, for the timeout-based fallback described in
	// spec §4.6's final paragraph.
	consecutiveNonCallbackYields int
	yieldsBeforeTimeout          int

	// replayLag estimates the running p99 of wall-clock gaps between
	// successive BEFORE_EXEC_CB points, a cheap proxy for how far replay
	// is lagging real time. metrics is nil outside a Facade-constructed
	// detector (e.g. in a unit test), in which case sampling is skipped
	// entirely.
	metrics       *Metrics
	replayLag     *pSquareQuantile
	lastBeforeAt  time.Time
	lagSampleSeen int
}

// NewDivergenceDetector constructs a detector bound to log, tolerating
// divergence once nExecuted >= minBefore, and treating more than
// yieldsBeforeTimeout consecutive non-BEFORE_EXEC_CB schedule points
// (0 or less disables the check)
// as "the expected cause can no longer occur". metrics may be nil.
func NewDivergenceDetector(log *ScheduleLog, logger schedlog.Logger, minBefore uint64, yieldsBeforeTimeout int, metrics *Metrics) *DivergenceDetector {
	if logger == nil {
		logger = schedlog.NoOp()
	}
	d := &DivergenceDetector{log: log, logger: logger, minBefore: minBefore, yieldsBeforeTimeout: yieldsBeforeTimeout, metrics: metrics}
	if metrics != nil {
		d.replayLag = newPSquareQuantile(0.99)
	}
	return d
}

// Diverged reports whether divergence has already been declared.
func (d *DivergenceDetector) Diverged() bool { return d.diverged }

// ObserveBeforeExecCB resets the timeout counter; call it whenever a
// BEFORE_EXEC_CB schedule point is reached, matching or not.
func (d *DivergenceDetector) ObserveBeforeExecCB() {
	d.consecutiveNonCallbackYields = 0
	now := time.Now()
	if d.replayLag != nil {
		if !d.lastBeforeAt.IsZero() {
			d.replayLag.Update(now.Sub(d.lastBeforeAt).Seconds())
			d.lagSampleSeen++
			if d.lagSampleSeen%replayLagQuantileSampleRate == 0 {
				d.metrics.ReplayLag.Observe(d.replayLag.Quantile())
			}
		}
		d.lastBeforeAt = now
	}
}

// ObserveOtherYield counts one schedule-point visit that was not a
// BEFORE_EXEC_CB, and declares timeout-divergence once the configured
// threshold is exceeded. point is used only for diagnostics if the
// declaration turns out to be fatal.
func (d *DivergenceDetector) ObserveOtherYield(point string, nExecuted uint64) {
	if d.diverged || d.yieldsBeforeTimeout <= 0 {
		return
	}
	d.consecutiveNonCallbackYields++
	if d.consecutiveNonCallbackYields > d.yieldsBeforeTimeout {
		d.Declare(point, nExecuted)
	}
}

// Declare is called when a live LCBN or control-flow marker disagrees
// with the schedule's expectation. It panics (process abort) if
// nExecuted has not yet reached the configured threshold; otherwise it
// marks the log diverged and returns normally, leaving the caller to
// switch its own mode to ModeRecord.
func (d *DivergenceDetector) Declare(point string, nExecuted uint64) {
	if d.diverged {
		return
	}
	if nExecuted < d.minBefore {
		schedlog.Error(d.logger, "replay diverged below threshold, aborting",
			schedlog.F("point", point), schedlog.F("n_executed", nExecuted), schedlog.F("min_before", d.minBefore))
		schederr.Abort(point, schederr.ErrDivergenceFatal)
		return
	}
	d.diverged = true
	d.log.MarkDiverged(d.log.Cursor())
	schedlog.Warn(d.logger, "replay diverged, falling back to record",
		schedlog.F("point", point), schedlog.F("n_executed", nExecuted), schedlog.F("record_index", d.log.Cursor()))
}
