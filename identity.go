package schedcore

import (
	"strconv"
	"strings"
	"time"
)

// ApplyIdentityDecision writes the identity (non-perturbing) choice for
// every schedule point that has output fields other than BEFORE/AFTER_EXEC_CB:
// FIFO queue order, handle-all polled events, ready iff the deadline has
// passed. Spec §4.2 requires every backend write these defaults for the
// points it does not otherwise care to perturb -- Vanilla uses this for
// everything; the other three backends use it for every point outside
// their own area of interest.
func ApplyIdentityDecision(spp *SPP) {
	switch spp.Tag {
	case TagLooperIOPollBeforeHandlingEvents:
		spp.Thoughts = onesLike(len(spp.Items))
	case TagTPWantsWork:
		if len(spp.WorkQueueSnapshot) > 0 {
			spp.ShouldGetWork = 1
		} else {
			spp.ShouldGetWork = 0
		}
	case TagTPGettingWork:
		spp.Index = 0
	case TagLooperRunClosing:
		spp.DeferClosing = 0
	case TagTimerReady:
		if !spp.Now.Before(spp.Timer.Deadline) {
			spp.Ready = 1
		} else {
			spp.Ready = 0
		}
	case TagTimerRun:
		spp.Thoughts = onesLike(len(spp.Timers))
	case TagTimerNextTimeout:
		d := spp.NextTimer.Deadline.Sub(spp.Now)
		if d < 0 {
			d = 0
		}
		spp.TimeUntilFire = d
	}
}

func onesLike(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

// EncodeDecisionOutputs renders spp's output fields as a flat string map
// suitable for a Record's Outputs, for the points a perturbing backend
// (FuzzingTime, TPFreedom) chooses to persist so CBTree can reproduce the
// same decision on replay rather than recomputing it.
func EncodeDecisionOutputs(spp *SPP) map[string]string {
	switch spp.Tag {
	case TagTimerReady:
		return map[string]string{"ready": strconv.Itoa(spp.Ready)}
	case TagTimerRun:
		return map[string]string{"thoughts": encodeInts(spp.Thoughts)}
	case TagTimerNextTimeout:
		return map[string]string{"time_until_fire_ns": strconv.FormatInt(int64(spp.TimeUntilFire), 10)}
	case TagTPWantsWork:
		return map[string]string{"should_get_work": strconv.Itoa(spp.ShouldGetWork)}
	case TagTPGettingWork:
		return map[string]string{"index": strconv.Itoa(spp.Index)}
	case TagLooperRunClosing:
		return map[string]string{"defer": strconv.Itoa(spp.DeferClosing)}
	default:
		return nil
	}
}

// DecodeDecisionOutputs reverses EncodeDecisionOutputs, writing the
// persisted decision back into spp's output fields.
func DecodeDecisionOutputs(spp *SPP, outputs map[string]string) {
	switch spp.Tag {
	case TagTimerReady:
		spp.Ready = atoiOr(outputs["ready"], 0)
	case TagTimerRun:
		spp.Thoughts = decodeInts(outputs["thoughts"])
	case TagTimerNextTimeout:
		n, _ := strconv.ParseInt(outputs["time_until_fire_ns"], 10, 64)
		spp.TimeUntilFire = time.Duration(n)
	case TagTPWantsWork:
		spp.ShouldGetWork = atoiOr(outputs["should_get_work"], 0)
	case TagTPGettingWork:
		spp.Index = atoiOr(outputs["index"], 0)
	case TagLooperRunClosing:
		spp.DeferClosing = atoiOr(outputs["defer"], 0)
	}
}

// RecordDecision appends a decision record carrying spp's current output
// fields, encoded by EncodeDecisionOutputs. Only meaningful for tags that
// function supports; callers only call this for those tags.
func RecordDecision(log *ScheduleLog, spp *SPP) {
	log.Append(spp.Tag, LCBN{}, EncodeDecisionOutputs(spp))
}

// TryReplayDecision consumes the record at the log's cursor into spp's
// output fields if (and only if) its tag matches spp.Tag, advancing the
// cursor and reporting true. If the cursor holds a different tag -- or
// nothing at all -- this is not divergence, it simply means the run that
// produced the file never bothered persisting a decision for this point
// (e.g. it was recorded by Vanilla); the caller should fall back to
// ApplyIdentityDecision.
func TryReplayDecision(log *ScheduleLog, spp *SPP) bool {
	r, ok := log.Peek()
	if !ok || r.Tag != spp.Tag {
		return false
	}
	DecodeDecisionOutputs(spp, r.Outputs)
	log.Advance()
	return true
}

func encodeInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func decodeInts(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		out[i] = atoiOr(p, 0)
	}
	return out
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
