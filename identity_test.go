package schedcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyIdentityDecisionIOPoll(t *testing.T) {
	spp := NewSPP(TagLooperIOPollBeforeHandlingEvents)
	spp.Items = make([]PollEvent, 3)
	ApplyIdentityDecision(spp)
	assert.Equal(t, []int{1, 1, 1}, spp.Thoughts)
}

func TestApplyIdentityDecisionWantsWork(t *testing.T) {
	spp := NewSPP(TagTPWantsWork)
	ApplyIdentityDecision(spp)
	assert.Equal(t, 0, spp.ShouldGetWork)

	spp = NewSPP(TagTPWantsWork)
	spp.WorkQueueSnapshot = []WorkItem{{ID: 1}}
	ApplyIdentityDecision(spp)
	assert.Equal(t, 1, spp.ShouldGetWork)
}

func TestApplyIdentityDecisionGettingWorkIsFIFO(t *testing.T) {
	spp := NewSPP(TagTPGettingWork)
	spp.Index = 7 // pre-set garbage must be overwritten
	ApplyIdentityDecision(spp)
	assert.Equal(t, 0, spp.Index)
}

func TestApplyIdentityDecisionRunClosingDoesNotDefer(t *testing.T) {
	spp := NewSPP(TagLooperRunClosing)
	ApplyIdentityDecision(spp)
	assert.Equal(t, 0, spp.DeferClosing)
}

func TestApplyIdentityDecisionTimerReady(t *testing.T) {
	now := time.Now()
	spp := NewSPP(TagTimerReady)
	spp.Now = now
	spp.Timer = TimerInfo{Deadline: now.Add(time.Second)}
	ApplyIdentityDecision(spp)
	assert.Equal(t, 0, spp.Ready, "deadline in the future is not yet ready")

	spp = NewSPP(TagTimerReady)
	spp.Now = now
	spp.Timer = TimerInfo{Deadline: now.Add(-time.Second)}
	ApplyIdentityDecision(spp)
	assert.Equal(t, 1, spp.Ready, "deadline in the past is ready")
}

func TestApplyIdentityDecisionTimerRun(t *testing.T) {
	spp := NewSPP(TagTimerRun)
	spp.Timers = make([]TimerInfo, 2)
	ApplyIdentityDecision(spp)
	assert.Equal(t, []int{1, 1}, spp.Thoughts)
}

func TestApplyIdentityDecisionTimerNextTimeoutNeverNegative(t *testing.T) {
	now := time.Now()
	spp := NewSPP(TagTimerNextTimeout)
	spp.Now = now
	spp.NextTimer = TimerInfo{Deadline: now.Add(-5 * time.Second)}
	ApplyIdentityDecision(spp)
	assert.Equal(t, time.Duration(0), spp.TimeUntilFire)

	spp = NewSPP(TagTimerNextTimeout)
	spp.Now = now
	spp.NextTimer = TimerInfo{Deadline: now.Add(10 * time.Millisecond)}
	ApplyIdentityDecision(spp)
	assert.InDelta(t, float64(10*time.Millisecond), float64(spp.TimeUntilFire), float64(time.Millisecond))
}

func TestEncodeDecodeDecisionOutputsRoundTrip(t *testing.T) {
	cases := []*SPP{
		func() *SPP { s := NewSPP(TagTimerReady); s.Ready = 1; return s }(),
		func() *SPP { s := NewSPP(TagTimerRun); s.Thoughts = []int{1, 0, 1}; return s }(),
		func() *SPP { s := NewSPP(TagTimerNextTimeout); s.TimeUntilFire = 42 * time.Millisecond; return s }(),
		func() *SPP { s := NewSPP(TagTPWantsWork); s.ShouldGetWork = 1; return s }(),
		func() *SPP { s := NewSPP(TagTPGettingWork); s.Index = 3; return s }(),
		func() *SPP { s := NewSPP(TagLooperRunClosing); s.DeferClosing = 1; return s }(),
	}
	for _, original := range cases {
		outputs := EncodeDecisionOutputs(original)
		require.NotEmpty(t, outputs, "tag=%s", original.Tag)

		decoded := NewSPP(original.Tag)
		DecodeDecisionOutputs(decoded, outputs)
		assert.Equal(t, original.Ready, decoded.Ready)
		assert.Equal(t, original.Thoughts, decoded.Thoughts)
		assert.Equal(t, original.TimeUntilFire, decoded.TimeUntilFire)
		assert.Equal(t, original.ShouldGetWork, decoded.ShouldGetWork)
		assert.Equal(t, original.Index, decoded.Index)
		assert.Equal(t, original.DeferClosing, decoded.DeferClosing)
	}
}

func TestEncodeDecisionOutputsUnrelatedTagIsNil(t *testing.T) {
	spp := NewSPP(TagBeforeExecCB)
	assert.Nil(t, EncodeDecisionOutputs(spp))
}

func TestRecordAndTryReplayDecision(t *testing.T) {
	log := NewScheduleLog()
	want := NewSPP(TagTimerReady)
	want.Ready = 1
	RecordDecision(log, want)

	got := NewSPP(TagTimerReady)
	ok := TryReplayDecision(log, got)
	require.True(t, ok)
	assert.Equal(t, 1, got.Ready)
	assert.Equal(t, 1, log.Cursor())
}

func TestTryReplayDecisionFalseOnTagMismatch(t *testing.T) {
	log := NewScheduleLog()
	RecordDecision(log, func() *SPP { s := NewSPP(TagTimerReady); s.Ready = 1; return s }())

	got := NewSPP(TagTPWantsWork)
	ok := TryReplayDecision(log, got)
	assert.False(t, ok)
	assert.Equal(t, 0, log.Cursor(), "a tag mismatch must not consume the record")
}

func TestTryReplayDecisionFalseOnEmptyLog(t *testing.T) {
	log := NewScheduleLog()
	got := NewSPP(TagTimerReady)
	assert.False(t, TryReplayDecision(log, got))
}
