package tpfreedom

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollowfield-labs/schedcore"
)

func newBackend(t *testing.T, args Args) (*Backend, *schedcore.ScheduleLog) {
	t.Helper()
	log := schedcore.NewScheduleLog()
	b, err := New(schedcore.BackendConfig{Mode: schedcore.ModeRecord, Log: log, Args: args})
	require.NoError(t, err)
	return b.(*Backend), log
}

func TestTPFreedomIsRegistered(t *testing.T) {
	assert.Contains(t, schedcore.RegisteredBackends(), Name)
}

func TestTPFreedomNeverReplays(t *testing.T) {
	b, _ := newBackend(t, Args{})
	assert.Equal(t, schedcore.KindAny, b.NextLCBNType())
	assert.False(t, b.ScheduleHasDiverged())
	assert.Equal(t, 1, b.LCBNsRemaining())
}

func TestTPFreedomWithNoWorkNeverAdvisesGetWork(t *testing.T) {
	b, _ := newBackend(t, Args{})
	spp := schedcore.NewSPP(schedcore.TagTPWantsWork)
	b.ThreadYield(1, schedcore.RoleThreadPool, spp)
	assert.Equal(t, 0, spp.ShouldGetWork)
}

// TestTPFreedomLivenessBoundsDelay exercises the starvation bound: once a
// worker has been advised to stand down, it must be advised to get work
// within MaxDelay regardless of how the perturbation coin lands.
func TestTPFreedomLivenessBoundsDelay(t *testing.T) {
	const maxDelay = 15 * time.Millisecond
	b, _ := newBackend(t, Args{MaxDelay: maxDelay})

	start := time.Now()
	var gotWork bool
	for i := 0; i < 200; i++ {
		spp := schedcore.NewSPP(schedcore.TagTPWantsWork)
		spp.WorkQueueSnapshot = []schedcore.WorkItem{{ID: 1}}
		b.ThreadYield(1, schedcore.RoleThreadPool, spp)
		if spp.ShouldGetWork == 1 {
			gotWork = true
			break
		}
		time.Sleep(time.Millisecond)
	}
	elapsed := time.Since(start)

	require.True(t, gotWork, "worker was never advised to get work")
	assert.Less(t, elapsed, 3*maxDelay, "starvation bound should trip well before this much real time passes")
}

func TestTPFreedomGettingWorkChoosesValidIndex(t *testing.T) {
	b, _ := newBackend(t, Args{})
	queue := []schedcore.WorkItem{{ID: 1}, {ID: 2}, {ID: 3}}
	for i := 0; i < 50; i++ {
		spp := schedcore.NewSPP(schedcore.TagTPGettingWork)
		spp.WorkQueueSnapshot = queue
		b.ThreadYield(1, schedcore.RoleThreadPool, spp)
		assert.GreaterOrEqual(t, spp.Index, 0)
		assert.Less(t, spp.Index, len(queue))
	}
}

func TestTPFreedomGettingWorkSingleItemAlwaysFIFO(t *testing.T) {
	b, _ := newBackend(t, Args{})
	spp := schedcore.NewSPP(schedcore.TagTPGettingWork)
	spp.WorkQueueSnapshot = []schedcore.WorkItem{{ID: 1}}
	b.ThreadYield(1, schedcore.RoleThreadPool, spp)
	assert.Equal(t, 0, spp.Index)
}

func TestTPFreedomDecisionsAreRecorded(t *testing.T) {
	b, log := newBackend(t, Args{})
	spp := schedcore.NewSPP(schedcore.TagTPGettingWork)
	spp.WorkQueueSnapshot = []schedcore.WorkItem{{ID: 1}, {ID: 2}}
	b.ThreadYield(1, schedcore.RoleThreadPool, spp)

	require.Equal(t, 1, log.Len())
	assert.Equal(t, schedcore.TagTPGettingWork, log.Records()[0].Tag)
	assert.Contains(t, log.Records()[0].Outputs, "index")
}

func TestTPFreedomAfterExecCBRecordsLikeVanilla(t *testing.T) {
	b, log := newBackend(t, Args{})
	after := schedcore.NewSPP(schedcore.TagAfterExecCB)
	after.LogicalCBNode = schedcore.LCBN{Kind: schedcore.KindWork, Path: schedcore.Path{0}}
	b.ThreadYield(1, schedcore.RoleThreadPool, after)

	require.Equal(t, 1, log.Len())
	assert.NotZero(t, log.Records()[0].LCBN.ExecIndex)
}
