package harness

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollowfield-labs/schedcore"
	_ "github.com/hollowfield-labs/schedcore/backend/vanilla"
)

func TestHarnessRunCompletesAllTimersAndWork(t *testing.T) {
	f, err := schedcore.Init(
		schedcore.WithBackend("vanilla"),
		schedcore.WithScheduleFile(filepath.Join(t.TempDir(), "sched.log")),
	)
	require.NoError(t, err)

	var timerFired, workRan atomic.Int64
	prog := Program{
		Timers: []TimerSpec{
			{Delay: 5 * time.Millisecond, Callback: Callback{Fn: func() { timerFired.Add(1) }}},
			{Delay: 10 * time.Millisecond, Callback: Callback{Fn: func() { timerFired.Add(1) }}},
		},
		Work: []WorkSpec{
			{Callback: Callback{Fn: func() { workRan.Add(1) }}},
			{Callback: Callback{Fn: func() { workRan.Add(1) }}},
		},
		Workers: 2,
	}

	h := New(f)
	done := make(chan error, 1)
	go func() { done <- h.Run(prog) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("harness run did not complete")
	}

	assert.EqualValues(t, 2, timerFired.Load())
	assert.EqualValues(t, 2, workRan.Load())
	assert.EqualValues(t, 4, f.NExecuted())
}

func TestHarnessRunWithNoWorkersDefaultsToOne(t *testing.T) {
	f, err := schedcore.Init(
		schedcore.WithBackend("vanilla"),
		schedcore.WithScheduleFile(filepath.Join(t.TempDir(), "sched.log")),
	)
	require.NoError(t, err)

	var ran atomic.Bool
	prog := Program{
		Work: []WorkSpec{{Callback: Callback{Fn: func() { ran.Store(true) }}}},
	}

	h := New(f)
	done := make(chan error, 1)
	go func() { done <- h.Run(prog) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("harness run did not complete")
	}
	assert.True(t, ran.Load())
}
