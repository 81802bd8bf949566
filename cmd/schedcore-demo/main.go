// Command schedcore-demo runs a small fixed program of timers and work
// items through the scheduler, recording or replaying a schedule file
// depending on the flags given.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/hollowfield-labs/schedcore/backend/cbtree"
	_ "github.com/hollowfield-labs/schedcore/backend/vanilla"

	"github.com/hollowfield-labs/schedcore"
	"github.com/hollowfield-labs/schedcore/backend/fuzzingtime"
	"github.com/hollowfield-labs/schedcore/backend/tpfreedom"
	"github.com/hollowfield-labs/schedcore/harness"
	"github.com/hollowfield-labs/schedcore/schedlog"
)

func main() {
	backendName := flag.String("backend", "vanilla", "backend name: "+strings.Join(schedcore.RegisteredBackends(), ", "))
	mode := flag.String("mode", "record", "record or replay")
	file := flag.String("file", "schedule.log", "schedule file path")
	seed := flag.Int64("seed", 1, "seed for fuzzingtime/tpfreedom backends")
	workers := flag.Int("workers", 4, "worker pool size")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if *verbose {
		schedlog.SetGlobal(schedlog.NewTextLogger(os.Stderr, schedlog.LevelDebug))
	} else {
		schedlog.SetGlobal(schedlog.NewTextLogger(os.Stderr, schedlog.LevelInfo))
	}

	m := schedcore.ModeRecord
	if strings.EqualFold(*mode, "replay") {
		m = schedcore.ModeReplay
	}

	var args any
	switch *backendName {
	case "fuzzingtime":
		args = fuzzingtime.Args{Seed: *seed}
	case "tpfreedom":
		args = tpfreedom.Args{Seed: *seed, MaxDelay: 10 * time.Millisecond}
	}

	facade, err := schedcore.Init(
		schedcore.WithBackend(*backendName),
		schedcore.WithMode(m),
		schedcore.WithScheduleFile(*file),
		schedcore.WithBackendArgs(args),
	)
	if err != nil {
		log.Fatalf("schedcore-demo: init: %v", err)
	}

	h := harness.New(facade)
	prog := harness.Program{
		Workers: *workers,
		Timers: []harness.TimerSpec{
			{Delay: 10 * time.Millisecond, Callback: harness.Callback{Fn: printer("timer-1")}},
			{Delay: 20 * time.Millisecond, Callback: harness.Callback{Fn: printer("timer-2")}},
			{Delay: 30 * time.Millisecond, Callback: harness.Callback{Fn: printer("timer-3")}},
		},
	}
	for i := 0; i < 8; i++ {
		prog.Work = append(prog.Work, harness.WorkSpec{Callback: harness.Callback{Fn: printer(fmt.Sprintf("work-%d", i))}})
	}

	if err := h.Run(prog); err != nil {
		log.Fatalf("schedcore-demo: run: %v", err)
	}

	path, err := facade.Emit()
	if err != nil {
		log.Fatalf("schedcore-demo: emit: %v", err)
	}

	fmt.Printf("run=%s backend=%s mode=%s n_executed=%d diverged=%v emitted=%s\n",
		facade.RunID(), *backendName, facade.GetMode(), facade.NExecuted(), facade.ScheduleHasDiverged(), path)
}

func printer(label string) func() {
	return func() { fmt.Println(label) }
}
