package schedcore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// formatHeader renders the "# records=N diverged_at=<idx|none>" comment
// line written at the top of every emitted schedule file. This is the
// one feature original_source/ has that the distilled spec dropped: the
// original NodeFz scheduler prints an equivalent summary to its log's
// header comment when closing the log (see SPEC_FULL.md's "Supplemented
// Features").
func formatHeader(log *ScheduleLog) string {
	diverged := "none"
	if log.HasDiverged() {
		diverged = strconv.Itoa(log.DivergedAt())
	}
	return fmt.Sprintf("# records=%d diverged_at=%s", log.Len(), diverged)
}

// formatRecord renders one Record as "<TAG> kind=<k> path=<p> key=val ...",
// with Outputs keys sorted for deterministic, round-trippable output
// (spec §8 property 2: emit -> load -> emit must be byte-identical after
// normalisation of key order -- sorting keys at emit time makes the
// normalisation a no-op).
func formatRecord(r Record) string {
	var b strings.Builder
	b.WriteString(r.Tag.String())

	kind := KindUnknown
	path := Path(nil)
	if r.Tag == TagAfterExecCB || r.Tag == TagBeforeExecCB {
		kind = r.LCBN.Kind
		path = r.LCBN.Path
	}
	fmt.Fprintf(&b, " kind=%s path=%s", kind, pathString(path))

	if r.Tag == TagAfterExecCB {
		fmt.Fprintf(&b, " exec=%d", r.LCBN.ExecIndex)
	}

	keys := make([]string, 0, len(r.Outputs))
	for k := range r.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, r.Outputs[k])
	}
	return b.String()
}

func pathString(p Path) string {
	if p == nil {
		return "-"
	}
	return p.String()
}

// Emit serialises log to path (RECORD mode) or to path+"-replay" (REPLAY
// mode, preserving the original recorded file per spec §4.1). Writes go
// to a temp file followed by an atomic rename, so a crash mid-write
// never leaves a partial schedule file (spec §7's I/O error design).
func Emit(log *ScheduleLog, path string, mode Mode) (string, error) {
	target := path
	if mode == ModeReplay {
		target = path + "-replay"
	}

	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".schedcore-emit-*")
	if err != nil {
		return "", fmt.Errorf("schedcore: emit: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	w := tmp
	if _, err := fmt.Fprintln(w, formatHeader(log)); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("schedcore: emit: write header: %w", err)
	}
	for _, r := range log.Records() {
		if _, err := fmt.Fprintln(w, formatRecord(r)); err != nil {
			_ = tmp.Close()
			return "", fmt.Errorf("schedcore: emit: write record: %w", err)
		}
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("schedcore: emit: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("schedcore: emit: close: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("schedcore: emit: rename: %w", err)
	}
	success = true
	return target, nil
}
