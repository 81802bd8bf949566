package schedcore

// Record is one entry in a Schedule Log: either an LCBN execution event
// (Tag == TagAfterExecCB, LCBN populated) or a decision record captured
// at a non-callback schedule point (Tag is one of the others, Outputs
// holds the textual encoding of whatever that point's SPP wrote).
//
// Outputs is deliberately a generic string map rather than one struct
// field per possible output: the set of meaningful keys is determined by
// Tag (see EncodeDecisionOutputs/DecodeDecisionOutputs in identity.go), and a
// generic map keeps Record -- and therefore the on-disk format -- stable
// as backends evolve which fields they bother to record.
type Record struct {
	Seq     uint64
	Tag     Tag
	LCBN    LCBN
	Outputs map[string]string
}

// ScheduleLog is the append-only ordered sequence S[0..n) that is the
// single source of truth for replay (spec §3). All access happens while
// the core lock is held by the caller; ScheduleLog itself does no
// locking.
type ScheduleLog struct {
	records    []Record
	cursor     int
	divergedAt int // -1 until divergence is declared

	// execCount counts every TagAfterExecCB appended by Append or consumed
	// by AdvanceToNextLCBN: it is the answer to "how many callbacks
	// have actually run so far", whether they were freshly recorded,
	// replayed, or recorded again after a divergence fallback.
	execCount uint64
}

// NewScheduleLog returns an empty log, ready for RECORD mode.
func NewScheduleLog() *ScheduleLog {
	return &ScheduleLog{divergedAt: -1}
}

// NewScheduleLogFromRecords returns a log pre-populated for REPLAY mode,
// with the cursor at the start.
func NewScheduleLogFromRecords(records []Record) *ScheduleLog {
	return &ScheduleLog{records: records, divergedAt: -1}
}

// Append adds a record, assigning it the next sequence number.
func (l *ScheduleLog) Append(tag Tag, lcbn LCBN, outputs map[string]string) Record {
	r := Record{Seq: uint64(len(l.records)), Tag: tag, LCBN: lcbn, Outputs: outputs}
	l.records = append(l.records, r)
	if tag == TagAfterExecCB {
		l.execCount++
	}
	return r
}

// Records returns the full record sequence. Callers must not mutate the
// returned slice.
func (l *ScheduleLog) Records() []Record { return l.records }

// Len returns the total number of records appended so far.
func (l *ScheduleLog) Len() int { return len(l.records) }

// Cursor returns the index of the next unconsumed record during replay.
func (l *ScheduleLog) Cursor() int { return l.cursor }

// Peek returns the next unconsumed record without advancing the cursor.
func (l *ScheduleLog) Peek() (Record, bool) {
	if l.cursor >= len(l.records) {
		return Record{}, false
	}
	return l.records[l.cursor], true
}

// PeekNextLCBN scans forward from the cursor for the next
// TagAfterExecCB record, skipping decision records in between. This is
// what CBTree's matching and NextLCBNType consult.
func (l *ScheduleLog) PeekNextLCBN() (LCBN, bool) {
	for i := l.cursor; i < len(l.records); i++ {
		if l.records[i].Tag == TagAfterExecCB {
			return l.records[i].LCBN, true
		}
	}
	return LCBN{}, false
}

// Advance consumes the record at the cursor.
func (l *ScheduleLog) Advance() {
	if l.cursor < len(l.records) {
		l.cursor++
	}
}

// AdvanceToNextLCBN consumes every record from the cursor up to and
// including the next TagAfterExecCB record, counting that one execution
// and returning it. Any decision records it steps over along the way are
// treated as consumed too -- this is what a matched replay calls instead
// of Append, so a pre-loaded log never grows while being replayed, and a
// backend whose per-point handlers left a decision record unconsumed
// cannot permanently desync the cursor from PeekNextLCBN.
func (l *ScheduleLog) AdvanceToNextLCBN() (Record, bool) {
	for l.cursor < len(l.records) {
		r := l.records[l.cursor]
		l.cursor++
		if r.Tag == TagAfterExecCB {
			l.execCount++
			return r, true
		}
	}
	return Record{}, false
}

// Remaining reports how many recorded decisions/LCBNs have not yet been
// consumed. During RECORD mode the cursor never moves, so this is just
// the number of records appended so far, which is meaningless on its
// own -- callers in RECORD mode should
// instead treat the log as perpetually "open" (spec §3's "lcbns_remaining
// () > 0" invariant refers to the replay source file having more to
// give, a condition that doesn't apply until there is one).
func (l *ScheduleLog) Remaining() int {
	return len(l.records) - l.cursor
}

// MarkDiverged records the record index at which divergence was
// declared. A no-op if already marked.
func (l *ScheduleLog) MarkDiverged(at int) {
	if l.divergedAt == -1 {
		l.divergedAt = at
	}
}

// DivergedAt returns the index divergence was declared at, or -1.
func (l *ScheduleLog) DivergedAt() int { return l.divergedAt }

// HasDiverged reports whether MarkDiverged has been called.
func (l *ScheduleLog) HasDiverged() bool { return l.divergedAt != -1 }

// NExecuted returns the number of TagAfterExecCB records appended so far
// or consumed by a matched replay (AdvanceToNextLCBN), in either mode and
// across a divergence fallback.
func (l *ScheduleLog) NExecuted() uint64 { return l.execCount }
