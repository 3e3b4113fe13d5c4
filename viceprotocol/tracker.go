package viceprotocol

import "slices"

// requestTracker records requests that expect a reply, with the number of
// ticks each has waited since the last heartbeat. Callers hold sendMu.
type requestTracker struct {
	pending map[uint32]int
}

func newRequestTracker() *requestTracker {
	return &requestTracker{pending: make(map[uint32]int)}
}

func (t *requestTracker) add(id uint32) {
	t.pending[id] = 0
}

// remove drops the entry for id and reports whether there was one.
func (t *requestTracker) remove(id uint32) bool {
	if _, ok := t.pending[id]; !ok {
		return false
	}
	delete(t.pending, id)
	return true
}

func (t *requestTracker) len() int {
	return len(t.pending)
}

func (t *requestTracker) clear() {
	clear(t.pending)
}

// tick ages every entry by one. When the oldest entry has waited more
// than threshold ticks, tick resets all entries to zero and returns the
// overdue IDs in ascending order; the caller then sends one heartbeat.
func (t *requestTracker) tick(threshold int) []uint32 {
	oldest := 0
	for id, ticks := range t.pending {
		ticks++
		t.pending[id] = ticks
		oldest = max(oldest, ticks)
	}
	if oldest <= threshold {
		return nil
	}
	overdue := make([]uint32, 0, len(t.pending))
	for id, ticks := range t.pending {
		if ticks > threshold {
			overdue = append(overdue, id)
		}
		t.pending[id] = 0
	}
	slices.Sort(overdue)
	return overdue
}
