package viceprotocol

import (
	"slices"
	"testing"
)

func TestTrackerHeartbeat(t *testing.T) {
	tr := newRequestTracker()
	if got := tr.tick(100); got != nil {
		t.Fatalf("tick on empty tracker = %v", got)
	}

	tr.add(0x1000)
	tr.add(0x1001)
	for i := 0; i < 100; i++ {
		if got := tr.tick(100); got != nil {
			t.Fatalf("tick %d fired early: %v", i+1, got)
		}
	}
	tr.add(0x1002)

	got := tr.tick(100)
	if !slices.Equal(got, []uint32{0x1000, 0x1001}) {
		t.Fatalf("overdue = %v, want [0x1000 0x1001]", got)
	}
	for id, ticks := range tr.pending {
		if ticks != 0 {
			t.Errorf("request $%X has %d ticks after heartbeat, want 0", id, ticks)
		}
	}
	if tr.len() != 3 {
		t.Errorf("heartbeat dropped entries: %d left", tr.len())
	}
}

func TestTrackerRemoveIsExact(t *testing.T) {
	tr := newRequestTracker()
	for _, id := range []uint32{100, 101, 102} {
		tr.add(id)
	}
	if !tr.remove(101) {
		t.Error("remove(101) = false")
	}
	if tr.remove(101) {
		t.Error("second remove(101) = true")
	}
	if tr.remove(EventRequestID) {
		t.Error("remove(event) = true")
	}
	for _, id := range []uint32{100, 102} {
		if _, ok := tr.pending[id]; !ok {
			t.Errorf("request %d was removed", id)
		}
	}
}
