package machine

import (
	"cmp"
	"slices"
	"sync"

	"github.com/attic/vicemon/viceprotocol"
)

// Breakpoints is the local checkpoint table. It implements
// viceprotocol.BreakpointStore. Checkpoints are keyed by number, so the
// reply to a CheckpointSet followed by a full list refresh leaves one
// entry, not two.
type Breakpoints struct {
	mu          sync.Mutex
	checkpoints map[uint32]viceprotocol.Checkpoint
}

// NewBreakpoints creates an empty table.
func NewBreakpoints() *Breakpoints {
	return &Breakpoints{checkpoints: make(map[uint32]viceprotocol.Checkpoint)}
}

// AddBreakpoint inserts cp, replacing any checkpoint with the same number.
func (b *Breakpoints) AddBreakpoint(cp viceprotocol.Checkpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkpoints[cp.Number] = cp
}

// ClearBreakpoints empties the table before a full list refresh.
func (b *Breakpoints) ClearBreakpoints() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.checkpoints)
}

// SetBreakpointHit marks checkpoint number as the one that stopped
// execution. Unknown numbers are ignored.
func (b *Breakpoints) SetBreakpointHit(number uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cp, ok := b.checkpoints[number]; ok {
		cp.Flags |= viceprotocol.FlagCurrent
		b.checkpoints[number] = cp
	}
}

// ClearBreakpointsHit drops the hit mark from every checkpoint.
func (b *Breakpoints) ClearBreakpointsHit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for n, cp := range b.checkpoints {
		cp.Flags &^= viceprotocol.FlagCurrent
		b.checkpoints[n] = cp
	}
}

// List returns the checkpoints ordered by number.
func (b *Breakpoints) List() []viceprotocol.Checkpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]viceprotocol.Checkpoint, 0, len(b.checkpoints))
	for _, cp := range b.checkpoints {
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b viceprotocol.Checkpoint) int {
		return cmp.Compare(a.Number, b.Number)
	})
	return out
}

// At returns the enabled execution checkpoints covering addr.
func (b *Breakpoints) At(addr uint16) []viceprotocol.Checkpoint {
	var out []viceprotocol.Checkpoint
	for _, cp := range b.List() {
		live := cp.Flags&(viceprotocol.FlagEnabled|viceprotocol.FlagExec) == viceprotocol.FlagEnabled|viceprotocol.FlagExec
		if live && cp.Start <= addr && addr <= cp.End {
			out = append(out, cp)
		}
	}
	return out
}

// Hit returns the checkpoint that stopped execution, if any.
func (b *Breakpoints) Hit() (viceprotocol.Checkpoint, bool) {
	for _, cp := range b.List() {
		if cp.Flags&viceprotocol.FlagCurrent != 0 {
			return cp, true
		}
	}
	return viceprotocol.Checkpoint{}, false
}
