// Package machine provides the local stores a viceprotocol.Client mirrors
// emulator state into.
package machine

import (
	"sync"

	"github.com/attic/vicemon/viceprotocol"
)

type cpuState struct {
	memory    [0x10000]byte
	registers viceprotocol.Registers
}

// Mirror holds a copy of memory and registers for every CPU the client
// has heard about. It implements viceprotocol.CPUStore and is safe for
// concurrent use.
type Mirror struct {
	mu   sync.RWMutex
	cpus map[viceprotocol.MemSpace]*cpuState
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{cpus: make(map[viceprotocol.MemSpace]*cpuState)}
}

// cpu returns the state for space, creating it on first write.
func (m *Mirror) cpu(space viceprotocol.MemSpace) *cpuState {
	s, ok := m.cpus[space]
	if !ok {
		s = &cpuState{}
		m.cpus[space] = s
	}
	return s
}

// GetByte returns one byte of memory. Spaces never written read as zero.
func (m *Mirror) GetByte(space viceprotocol.MemSpace, addr uint16) byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.cpus[space]; ok {
		return s.memory[addr]
	}
	return 0
}

// SetByte stores one byte of memory.
func (m *Mirror) SetByte(space viceprotocol.MemSpace, addr uint16, value byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cpu(space).memory[addr] = value
}

// Read copies n bytes starting at start, wrapping at the top of memory.
func (m *Mirror) Read(space viceprotocol.MemSpace, start uint16, n int) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]byte, n)
	s, ok := m.cpus[space]
	if !ok {
		return out
	}
	addr := start
	for i := range out {
		out[i] = s.memory[addr]
		addr++
	}
	return out
}

// Registers returns the last known register file of space.
func (m *Mirror) Registers(space viceprotocol.MemSpace) viceprotocol.Registers {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.cpus[space]; ok {
		return s.registers
	}
	return viceprotocol.Registers{}
}

// SetRegister updates a single register.
func (m *Mirror) SetRegister(space viceprotocol.MemSpace, id viceprotocol.RegisterID, value uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cpu(space).registers.Set(id, value)
}
