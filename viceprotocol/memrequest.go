package viceprotocol

import "sync"

// memoryRequest remembers where the bytes of a MemGet reply belong, since
// the reply itself carries only the data.
type memoryRequest struct {
	id         uint32
	start, end uint16
	bank       uint16
	space      MemSpace
}

// memoryRegistry holds outstanding MemGet and RegistersGet requests.
// It is written by callers and the pump, so it has its own lock.
type memoryRegistry struct {
	mu        sync.Mutex
	memory    map[uint32]memoryRequest
	registers map[uint32]MemSpace
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{
		memory:    make(map[uint32]memoryRequest),
		registers: make(map[uint32]MemSpace),
	}
}

func (r *memoryRegistry) addMemory(req memoryRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memory[req.id] = req
}

// takeMemory removes and returns the request for id.
func (r *memoryRegistry) takeMemory(id uint32) (memoryRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.memory[id]
	if ok {
		delete(r.memory, id)
	}
	return req, ok
}

func (r *memoryRegistry) addRegisters(id uint32, space MemSpace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registers[id] = space
}

// takeRegisters returns the memory space a register reply belongs to.
// Unsolicited register dumps describe the main CPU.
func (r *memoryRegistry) takeRegisters(id uint32) MemSpace {
	r.mu.Lock()
	defer r.mu.Unlock()
	space, ok := r.registers[id]
	if !ok {
		return MemMain
	}
	delete(r.registers, id)
	return space
}

func (r *memoryRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.memory)
}

func (r *memoryRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.memory)
	clear(r.registers)
}
