package viceprotocol

// Public commands. None of them waits for the emulator: results arrive
// through the collaborators and the event handler. A command whose
// precondition does not hold returns nil without sending anything.

// live returns the connection if it is connected.
func (c *Client) live() (*connection, bool) {
	conn := c.current()
	if conn == nil || !conn.connected.Load() {
		return nil, false
	}
	return conn, true
}

// halted returns the connection if it is connected and stopped.
func (c *Client) halted() (*connection, bool) {
	conn, ok := c.live()
	if !ok || !conn.stopped.Load() {
		return nil, false
	}
	return conn, true
}

func (c *Client) clearHits() {
	if c.breakpoints != nil {
		c.breakpoints.ClearBreakpointsHit()
	}
}

// requestMemory sends MemGet and registers where the reply belongs.
func (c *Client) requestMemory(conn *connection, start, end uint16, space MemSpace) error {
	_, err := c.sendWith(conn, NewMemGetCommand(start, end, space, 0, false), true, func(id uint32) {
		conn.memory.addMemory(memoryRequest{id: id, start: start, end: end, space: space})
	})
	return err
}

// refreshCheckpoints empties the breakpoint store and asks for the full
// list again; the protocol has no incremental checkpoint updates.
func (c *Client) refreshCheckpoints(conn *connection) error {
	if c.breakpoints != nil {
		c.breakpoints.ClearBreakpoints()
	}
	return c.send(conn, NewCheckpointListCommand(), false)
}

// Break halts a running emulator. Any command does that; asking for the
// registers also brings the register mirror up to date.
func (c *Client) Break() error {
	conn, ok := c.live()
	if !ok || conn.stopped.Load() {
		return nil
	}
	_, err := c.sendWith(conn, NewRegistersGetCommand(MemMain), true, func(id uint32) {
		conn.memory.addRegisters(id, MemMain)
	})
	return err
}

// Go resumes a stopped emulator.
func (c *Client) Go() error {
	c.clearHits()
	conn, ok := c.halted()
	if !ok {
		return nil
	}
	return c.send(conn, NewExitCommand(), true)
}

// Step executes one instruction.
func (c *Client) Step() error {
	return c.step(false)
}

// StepOver executes one instruction, treating a subroutine call as one.
func (c *Client) StepOver() error {
	return c.step(true)
}

func (c *Client) step(over bool) error {
	c.clearHits()
	conn, ok := c.halted()
	if !ok {
		return nil
	}
	return c.send(conn, NewStepCommand(over, 1), true)
}

// StepOut runs until the current subroutine returns.
func (c *Client) StepOut() error {
	c.clearHits()
	conn, ok := c.halted()
	if !ok {
		return nil
	}
	return c.send(conn, NewStepOutCommand(), true)
}

// RunTo resumes execution until the PC reaches addr, using a temporary
// execution checkpoint.
func (c *Client) RunTo(addr uint16) error {
	c.clearHits()
	conn, ok := c.halted()
	if !ok {
		return nil
	}
	spec := CheckpointSpec{
		Start:      addr,
		End:        addr,
		Stop:       true,
		Enabled:    true,
		Operations: OpExec,
		Temporary:  true,
	}
	if err := c.send(conn, NewCheckpointSetCommand(spec), true); err != nil {
		return err
	}
	return c.Go()
}

// AddBreakpoint sets an execution breakpoint at addr.
func (c *Client) AddBreakpoint(addr uint16) error {
	return c.AddCheckpoint(CheckpointSpec{
		Start:      addr,
		End:        addr,
		Stop:       true,
		Enabled:    true,
		Operations: OpExec,
	})
}

// AddCheckpoint sets a checkpoint over an address range. Checkpoints are
// always created enabled.
func (c *Client) AddCheckpoint(spec CheckpointSpec) error {
	conn, ok := c.live()
	if !ok {
		return nil
	}
	spec.Enabled = true
	if spec.End < spec.Start {
		spec.End = spec.Start
	}
	if err := c.send(conn, NewCheckpointSetCommand(spec), false); err != nil {
		return err
	}
	return c.refreshCheckpoints(conn)
}

// RemoveBreakpoint deletes a checkpoint.
func (c *Client) RemoveBreakpoint(number uint32) error {
	return c.RemoveBreakpoints(number)
}

// RemoveBreakpoints deletes several checkpoints with a single refresh of
// the list afterwards.
func (c *Client) RemoveBreakpoints(numbers ...uint32) error {
	conn, ok := c.live()
	if !ok || len(numbers) == 0 {
		return nil
	}
	for _, n := range numbers {
		if err := c.send(conn, NewCheckpointDeleteCommand(n), false); err != nil {
			return err
		}
	}
	return c.refreshCheckpoints(conn)
}

// ToggleBreakpoint enables or disables a checkpoint.
func (c *Client) ToggleBreakpoint(number uint32, enable bool) error {
	conn, ok := c.live()
	if !ok {
		return nil
	}
	if err := c.send(conn, NewCheckpointToggleCommand(number, enable), false); err != nil {
		return err
	}
	return c.refreshCheckpoints(conn)
}

// SetCondition attaches a condition expression, e.g. "A == $20", to a
// checkpoint.
func (c *Client) SetCondition(number uint32, expr string) error {
	cmd, err := NewConditionSetCommand(number, expr)
	if err != nil {
		return err
	}
	conn, ok := c.live()
	if !ok {
		return nil
	}
	if err := c.send(conn, cmd, false); err != nil {
		return err
	}
	return c.refreshCheckpoints(conn)
}

// ListCheckpoints refreshes the breakpoint store.
func (c *Client) ListCheckpoints() error {
	conn, ok := c.live()
	if !ok {
		return nil
	}
	return c.refreshCheckpoints(conn)
}

// GetMemory requests memory from start to end inclusive. The bytes are
// written into the CPU store when the reply arrives.
func (c *Client) GetMemory(start, end uint16, space MemSpace) error {
	conn, ok := c.halted()
	if !ok {
		return nil
	}
	if end < start {
		start, end = end, start
	}
	return c.requestMemory(conn, start, end, space)
}

// SetMemory writes data starting at start. Writing nothing is a no-op.
func (c *Client) SetMemory(start uint16, data []byte, space MemSpace) error {
	conn, ok := c.halted()
	if !ok || len(data) == 0 {
		return nil
	}
	if int(start)+len(data) > 0x10000 {
		data = data[:0x10000-int(start)]
	}
	return c.send(conn, NewMemSetCommand(start, data, space, 0, false), true)
}

// GetRegisters requests the registers of a memory space.
func (c *Client) GetRegisters(space MemSpace) error {
	conn, ok := c.live()
	if !ok {
		return nil
	}
	_, err := c.sendWith(conn, NewRegistersGetCommand(space), true, func(id uint32) {
		conn.memory.addRegisters(id, space)
	})
	return err
}

// SetRegisters writes the registers selected by mask.
func (c *Client) SetRegisters(space MemSpace, regs Registers, mask RegisterMask) error {
	conn, ok := c.live()
	if !ok || mask&MaskAll == 0 {
		return nil
	}
	return c.send(conn, NewRegistersSetCommand(space, regs, mask), true)
}

// GetRegistersAvailable requests the register names of a memory space.
func (c *Client) GetRegistersAvailable(space MemSpace) error {
	conn, ok := c.live()
	if !ok {
		return nil
	}
	return c.send(conn, NewRegistersAvailableCommand(space), true)
}

// GetBanks requests the memory bank names.
func (c *Client) GetBanks() error {
	conn, ok := c.live()
	if !ok {
		return nil
	}
	return c.send(conn, NewBanksAvailableCommand(), true)
}

// GetDisplay requests a capture of the VIC-II display.
func (c *Client) GetDisplay() error {
	conn, ok := c.live()
	if !ok {
		return nil
	}
	return c.send(conn, NewDisplayGetCommand(true, DisplayIndexed8), false)
}

// Reset resets the machine or a drive.
func (c *Client) Reset(t ResetType) error {
	conn, ok := c.live()
	if !ok {
		return nil
	}
	return c.send(conn, NewResetCommand(t), false)
}

// AutoStart loads and runs a program file. The path is resolved on the
// emulator's host.
func (c *Client) AutoStart(filename string) error {
	cmd, err := NewAutoStartCommand(filename, true, 0)
	if err != nil {
		return err
	}
	conn, ok := c.live()
	if !ok {
		return nil
	}
	return c.send(conn, cmd, true)
}

// KeyboardFeed types text into the emulated keyboard buffer.
func (c *Client) KeyboardFeed(text string) error {
	cmd, err := NewKeyboardFeedCommand(text)
	if err != nil {
		return err
	}
	conn, ok := c.live()
	if !ok {
		return nil
	}
	return c.send(conn, cmd, true)
}

// Dump saves a machine snapshot on the emulator's host.
func (c *Client) Dump(filename string, saveROMs, saveDisks bool) error {
	cmd, err := NewDumpCommand(filename, saveROMs, saveDisks)
	if err != nil {
		return err
	}
	conn, ok := c.live()
	if !ok {
		return nil
	}
	return c.send(conn, cmd, true)
}

// Undump restores a machine snapshot from the emulator's host.
func (c *Client) Undump(filename string) error {
	cmd, err := NewUndumpCommand(filename)
	if err != nil {
		return err
	}
	conn, ok := c.live()
	if !ok {
		return nil
	}
	return c.send(conn, cmd, true)
}

// GetResource requests the value of an emulator resource. The value is
// delivered as an event.
func (c *Client) GetResource(name string) error {
	cmd, err := NewResourceGetCommand(name)
	if err != nil {
		return err
	}
	conn, ok := c.live()
	if !ok {
		return nil
	}
	return c.send(conn, cmd, true)
}

// SetResource sets an emulator resource.
func (c *Client) SetResource(name string, value ResourceValue) error {
	cmd, err := NewResourceSetCommand(name, value)
	if err != nil {
		return err
	}
	conn, ok := c.live()
	if !ok {
		return nil
	}
	return c.send(conn, cmd, true)
}

// Ping sends a ping. Nothing waits for the reply.
func (c *Client) Ping() error {
	conn, ok := c.live()
	if !ok {
		return nil
	}
	return c.send(conn, NewPingCommand(), false)
}
