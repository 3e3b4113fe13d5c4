package viceprotocol

// handler applies one decoded reply to the client's collaborators.
type handler func(c *Client, conn *connection, f Frame) error

var handlers = map[CommandType]handler{
	CmdRegistersGet:       (*Client).handleRegisters,
	CmdRegistersAvailable: (*Client).handleRegistersAvailable,
	CmdMemGet:             (*Client).handleMemGet,
	CmdCheckpointGet:      (*Client).handleCheckpoint,
	CmdCheckpointList:     (*Client).handleCheckpointList,
	CmdStopped:            (*Client).handleStopped,
	CmdJam:                (*Client).handleStopped,
	CmdResumed:            (*Client).handleResumed,
	CmdDisplayGet:         (*Client).handleDisplay,
	CmdBanksAvailable:     (*Client).handleBanks,
	CmdResourceGet:        (*Client).handleResource,
	CmdUndump:             (*Client).handleUndump,
	CmdStep:               (*Client).handleAck,
	CmdAutoStart:          (*Client).handleAck,
	CmdPing:               (*Client).handleAck,
}

// dispatch routes one frame. A reply always clears its pending entry,
// even when it carries an error or an unknown type.
func (c *Client) dispatch(conn *connection, f Frame) {
	if !f.IsEvent() {
		conn.sendMu.Lock()
		conn.pending.remove(f.RequestID)
		conn.sendMu.Unlock()
	}

	c.logger.Debug("recv", "type", f.Type, "id", f.RequestID, "len", len(f.Body), "error", uint8(f.Error))

	if err := f.Err(); err != nil {
		switch f.Type {
		case CmdMemGet:
			conn.memory.takeMemory(f.RequestID)
		case CmdRegistersGet:
			conn.memory.takeRegisters(f.RequestID)
		}
		c.logger.Warn("emulator reported an error", "error", err)
		c.logf("VICE error: %v", err)
		return
	}

	h, ok := handlers[f.Type]
	if !ok {
		c.logger.Debug("unhandled response", "type", uint8(f.Type), "id", f.RequestID)
		return
	}
	if err := h(c, conn, f); err != nil {
		c.logger.Warn("handling response failed", "type", f.Type, "id", f.RequestID, "error", err)
		c.logf("VICE %s reply: %v", f.Type, err)
	}
}

func (c *Client) handleRegisters(conn *connection, f Frame) error {
	space := conn.memory.takeRegisters(f.RequestID)
	resp, err := DecodeRegisters(f.Body)
	if err != nil {
		return err
	}
	if c.cpu == nil {
		return nil
	}
	for _, r := range resp.Registers {
		c.cpu.SetRegister(space, r.ID, r.Value)
	}
	return nil
}

func (c *Client) handleRegistersAvailable(conn *connection, f Frame) error {
	regs, err := DecodeRegistersAvailable(f.Body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.registerNames = regs
	c.mu.Unlock()
	for _, r := range regs {
		c.logf("Register $%02X %s (%d bits)", uint8(r.ID), r.Name, r.Bits)
	}
	return nil
}

func (c *Client) handleMemGet(conn *connection, f Frame) error {
	req, ok := conn.memory.takeMemory(f.RequestID)
	if !ok {
		c.logger.Warn("memory reply for unknown request", "id", f.RequestID)
		c.logf("VICE memory reply for unknown request $%X", f.RequestID)
		return nil
	}
	data, err := DecodeMemGet(f.Body)
	if err != nil {
		return err
	}
	if c.cpu == nil {
		return nil
	}
	addr := req.start
	for _, b := range data {
		c.cpu.SetByte(req.space, addr, b)
		addr++
	}
	c.logger.Debug("memory updated", "start", req.start, "len", len(data), "space", req.space)
	return nil
}

func (c *Client) handleCheckpoint(conn *connection, f Frame) error {
	cp, err := DecodeCheckpoint(f.Body)
	if err != nil {
		return err
	}
	if c.breakpoints != nil {
		c.breakpoints.AddBreakpoint(cp.Checkpoint())
		if cp.Hit {
			c.breakpoints.SetBreakpointHit(cp.Number)
		}
	}
	if cp.Hit {
		c.emit(Event{Type: f.Type, RequestID: f.RequestID, PC: cp.Start, Checkpoint: cp})
	}
	return nil
}

func (c *Client) handleCheckpointList(conn *connection, f Frame) error {
	n, err := DecodeCheckpointList(f.Body)
	if err != nil {
		return err
	}
	c.logf("VICE reports %d checkpoints", n)
	return nil
}

// handleStopped marks the session stopped and refreshes everything a
// debugger shows: both halves of main memory, the checkpoint list and
// the display.
func (c *Client) handleStopped(conn *connection, f Frame) error {
	pc, err := DecodeProgramCounter(f.Type, f.Body)
	if err != nil {
		return err
	}
	if c.cpu != nil {
		c.cpu.SetRegister(MemMain, RegPC, pc)
	}
	conn.stopped.Store(true)
	c.logger.Info("stopped", "type", f.Type, "pc", pc)

	for _, half := range [...]struct{ start, end uint16 }{{0x0000, 0x7FFF}, {0x8000, 0xFFFF}} {
		if err := c.requestMemory(conn, half.start, half.end, MemMain); err != nil {
			return err
		}
	}
	if err := c.refreshCheckpoints(conn); err != nil {
		return err
	}
	if err := c.send(conn, NewDisplayGetCommand(true, DisplayIndexed8), false); err != nil {
		return err
	}

	c.emit(Event{Type: f.Type, RequestID: f.RequestID, PC: pc})
	return nil
}

func (c *Client) handleResumed(conn *connection, f Frame) error {
	pc, err := DecodeProgramCounter(f.Type, f.Body)
	if err != nil {
		return err
	}
	if c.cpu != nil {
		c.cpu.SetRegister(MemMain, RegPC, pc)
	}
	conn.stopped.Store(false)
	c.logger.Info("resumed", "pc", pc)
	c.emit(Event{Type: f.Type, RequestID: f.RequestID, PC: pc})
	return nil
}

func (c *Client) handleDisplay(conn *connection, f Frame) error {
	frame, err := DecodeDisplay(f.Body)
	if err != nil {
		return err
	}
	if c.screen != nil {
		// The body is reused by the receive buffer once dispatch returns.
		frame.Image = append([]byte(nil), frame.Image...)
		c.screen.RefreshScreen(frame)
	}
	return nil
}

func (c *Client) handleBanks(conn *connection, f Frame) error {
	banks, err := DecodeBanksAvailable(f.Body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.banks = banks
	c.mu.Unlock()
	for _, b := range banks {
		c.logf("Bank %d %s", b.ID, b.Name)
	}
	return nil
}

func (c *Client) handleResource(conn *connection, f Frame) error {
	v, err := DecodeResource(f.Body)
	if err != nil {
		return err
	}
	if v.Type == ResourceInt {
		c.logf("Resource = %d", v.Int)
	} else {
		c.logf("Resource = %q", v.String)
	}
	c.emit(Event{Type: f.Type, RequestID: f.RequestID, Resource: v})
	return nil
}

func (c *Client) handleUndump(conn *connection, f Frame) error {
	pc, err := DecodeProgramCounter(f.Type, f.Body)
	if err != nil {
		return err
	}
	if c.cpu != nil {
		c.cpu.SetRegister(MemMain, RegPC, pc)
	}
	c.emit(Event{Type: f.Type, RequestID: f.RequestID, PC: pc})
	return nil
}

func (c *Client) handleAck(conn *connection, f Frame) error {
	c.logger.Debug("acknowledged", "type", f.Type, "id", f.RequestID)
	return nil
}
