package viceprotocol

// send assigns a request ID to cmd and writes it, or queues it in
// deferred mode. With wantResponse the request is tracked for heartbeat
// purposes until its reply arrives.
func (c *Client) send(conn *connection, cmd Command, wantResponse bool) error {
	_, err := c.sendID(conn, cmd, wantResponse)
	return err
}

// sendID is send returning the assigned request ID. The ID is allocated
// and registered under sendMu, so a reply can never be processed before
// its pending entry exists.
func (c *Client) sendID(conn *connection, cmd Command, wantResponse bool) (uint32, error) {
	return c.sendWith(conn, cmd, wantResponse, nil)
}

// sendWith is sendID with a hook that runs after the ID is known but
// before the frame can reach the emulator. Callers use it to register the
// request in the memory registry.
func (c *Client) sendWith(conn *connection, cmd Command, wantResponse bool, register func(id uint32)) (uint32, error) {
	conn.sendMu.Lock()
	defer conn.sendMu.Unlock()

	if conn.netConn == nil {
		return 0, ErrNotConnected
	}

	id := c.nextRequestID()
	if register != nil {
		register(id)
	}
	if wantResponse {
		conn.pending.add(id)
	}
	frame := cmd.Encode(id)

	if c.opts.SendMode == SendDeferred {
		conn.queue = append(conn.queue, frame)
		c.logger.Debug("queued", "cmd", cmd.Type, "id", id, "len", len(cmd.Body))
		return id, nil
	}

	if _, err := conn.netConn.Write(frame); err != nil {
		conn.pending.remove(id)
		return 0, NewConnectionError("failed to send "+cmd.Type.String(), err)
	}
	c.logger.Debug("sent", "cmd", cmd.Type, "id", id, "len", len(cmd.Body))
	return id, nil
}

// flush writes every queued command. The pump calls it once per
// iteration in deferred mode.
func (c *Client) flush(conn *connection) error {
	conn.sendMu.Lock()
	defer conn.sendMu.Unlock()
	for len(conn.queue) > 0 {
		frame := conn.queue[0]
		if _, err := conn.netConn.Write(frame); err != nil {
			return NewConnectionError("failed to send queued command", err)
		}
		conn.queue = conn.queue[1:]
	}
	conn.queue = nil
	return nil
}
