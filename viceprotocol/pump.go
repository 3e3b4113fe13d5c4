package viceprotocol

import (
	"errors"
	"io"
	"net"
	"time"
)

// pump is the receive loop. It returns nil when the connection was closed
// on request or the emulator hung up after Quit, and the reason otherwise.
func (c *Client) pump(conn *connection) error {
	for {
		if conn.closeRequested.Load() {
			// Commands queued before the close request still go out.
			if c.opts.SendMode == SendDeferred {
				if err := c.flush(conn); err != nil {
					c.logger.Debug("final flush failed", "error", err)
				}
			}
			return nil
		}

		if c.opts.SendMode == SendDeferred {
			if err := c.flush(conn); err != nil {
				if conn.quitRequested.Load() {
					return nil
				}
				return err
			}
		}

		// The deadline keeps the loop responsive to close requests and the
		// deferred queue while the emulator is silent.
		conn.netConn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		n, err := conn.buffer.fill(conn.netConn)
		if n > 0 {
			if derr := c.drain(conn); derr != nil {
				return derr
			}
			if herr := conn.buffer.checkHighWater(); herr != nil {
				return herr
			}
		}
		if err == nil {
			continue
		}

		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			if n == 0 {
				time.Sleep(c.opts.PollBackoff)
			}
		case conn.closeRequested.Load():
			return nil
		case conn.quitRequested.Load():
			// The emulator exits after Quit; a reset may arrive instead of EOF.
			return nil
		case errors.Is(err, io.EOF):
			return NewConnectionError("emulator closed the connection", err)
		default:
			return NewConnectionError("receive failed", err)
		}
	}
}

// drain dispatches every complete frame in the receive buffer.
func (c *Client) drain(conn *connection) error {
	for {
		f, n, ok, err := conn.buffer.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		c.dispatch(conn, f)
		conn.buffer.Consume(n)
	}
}
