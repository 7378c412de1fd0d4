// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import "log/slog"

// readLoop is the reader task (SPEC_FULL.md §4.2): one per downstream,
// parsing framed messages from stdout, correlating responses against
// PendingRequests, and forwarding notifications to the router. It exits
// on a fatal read error/EOF or once the connection is Closed.
func (c *Connection) readLoop() {
	defer close(c.readerDone)

	for {
		msg, err := readWireMessage(c.wire)
		if err != nil {
			c.handleReadError(err)
			return
		}
		c.timers.onInboundMessage()

		switch {
		case msg.isResponse():
			c.handleResponse(msg)
		case msg.isNotification():
			c.handleDownstreamNotification(msg)
		case msg.isRequest():
			// Phase 1 never issues server-to-client requests downstream
			// expects answered beyond what initialize/shutdown already
			// cover; log and ignore anything else the downstream sends as
			// a request, rather than hanging it forever.
			c.logger.Warn("unhandledDownstreamRequest", slog.String("method", msg.Method))
		}

		if c.state.Load() == StateClosed {
			return
		}
	}
}

func (c *Connection) handleResponse(msg *wireMessage) {
	if msg.ID == nil {
		c.logger.Warn("responseMissingID")
		return
	}
	sink, ok := c.pending.Take(*msg.ID)
	if !ok {
		c.logger.Warn("unmatchedResponse", slog.Any("id", *msg.ID))
		return
	}
	// Re-evaluate the liveness timer now that one fewer request is
	// pending: it is only armed while pending > 0.
	c.timers.refreshLiveness()

	var result Result
	if msg.Error != nil {
		result.Err = msg.Error
	} else if msg.Result != nil {
		result.Value = *msg.Result
	}
	deliver(sink, result)
}

func (c *Connection) handleDownstreamNotification(msg *wireMessage) {
	var params []byte
	if msg.Params != nil {
		params = *msg.Params
	}
	if c.sink != nil {
		c.sink.HandleDownstreamNotification(c, msg.Method, params)
	}
}

// handleReadError transitions the connection based on the reader's
// terminal condition. A read error while Closing is expected (the
// downstream exited after its own `exit` handling) and is not a failure;
// any other state is an unrecoverable transport failure.
func (c *Connection) handleReadError(err error) {
	state := c.state.Load()
	c.logger.Debug("readLoopExit", slog.Any("err", err), slog.String("errClass", c.cfg.ErrClassifier.Classify(err)), slog.String("state", state.String()))

	if state == StateClosing || state == StateClosed {
		return
	}
	c.transitionFailed("downstream read failed: " + err.Error())
}
