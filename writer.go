// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"encoding/json"
	"log/slog"
)

// writeLoop is the writer actor (SPEC_FULL.md §4.3): the sole writer of a
// downstream's stdin, consuming the OrderQueue strictly in FIFO order. It
// exits when the queue is closed and drained, or on a fatal write error. A
// panic inside the loop is recovered and fails the connection.
func (c *Connection) writeLoop() {
	defer close(c.writerDone)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("writerPanic", slog.Any("panic", r))
			c.transitionFailed("writer panic")
		}
	}()

	for {
		op, ok, cancelled := c.queue.Next(c.ctx)
		if cancelled {
			// Drain whatever is already queued before exiting so a Closing
			// connection's already-accepted operations get a definitive
			// failure rather than silently vanishing.
			c.drainRemaining()
			return
		}
		if !ok {
			return
		}
		if !c.writeOperation(op) {
			return
		}
	}
}

// writeOperation writes a single queued operation to stdin, re-checking
// ConnectionState at write time rather than trusting the state observed
// when the operation was enqueued: a Request or Notification can sit in the
// OrderQueue across a Ready->Closing transition (e.g. the shutdown
// handshake's window), and §4.5's gating table is authoritative at write
// time, not enqueue time. It returns false if the write failed fatally,
// signaling writeLoop to stop.
func (c *Connection) writeOperation(op Operation) bool {
	state := c.state.Load()

	switch {
	case op.Request != nil:
		return c.writeRequestOperation(op.Request, state)
	case op.Notification != nil:
		return c.writeNotificationOperation(op.Notification, state)
	default:
		return true
	}
}

// writeRequestOperation writes r if it is Internal (the bridge's own
// initialize/shutdown handshake) or state == Ready; otherwise it fails r's
// sink with the state-specific REQUEST_FAILED message and drops it without
// writing (§4.3, S2).
func (c *Connection) writeRequestOperation(r *RequestOp, state ConnectionState) bool {
	if !r.Internal && state != StateReady {
		c.pending.Take(r.ID)
		c.logger.Warn("requestDroppedAtWrite", slog.String("method", r.Method), slog.String("state", state.String()))
		deliver(r.Sink, Result{Err: toWireError(&StateError{Operation: "write request", State: state})})
		return true
	}

	msg := newRequestMessage(r.ID, r.Method, json.RawMessage(r.Params))
	if err := writeWireMessage(c.wire, msg); err != nil {
		c.handleWriteError(Operation{Request: r}, err)
		return false
	}
	return true
}

// writeNotificationOperation writes n if it is Internal (the bridge's own
// `exit`) or state is Initializing/Ready; otherwise it is dropped silently
// (logged at Warn only if state is Failed), matching the Notification row of
// §4.5's gating table.
func (c *Connection) writeNotificationOperation(n *NotificationOp, state ConnectionState) bool {
	if !n.Internal && state != StateInitializing && state != StateReady {
		if state == StateFailed {
			c.logger.Warn("notificationDroppedAtWrite", slog.String("method", n.Method), slog.String("state", state.String()))
		}
		return true
	}

	msg := newNotificationMessage(n.Method, json.RawMessage(n.Params))
	if err := writeWireMessage(c.wire, msg); err != nil {
		c.handleWriteError(Operation{Notification: n}, err)
		return false
	}
	return true
}

func (c *Connection) handleWriteError(op Operation, err error) {
	state := c.state.Load()
	c.logger.Debug("writeFailed", slog.Any("err", err), slog.String("errClass", c.cfg.ErrClassifier.Classify(err)), slog.String("state", state.String()))

	if op.Request != nil {
		c.pending.Take(op.Request.ID)
		deliver(op.Request.Sink, Result{Err: toWireError(&InternalError{Reason: "write failed", Err: err})})
	}

	if state == StateClosing || state == StateClosed {
		return
	}
	c.transitionFailed("downstream write failed: " + err.Error())
}

// drainRemaining fails every Request left in the queue once the writer is
// shutting down without a fatal error (the governing context was
// cancelled, as part of graceful shutdown): there is no further opportunity
// to write them. Per §4.7's pending-operation-disposal table, this is
// REQUEST_FAILED ("connection closing"), not INTERNAL_ERROR: these requests
// were never written, not victims of a writer failure.
func (c *Connection) drainRemaining() {
	werr := toWireError(&StateError{Operation: "write request", State: StateClosing})
	for _, op := range c.queue.Drain() {
		if op.Request != nil {
			c.pending.Take(op.Request.ID)
			deliver(op.Request.Sink, Result{Err: werr})
		}
	}
}
