// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"encoding/json"
	"log/slog"
)

// Cancel implements $/cancelRequest semantics for one downstream connection
// (SPEC_FULL.md §4.8). Exactly one of two things happens:
//
//   - id was never written to the downstream (still sitting in the
//     OrderQueue): it is pulled out of the queue and failed locally with
//     [CancellationError], without ever reaching the process.
//   - id was already written and is awaiting a response (present in
//     PendingRequests): the bridge forwards $/cancelRequest downstream and
//     leaves the pending entry untouched, since the real response (an error
//     response, by LSP convention, but still a response) is still coming
//     and must still be delivered to the original sink.
//
// Cancel never fails a request that is unknown to this connection: a
// cancellation racing an already-delivered response is a silent no-op.
func (c *Connection) Cancel(id RequestId) {
	if c.cancelQueued(id) {
		return
	}
	if c.pending.Contains(id) {
		c.forwardCancel(id)
	}
}

// cancelQueued removes id from the OrderQueue if it is still waiting to be
// written, failing its sink with [CancellationError]. It reports whether it
// found and removed a matching entry. The removal happens under the
// OrderQueue's own lock (see [OrderQueue.RemoveRequest]), so it neither
// races the writer's concurrent consumption nor disturbs the FIFO order of
// the Operations left behind (I2/P2) the way a drain-and-resend would.
func (c *Connection) cancelQueued(id RequestId) bool {
	found, ok := c.queue.RemoveRequest(id)
	if !ok {
		return false
	}

	c.pending.Take(id)
	c.timers.refreshLiveness()
	c.logger.Info("requestCancelled", slog.Any("id", id), slog.String("method", found.Method), slog.String("phase", "queued"))
	deliver(found.Sink, Result{Err: toWireError(&CancellationError{ID: id})})
	return true
}

// forwardCancel sends $/cancelRequest downstream for an already-written
// request. It is a best-effort notification: if the queue is backed up or
// closed, the original request still resolves normally (or times out under
// the ordinary liveness timer) and nothing is lost besides the
// cancellation itself.
func (c *Connection) forwardCancel(id RequestId) {
	params, err := cancelParams(id)
	if err != nil {
		c.logger.Warn("cancelEncodeFailed", slog.Any("id", id), slog.Any("err", err))
		return
	}
	if !c.queue.TrySend(NewNotificationOperation("$/cancelRequest", params, "")) {
		c.logger.Warn("cancelDropped", slog.Any("id", id), slog.String("reason", "queue full or closed"))
		return
	}
	c.logger.Info("requestCancelled", slog.Any("id", id), slog.String("phase", "forwarded"))
}

func cancelParams(id RequestId) (json.RawMessage, error) {
	return json.Marshal(struct {
		ID RequestId `json:"id"`
	}{ID: id})
}
