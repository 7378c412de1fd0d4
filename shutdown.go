// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Shutdown drives one connection through the two-tier graceful shutdown
// sequence (SPEC_FULL.md §4.7):
//
//   - Tier 1: if the connection ever reached Ready, send the LSP `shutdown`
//     request and wait up to GlobalShutdownTimeout for its response, then
//     send `exit`. A connection still Initializing skips the handshake
//     (there is no initialized session to shut down) and only sends `exit`.
//   - Tier 2: cancel the connection's governing context and send the
//     process a graceful terminate signal ([Transport.Terminate]); if the
//     process has not exited by GlobalShutdownTimeout, it is killed
//     outright.
//
// Calling Shutdown more than once on the same Connection runs the sequence
// exactly once. A call made while the first is still running waits for it
// to finish. Only the first call returns the sequence's error; every later
// call returns nil.
func (c *Connection) Shutdown(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		err = c.shutdownOnce(ctx)
	})
	return err
}

func (c *Connection) shutdownOnce(ctx context.Context) error {
	state := c.state.Load()
	c.logger.Info("shutdownStart", slog.String("spanID", c.SpanID), slog.String("state", state.String()))

	switch state {
	case StateReady:
		c.state.TryTransition(StateReady, StateClosing)
		c.timers.disarmAll()
		c.handshake(ctx)
	case StateInitializing:
		c.state.TryTransition(StateInitializing, StateClosing)
		c.timers.disarmAll()
	default:
		// Already Closed, or Failed: no handshake is possible or useful.
		c.timers.disarmAll()
	}

	c.queue.TrySend(newInternalNotificationOperation("exit", nil))
	return c.waitOrKill(ctx)
}

// handshake sends the LSP `shutdown` request and waits for its response,
// bounded by GlobalShutdownTimeout or ctx, whichever comes first (§4.7 step
// 4). A timeout or error here is logged and otherwise ignored: shutdown
// proceeds to `exit` and the Tier 2 process teardown regardless.
func (c *Connection) handshake(ctx context.Context) {
	sink := make(ResponseSink, 1)
	id := RequestId{Str: "bridge-shutdown-" + c.SpanID, IsString: true}
	op := newInternalRequestOperation(id, "shutdown", nil, sink)

	ok, err := c.Send(ctx, op)
	if !ok || err != nil {
		c.logger.Warn("shutdownRequestFailed", slog.Any("err", err))
		return
	}

	timer := time.NewTimer(c.cfg.GlobalShutdownTimeout)
	defer timer.Stop()
	select {
	case <-sink:
	case <-timer.C:
		c.logger.Warn("shutdownResponseTimeout", slog.String("spanID", c.SpanID))
	case <-ctx.Done():
	}
}

// waitOrKill cancels the connection's governing context, sends the process a
// graceful terminate signal ([Transport.Terminate]), and waits for the
// reader and writer tasks and the process itself to exit, escalating to
// [Transport.Kill] if GlobalShutdownTimeout or ctx expires first. Requests
// still pending at that point are failed with REQUEST_FAILED before the
// connection becomes Closed.
func (c *Connection) waitOrKill(ctx context.Context) error {
	c.cancel()
	c.transport.Terminate()

	exited := make(chan struct{})
	go func() {
		<-c.writerDone
		<-c.readerDone
		c.transport.Wait()
		close(exited)
	}()

	timer := time.NewTimer(c.cfg.GlobalShutdownTimeout)
	defer timer.Stop()

	var waitErr error
	select {
	case <-exited:
	case <-timer.C:
		c.logger.Warn("shutdownGraceExpired", slog.String("spanID", c.SpanID))
		c.transport.Kill()
		<-exited
		waitErr = &TimeoutError{Timer: "global shutdown"}
	case <-ctx.Done():
		c.transport.Kill()
		<-exited
		waitErr = ctx.Err()
	}

	werr := toWireError(&StateError{Operation: "await response", State: StateClosing})
	for _, sink := range c.pending.DrainAll() {
		deliver(sink, Result{Err: werr})
	}

	c.state.Transition(StateClosed)
	c.logger.Info("shutdownDone", slog.String("spanID", c.SpanID), slog.Any("err", waitErr))
	return waitErr
}

// ShutdownAll runs [Connection.Shutdown] on every connection concurrently,
// bounded by a single GlobalShutdownTimeout deadline shared across all of
// them, and returns the first non-nil error encountered (if any), after
// every connection has finished shutting down.
func ShutdownAll(ctx context.Context, conns []*Connection, cfg *Config) error {
	deadline, cancel := context.WithTimeout(ctx, cfg.GlobalShutdownTimeout)
	defer cancel()

	// A plain errgroup.Group, not errgroup.WithContext: one connection
	// timing out must not cancel its siblings' deadline context early and
	// force a premature kill cascade. Every connection shares the same
	// deadline and reports its own error independently.
	var g errgroup.Group
	for _, c := range conns {
		g.Go(func() error {
			return c.Shutdown(deadline)
		})
	}
	return g.Wait()
}
