// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"sync"
	"time"
)

// connectionTimers owns the initialization and liveness timers of the
// timeout hierarchy described in SPEC_FULL.md §4.6. The global-shutdown
// timer lives in shutdown.go, since it only runs during the shutdown
// sequence rather than for a connection's whole lifetime. No writer-idle
// timer exists: [Config.WriterIdleTimeout] is not read by this package.
//
// Precedence: entering Closing disarms initialization and liveness
// unconditionally, since a connection already tearing down should never be
// failed by a timer racing the teardown.
type connectionTimers struct {
	c *Connection

	mu       sync.Mutex
	init     *time.Timer
	liveness *time.Timer
}

func newConnectionTimers(c *Connection) *connectionTimers {
	return &connectionTimers{c: c}
}

// armInitialization starts the initialization timeout. Called once, at
// connection construction.
func (t *connectionTimers) armInitialization() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init = time.AfterFunc(t.c.cfg.InitializationTimeout, func() {
		if t.c.state.Load() == StateInitializing {
			t.c.transitionFailed("initialization timeout")
		}
	})
}

// disarmInitialization stops the initialization timer. Called once the
// connection reaches Ready (or is torn down before ever reaching it).
func (t *connectionTimers) disarmInitialization() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.init != nil {
		t.init.Stop()
	}
}

// refreshLiveness (re)arms the liveness timer if the connection is Ready
// and has at least one pending request, and disarms it otherwise. Called
// after MarkReady, after every PendingRequests mutation, and after every
// inbound downstream message.
func (t *connectionTimers) refreshLiveness() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.liveness != nil {
		t.liveness.Stop()
		t.liveness = nil
	}
	if t.c.state.Load() != StateReady || t.c.pending.Len() == 0 {
		return
	}
	t.liveness = time.AfterFunc(t.c.cfg.LivenessTimeout, func() {
		if t.c.state.Load() == StateReady {
			t.c.transitionFailed("liveness timeout")
		}
	})
}

// onInboundMessage resets the liveness timer's deadline after a fully
// parsed downstream message, per the Open Question resolution in
// DESIGN.md (reset granularity is per-message, not per-byte).
func (t *connectionTimers) onInboundMessage() {
	t.refreshLiveness()
}

// disarmAll stops every timer owned here. Called when the connection
// enters Closing or Failed.
func (t *connectionTimers) disarmAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.init != nil {
		t.init.Stop()
	}
	if t.liveness != nil {
		t.liveness.Stop()
		t.liveness = nil
	}
}
