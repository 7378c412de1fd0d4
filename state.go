// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"fmt"
	"sync/atomic"
)

// ConnectionState is the lifecycle state of one downstream connection.
//
// The only legal transitions are Initializing->Ready, Initializing->Closing,
// Initializing->Failed, Ready->Closing, Ready->Failed, Closing->Closed,
// Closing->Failed. Closed and Failed are terminal: nothing transitions out
// of either. A connection that fails while Failed is never resurrected in
// place; the router spawns a fresh [*Connection] to replace it.
type ConnectionState int32

const (
	StateInitializing ConnectionState = iota
	StateReady
	StateClosing
	StateClosed
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int32(s))
	}
}

// canTransition reports whether from->to is one of the legal transitions
// above.
func canTransition(from, to ConnectionState) bool {
	switch from {
	case StateInitializing:
		return to == StateReady || to == StateClosing || to == StateFailed
	case StateReady:
		return to == StateClosing || to == StateFailed
	case StateClosing:
		return to == StateClosed || to == StateFailed
	case StateClosed, StateFailed:
		return false
	default:
		return false
	}
}

// connectionStateVar is an atomically-updated [ConnectionState] that only
// ever moves along the DAG above.
type connectionStateVar struct {
	v atomic.Int32
}

func newConnectionStateVar(initial ConnectionState) *connectionStateVar {
	var v connectionStateVar
	v.v.Store(int32(initial))
	return &v
}

// Load returns the current state.
func (v *connectionStateVar) Load() ConnectionState {
	return ConnectionState(v.v.Load())
}

// TryTransition attempts to move from its current value to to, succeeding
// only if the current value equals from and from->to is legal. It makes a
// single compare-and-swap attempt and fails if the current state is not
// from.
func (v *connectionStateVar) TryTransition(from, to ConnectionState) bool {
	if !canTransition(from, to) {
		return false
	}
	return v.v.CompareAndSwap(int32(from), int32(to))
}

// Transition moves unconditionally to to from whatever the current state is,
// as long as that transition is legal; it reports whether it succeeded. This
// is used by code paths (e.g. a fatal read error) that want to force a
// transition regardless of the precise current state, without racing a
// concurrent legal transition away.
func (v *connectionStateVar) Transition(to ConnectionState) bool {
	for {
		cur := v.Load()
		if !canTransition(cur, to) {
			return false
		}
		if v.v.CompareAndSwap(int32(cur), int32(to)) {
			return true
		}
	}
}
