// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import "sync"

// PendingRequests maps a [RequestId] to the [ResponseSink] of a Request
// awaiting its correlated response. An entry is inserted when the Request
// is sent, before it is enqueued, so it covers Requests still sitting in
// the OrderQueue as well as those already written to a downstream's
// stdin. It is the shared state the check-insert-check send protocol
// (SPEC_FULL.md §4.4) and the reader task (§4.2) both touch, so every
// access holds mu.
type PendingRequests struct {
	mu      sync.Mutex
	entries map[RequestId]ResponseSink
}

// NewPendingRequests creates an empty [*PendingRequests].
func NewPendingRequests() *PendingRequests {
	return &PendingRequests{entries: make(map[RequestId]ResponseSink)}
}

// Insert registers sink under id. It reports false if id is already
// pending (violates I6, id uniqueness while pending), in which case the
// existing entry is left untouched.
func (p *PendingRequests) Insert(id RequestId, sink ResponseSink) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.entries[id]; exists {
		return false
	}
	p.entries[id] = sink
	return true
}

// Take removes and returns the sink registered under id, if any.
func (p *PendingRequests) Take(id RequestId) (ResponseSink, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sink, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	return sink, ok
}

// Contains reports whether id is currently pending, without removing it.
// Used by the cancellation path, after the OrderQueue was searched first,
// to decide whether an already-written Request must be cancelled
// downstream.
func (p *PendingRequests) Contains(id RequestId) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[id]
	return ok
}

// DrainAll removes and returns every pending sink, in no particular order.
// Used when a connection transitions to Failed or Closed to fail every
// outstanding request.
func (p *PendingRequests) DrainAll() []ResponseSink {
	p.mu.Lock()
	defer p.mu.Unlock()
	sinks := make([]ResponseSink, 0, len(p.entries))
	for id, sink := range p.entries {
		sinks = append(sinks, sink)
		delete(p.entries, id)
	}
	return sinks
}

// Len reports the number of currently pending requests. Used by the
// liveness timer, which is armed only while Ready and at least one request
// is pending.
func (p *PendingRequests) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
