// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// NotificationSink receives notifications forwarded from a downstream
// server (window/logMessage, window/showMessage, $/progress,
// publishDiagnostics, and any other downstream-originated notification).
// Implemented by the [Router], which translates virtual URIs back to host
// coordinates before forwarding upstream.
type NotificationSink interface {
	HandleDownstreamNotification(conn *Connection, method string, params json.RawMessage)
}

// Connection is one downstream server's bridging engine: its process
// transport, reader task, writer actor, state machine, pending-request
// store, and per-document lifecycle map.
type Connection struct {
	SpanID     string
	LanguageID string

	transport *Transport
	wire      wireStream

	cfg    *Config
	logger SLogger
	sink   NotificationSink

	state   *connectionStateVar
	pending *PendingRequests
	queue   *OrderQueue

	docMu    sync.Mutex
	docState map[string]DocumentLifecycleState

	ctx    context.Context
	cancel context.CancelFunc

	readerDone chan struct{}
	writerDone chan struct{}

	timers *connectionTimers

	closeOnce sync.Once
}

// wireStream is the subset of jsonrpc2.ObjectStream the reader/writer use;
// named here so tests can substitute an in-memory double.
type wireStream interface {
	ReadObject(v any) error
	WriteObject(v any) error
	Close() error
}

// NewConnection constructs a [*Connection] bound to an already-spawned
// transport and starts its reader task and writer actor. The caller
// retains the governing ctx: cancelling it (or letting its deadline pass)
// is propagated to the downstream process via [BindLifecycleFunc], which
// must already be part of the pipeline that produced transport.
func NewConnection(ctx context.Context, languageID string, transport *Transport, cfg *Config, logger SLogger, sink NotificationSink) *Connection {
	connCtx, cancel := context.WithCancel(ctx)
	c := &Connection{
		SpanID:     NewSpanID(),
		LanguageID: languageID,
		transport:  transport,
		wire:       newWireStream(transportReadWriteCloser{transport}),
		cfg:        cfg,
		logger:     logger,
		sink:       sink,
		state:      newConnectionStateVar(StateInitializing),
		pending:    NewPendingRequests(),
		queue:      NewOrderQueue(cfg.OrderQueueCapacity),
		docState:   make(map[string]DocumentLifecycleState),
		ctx:        connCtx,
		cancel:     cancel,
		readerDone: make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	c.timers = newConnectionTimers(c)

	c.logger.Info("connectionStart", slog.String("spanID", c.SpanID), slog.String("language", languageID), slog.Int("pid", transport.Pid()))

	c.timers.armInitialization()
	go c.readLoop()
	go c.writeLoop()

	return c
}

// transportReadWriteCloser adapts a [*Transport]'s separate stdin/stdout
// into the single [io.ReadWriteCloser] the jsonrpc2 framing codec expects.
type transportReadWriteCloser struct {
	t *Transport
}

func (t transportReadWriteCloser) Read(p []byte) (int, error)  { return t.t.Stdout.Read(p) }
func (t transportReadWriteCloser) Write(p []byte) (int, error) { return t.t.Stdin.Write(p) }
func (t transportReadWriteCloser) Close() error                { return t.t.Close() }

// State returns the connection's current [ConnectionState].
func (c *Connection) State() ConnectionState {
	return c.state.Load()
}

// MarkReady transitions Initializing->Ready once the initialize/initialized
// handshake with the downstream completes. It disarms the initialization
// timer and arms the liveness timer if there are already pending requests.
func (c *Connection) MarkReady() bool {
	if !c.state.TryTransition(StateInitializing, StateReady) {
		return false
	}
	c.timers.disarmInitialization()
	c.timers.refreshLiveness()
	c.logger.Info("connectionReady", slog.String("spanID", c.SpanID))
	return true
}

// Send is the only enqueue path for outbound operations (SPEC_FULL.md
// §4.4). It reports ack=true if the operation was queued (Notifications)
// or registered as pending and queued (Requests); for a Request it reports
// an error that is one of [BackpressureError], [StateError], or
// [InternalError] (duplicate request id) when the operation could not be
// queued. A Notification that is dropped due to
// backpressure or connection state is logged at Warn and never returns an
// error: notifications have no caller-visible failure mode.
func (c *Connection) Send(ctx context.Context, op Operation) (bool, error) {
	state := c.state.Load()

	if op.IsRequest() {
		return c.sendRequest(state, op.Request)
	}
	return c.sendNotification(state, op.Notification)
}

func (c *Connection) sendNotification(state ConnectionState, n *NotificationOp) (bool, error) {
	if state == StateClosed || state == StateFailed || state == StateClosing {
		c.logger.Warn("notificationDropped", slog.String("method", n.Method), slog.String("reason", "connection not ready"), slog.String("state", state.String()))
		return false, nil
	}
	if n.DocumentURI != "" && !c.canSendDocumentNotification(n.Method, n.DocumentURI) {
		c.logger.Warn("notificationDropped", slog.String("method", n.Method), slog.String("reason", "didOpen precedence"), slog.String("documentURI", n.DocumentURI))
		return false, nil
	}
	if !c.queue.TrySend(Operation{Notification: n}) {
		c.logger.Warn("notificationDropped", slog.String("method", n.Method), slog.String("reason", "queue full or closed"))
		return false, nil
	}
	c.latchDocumentNotification(n.Method, n.DocumentURI)
	return true, nil
}

// sendRequest applies the check-insert-check race-prevention contract with
// the reader task: insert into PendingRequests before re-checking state, so
// a response that races in after enqueue is never lost.
//
// The authoritative gating table (SPEC_FULL.md §4.5) rejects a Request
// outright in every state but Ready: Initializing ("downstream server
// initializing"), Closing ("connection closing"), Closed/Failed ("downstream
// server failed"). The bridge's own `initialize`/`shutdown` handshake
// Requests are marked Internal and exempt from the Initializing/Closing
// branches, since they are what drives those very transitions.
func (c *Connection) sendRequest(state ConnectionState, r *RequestOp) (bool, error) {
	if state == StateClosed || state == StateFailed {
		return false, &StateError{Operation: "send request", State: state}
	}
	if !r.Internal && (state == StateInitializing || state == StateClosing) {
		return false, &StateError{Operation: "send request", State: state}
	}
	if !c.pending.Insert(r.ID, r.Sink) {
		return false, &InternalError{Reason: "duplicate request id"}
	}
	// Re-check state after insertion: if the connection closed between our
	// first read of state and the insert, we must not leave a dangling
	// pending entry nobody will ever fulfill.
	if cur := c.state.Load(); cur == StateClosed || cur == StateFailed {
		c.pending.Take(r.ID)
		return false, &StateError{Operation: "send request", State: cur}
	}
	if !c.queue.TrySend(Operation{Request: r}) {
		c.pending.Take(r.ID)
		return false, &BackpressureError{Method: r.Method}
	}
	c.timers.refreshLiveness()
	return true, nil
}

// canSendDocumentNotification enforces the per-document lifecycle gating
// table (SPEC_FULL.md §4.5): a non-didOpen notification for a document this
// connection has never opened is suppressed rather than forwarded out of
// order, and a didOpen for a document already Opened is suppressed rather
// than rewritten (the downstream already has it open).
func (c *Connection) canSendDocumentNotification(method, documentURI string) bool {
	c.docMu.Lock()
	defer c.docMu.Unlock()
	opened := c.docState[documentURI] == DocOpened
	if method == "textDocument/didOpen" {
		if opened {
			c.logger.Warn("didOpenAlreadyOpened", slog.String("documentURI", documentURI))
			return false
		}
		return true
	}
	return opened
}

func (c *Connection) latchDocumentNotification(method, documentURI string) {
	if documentURI == "" {
		return
	}
	c.docMu.Lock()
	defer c.docMu.Unlock()
	switch method {
	case "textDocument/didOpen":
		c.docState[documentURI] = DocOpened
	case "textDocument/didClose":
		delete(c.docState, documentURI)
	}
}

// documentLifecycle returns the current [DocumentLifecycleState] for
// documentURI on this connection.
func (c *Connection) documentLifecycle(documentURI string) DocumentLifecycleState {
	c.docMu.Lock()
	defer c.docMu.Unlock()
	return c.docState[documentURI]
}

// failAllPending drains PendingRequests and the OrderQueue, delivering
// InternalError to every Request's sink. Notifications in the queue are
// discarded silently (they have no caller to notify).
func (c *Connection) failAllPending(reason string) {
	werr := toWireError(&InternalError{Reason: reason})
	for _, sink := range c.pending.DrainAll() {
		deliver(sink, Result{Err: werr})
	}
	for _, op := range c.queue.Drain() {
		if op.Request != nil {
			deliver(op.Request.Sink, Result{Err: werr})
		}
	}
}

// deliver sends result on sink without blocking forever: sinks are created
// with capacity 1 by convention (see [ResponseSink]), so this never blocks
// in practice, but we guard against a misbehaving caller anyway.
func deliver(sink ResponseSink, result Result) {
	select {
	case sink <- result:
	default:
	}
}

// transitionFailed forces the connection into StateFailed (from
// Initializing or Ready only; a no-op from any other state), fails every
// pending and queued Request, and closes the OrderQueue so further Send
// calls are rejected immediately. Callers: the initialization and liveness
// timers, the reader task on a fatal read error, and the writer actor on a
// fatal write error.
func (c *Connection) transitionFailed(reason string) bool {
	if !c.state.TryTransition(StateInitializing, StateFailed) && !c.state.TryTransition(StateReady, StateFailed) {
		return false
	}
	c.logger.Error("connectionFailed", slog.String("spanID", c.SpanID), slog.String("reason", reason))
	c.timers.disarmAll()
	c.queue.Close()
	c.failAllPending(reason)
	return true
}
