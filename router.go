// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// VirtualDocuments translates URIs and positions between the single
// upstream editor's host document coordinates and the per-language virtual
// documents each downstream server sees. Implementing this is out of scope
// for the bridge core (SPEC_FULL.md §1); the router only depends on this
// interface to know where an operation's document identity points.
type VirtualDocuments interface {
	// RewriteOutbound rewrites params (a request or notification bound for
	// language's downstream) so any host URI/position it carries becomes a
	// virtual one. hostURI is the document the operation concerns, or ""
	// if it concerns none. It returns the (possibly unchanged) params and
	// the corresponding virtual URI ("" if hostURI was "").
	RewriteOutbound(language, hostURI string, params json.RawMessage) (rewritten json.RawMessage, virtualURI string)

	// RewriteInbound rewrites a notification's params arriving from
	// language's downstream, translating any virtual URI/position it
	// carries back into host coordinates.
	RewriteInbound(language string, params json.RawMessage) json.RawMessage
}

// UpstreamSink receives notifications the router forwards to the single
// upstream editor, after inbound URI translation.
type UpstreamSink interface {
	SendUpstreamNotification(method string, params json.RawMessage)
}

// hostDocument is the router's latched view of one open host document:
// just enough to synthesize a didOpen for a downstream that only becomes
// Ready after the document was already open elsewhere.
type hostDocument struct {
	languageID string
	text       string
	version    int
}

// Router is the Phase 1 bridge core (SPEC_FULL.md §4.9): one lazily-spawned
// *Connection per languageId, document lifecycle latching for didOpen
// synthesis, cancellation fan-out, and shutdown orchestration.
type Router struct {
	cfg      *Config
	logger   SLogger
	docs     VirtualDocuments
	upstream UpstreamSink

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conns    map[string]*Connection
	spawning map[string]chan struct{}

	docMu    sync.Mutex
	hostDocs map[string]*hostDocument
}

var _ NotificationSink = &Router{}

// NewRouter creates a [*Router]. ctx governs every downstream connection's
// lifetime: cancelling it tears down every currently-spawned connection,
// independent of any single request's own context.
func NewRouter(ctx context.Context, cfg *Config, logger SLogger, docs VirtualDocuments, upstream UpstreamSink) *Router {
	routerCtx, cancel := context.WithCancel(ctx)
	return &Router{
		cfg:      cfg,
		logger:   logger,
		docs:     docs,
		upstream: upstream,
		ctx:      routerCtx,
		cancel:   cancel,
		conns:    make(map[string]*Connection),
		spawning: make(map[string]chan struct{}),
		hostDocs: make(map[string]*hostDocument),
	}
}

// SendRequest dispatches a request to language's downstream, spawning it on
// first use. sink receives exactly one [Result], including a REQUEST_FAILED
// result if no provider exists or could be spawned for language.
func (r *Router) SendRequest(ctx context.Context, id RequestId, language, method string, params json.RawMessage, hostURI string, sink ResponseSink) {
	conn, err := r.connectionFor(ctx, language)
	if err != nil {
		r.logger.Warn("noProvider", slog.String("method", method), slog.String("language", language), slog.Any("err", err))
		deliver(sink, Result{Err: toWireError(&NoProviderError{Method: method, Language: language})})
		return
	}
	rewritten, virtualURI := r.docs.RewriteOutbound(language, hostURI, params)
	if _, err := conn.Send(ctx, NewRequestOperation(id, method, rewritten, virtualURI, sink)); err != nil {
		deliver(sink, Result{Err: toWireError(err)})
	}
}

// SendNotification dispatches a fire-and-forget notification to language's
// downstream, spawning it on first use. A notification for a language with
// no provider is dropped (logged at Warn): notifications have no
// caller-visible failure mode.
func (r *Router) SendNotification(ctx context.Context, language, method string, params json.RawMessage, hostURI string) {
	r.trackDocumentLifecycle(language, hostURI, method, params)

	conn, err := r.connectionFor(ctx, language)
	if err != nil {
		r.logger.Warn("notificationDropped", slog.String("method", method), slog.String("language", language), slog.String("reason", "no provider"))
		return
	}
	rewritten, virtualURI := r.docs.RewriteOutbound(language, hostURI, params)
	conn.Send(ctx, NewNotificationOperation(method, rewritten, virtualURI))
}

// Cancel forwards a $/cancelRequest to every downstream connection that may
// hold id. Phase 1 only ever spawns at most one connection per language, so
// at most one will actually find and act on it; the rest silently ignore an
// unknown id.
func (r *Router) Cancel(id RequestId) {
	for _, conn := range r.snapshotConnections() {
		conn.Cancel(id)
	}
}

// HandleDownstreamNotification implements [NotificationSink]: it translates
// a downstream's notification back into host coordinates and forwards it
// upstream.
func (r *Router) HandleDownstreamNotification(conn *Connection, method string, params json.RawMessage) {
	if r.upstream == nil {
		return
	}
	rewritten := r.docs.RewriteInbound(conn.LanguageID, params)
	r.upstream.SendUpstreamNotification(method, rewritten)
}

// Shutdown tears down every currently-spawned connection (see
// [ShutdownAll]) and cancels the router's own governing context.
func (r *Router) Shutdown(ctx context.Context) error {
	defer r.cancel()
	return ShutdownAll(ctx, r.snapshotConnections(), r.cfg)
}

func (r *Router) snapshotConnections() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// connectionFor returns the single connection for language, spawning and
// initializing it on first use. Concurrent first callers for the same
// language block on the same in-flight spawn rather than racing duplicate
// processes; callers for other languages are unaffected. A connection that
// has reached Failed is replaced by a fresh spawn rather than resurrected
// (see DESIGN.md Open Question resolution).
func (r *Router) connectionFor(ctx context.Context, language string) (*Connection, error) {
	for {
		r.mu.Lock()
		if c, ok := r.conns[language]; ok && c.State() != StateFailed {
			r.mu.Unlock()
			return c, nil
		}
		if wait, ok := r.spawning[language]; ok {
			r.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		spec, ok := r.cfg.Downstreams[language]
		if !ok {
			r.mu.Unlock()
			return nil, &NoProviderError{Language: language}
		}
		done := make(chan struct{})
		r.spawning[language] = done
		r.mu.Unlock()

		conn, err := r.spawnConnection(ctx, language, spec)

		r.mu.Lock()
		delete(r.spawning, language)
		if err == nil {
			r.conns[language] = conn
		}
		r.mu.Unlock()
		close(done)

		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// spawnConnection builds the transport, constructs the [*Connection], and
// drives the downstream initialize/initialized handshake to completion
// before marking it Ready and replaying a didOpen for every host document
// of language the router has already seen opened. The transport is bound
// to the router's own context, not to ctx, so the process outlives the
// request that triggered the spawn.
func (r *Router) spawnConnection(ctx context.Context, language string, spec DownstreamSpec) (*Connection, error) {
	transport, err := NewTransportPipeline(r.cfg, r.logger).Call(r.ctx, spec)
	if err != nil {
		return nil, &TransportError{Reason: "spawn " + language, Err: err}
	}

	conn := NewConnection(r.ctx, language, transport, r.cfg, r.logger, r)

	sink := make(ResponseSink, 1)
	id := RequestId{Str: "bridge-initialize-" + conn.SpanID, IsString: true}
	ok, err := conn.Send(ctx, newInternalRequestOperation(id, "initialize", buildInitializeParams(spec), sink))
	if !ok || err != nil {
		conn.transitionFailed("initialize request failed")
		return nil, &TransportError{Reason: "initialize " + language, Err: err}
	}

	select {
	case res := <-sink:
		if res.Err != nil {
			conn.transitionFailed("initialize response error")
			return nil, &TransportError{Reason: "initialize " + language, Err: fmt.Errorf("%s", res.Err.Message)}
		}
	case <-ctx.Done():
		conn.transitionFailed("initialize cancelled")
		return nil, ctx.Err()
	}

	conn.Send(ctx, NewNotificationOperation("initialized", json.RawMessage(`{}`), ""))
	conn.MarkReady()

	r.replayOpenDocuments(conn, language)
	return conn, nil
}

func buildInitializeParams(spec DownstreamSpec) json.RawMessage {
	params := struct {
		ProcessID             int             `json:"processId"`
		RootURI               any             `json:"rootUri"`
		Capabilities          struct{}        `json:"capabilities"`
		InitializationOptions json.RawMessage `json:"initializationOptions,omitempty"`
	}{
		ProcessID:             os.Getpid(),
		InitializationOptions: spec.InitializationOptions,
	}
	b, err := json.Marshal(params)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// replayOpenDocuments synthesizes a didOpen, carrying the document's latest
// known text, for every host document already open for language at the
// point conn becomes Ready.
func (r *Router) replayOpenDocuments(conn *Connection, language string) {
	type entry struct {
		hostURI string
		doc     hostDocument
	}
	r.docMu.Lock()
	var toOpen []entry
	for hostURI, doc := range r.hostDocs {
		if doc.languageID == language {
			toOpen = append(toOpen, entry{hostURI: hostURI, doc: *doc})
		}
	}
	r.docMu.Unlock()

	for _, e := range toOpen {
		params, err := json.Marshal(didOpenParams{TextDocument: textDocumentItem{
			URI:        e.hostURI,
			LanguageID: language,
			Version:    e.doc.version,
			Text:       e.doc.text,
		}})
		if err != nil {
			continue
		}
		// Sent on conn directly: conn is not yet registered in r.conns, so
		// going through SendNotification/connectionFor would wait on the
		// very spawn that is still in progress.
		rewritten, virtualURI := r.docs.RewriteOutbound(language, e.hostURI, params)
		conn.Send(r.ctx, NewNotificationOperation("textDocument/didOpen", rewritten, virtualURI))
	}
}

// trackDocumentLifecycle latches the text/version of host documents as
// didOpen/didChange/didClose notifications pass through, independent of
// which (if any) downstream connection currently exists for language.
func (r *Router) trackDocumentLifecycle(language, hostURI, method string, params json.RawMessage) {
	if hostURI == "" {
		return
	}
	r.docMu.Lock()
	defer r.docMu.Unlock()

	switch method {
	case "textDocument/didOpen":
		var p didOpenParams
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		r.hostDocs[hostURI] = &hostDocument{languageID: language, text: p.TextDocument.Text, version: p.TextDocument.Version}
	case "textDocument/didChange":
		doc, ok := r.hostDocs[hostURI]
		if !ok {
			return
		}
		var p didChangeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		if len(p.ContentChanges) > 0 {
			doc.text = p.ContentChanges[len(p.ContentChanges)-1].Text
		}
		doc.version = p.TextDocument.Version
	case "textDocument/didClose":
		delete(r.hostDocs, hostURI)
	}
}

type textDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type versionedTextDocumentIdentifier struct {
	Version int `json:"version"`
}

type contentChangeEvent struct {
	Text string `json:"text"`
}

type didChangeParams struct {
	TextDocument   versionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []contentChangeEvent            `json:"contentChanges"`
}
