// SPDX-License-Identifier: GPL-3.0-or-later

// Command lspbridge multiplexes a single upstream LSP-speaking editor over
// stdio to one lazily-spawned downstream language server per languageId.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/sourcegraph/jsonrpc2"

	bridge "github.com/bassosimone/lspbridge"
)

var configPath = flag.String("config", "", "path to a JSON file describing downstream language servers")

// downstreamConfigFile is the on-disk shape of -config: a map from
// languageId to the command used to spawn that language's server.
type downstreamConfigFile struct {
	Downstreams map[string]struct {
		Command               string          `json:"command"`
		Args                  []string        `json:"args"`
		Env                   []string        `json:"env"`
		InitializationOptions json.RawMessage `json:"initializationOptions"`
	} `json:"downstreams"`
}

func loadConfig(path string) (*bridge.Config, error) {
	cfg := bridge.NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file downstreamConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	for language, spec := range file.Downstreams {
		cfg.Downstreams[language] = bridge.DownstreamSpec{
			Command:               spec.Command,
			Args:                  spec.Args,
			Env:                   spec.Env,
			InitializationOptions: spec.InitializationOptions,
		}
	}
	return cfg, nil
}

// identityVirtualDocuments performs no URI/position translation: every
// downstream sees the host editor's own URIs unchanged. Virtual document
// mapping and position translation are an external collaborator's
// responsibility (see [bridge.VirtualDocuments]); this is the placeholder
// a standalone binary needs to actually run.
type identityVirtualDocuments struct{}

func (identityVirtualDocuments) RewriteOutbound(_, hostURI string, params json.RawMessage) (json.RawMessage, string) {
	return params, hostURI
}

func (identityVirtualDocuments) RewriteInbound(_ string, params json.RawMessage) json.RawMessage {
	return params
}

// initializeResult is the bridge's own response to the upstream editor's
// `initialize` request: the bridge is itself an LSP server from the
// editor's perspective, distinct from the separate initialize/initialized
// handshake it drives against each downstream (see [bridge.Router]).
type initializeResult struct {
	Capabilities serverCapabilities `json:"capabilities"`
}

type serverCapabilities struct {
	// TextDocumentSync 2 is Incremental: the bridge forwards didChange
	// content changes through to whichever downstream owns the document.
	TextDocumentSync int `json:"textDocumentSync"`
}

// rpcMessage mirrors the raw JSON-RPC 2.0 envelope this binary reads from
// and writes to the upstream editor's stdio.
type rpcMessage struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *bridge.RequestId `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Params  *json.RawMessage  `json:"params,omitempty"`
	Result  *json.RawMessage  `json:"result,omitempty"`
	Error   *bridge.WireError `json:"error,omitempty"`
}

func rawPtr(raw json.RawMessage) *json.RawMessage {
	if raw == nil {
		return nil
	}
	return &raw
}

// stdio adapts os.Stdin/os.Stdout into the io.ReadWriteCloser the jsonrpc2
// framing codec expects. Close is a no-op: the process owns stdio and
// exits, rather than the bridge closing file descriptors out from under it.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return nil }

// stdioUpstream implements [bridge.UpstreamSink] by writing a JSON-RPC
// notification back to the upstream editor.
type stdioUpstream struct {
	write func(any) error
}

func (u *stdioUpstream) SendUpstreamNotification(method string, params json.RawMessage) {
	if err := u.write(&rpcMessage{JSONRPC: "2.0", Method: method, Params: rawPtr(params)}); err != nil {
		log.Printf("lspbridge: writing upstream notification %s: %v", method, err)
	}
}

func main() {
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("lspbridge: loading -config: %v", err)
	}
	cfg.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream := jsonrpc2.NewBufferedStream(stdio{}, jsonrpc2.VSCodeObjectCodec{})
	var writeMu sync.Mutex
	writeObject := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return stream.WriteObject(v)
	}

	router := bridge.NewRouter(ctx, cfg, logger, identityVirtualDocuments{}, &stdioUpstream{write: writeObject})

	done := make(chan struct{})
	go func() {
		defer close(done)
		serve(ctx, router, stream, writeObject, logger)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GlobalShutdownTimeout)
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdownError", slog.Any("err", err))
	}
}

// serve reads JSON-RPC messages from the upstream editor until EOF, a
// framing error, or the editor's `exit` notification, dispatching each to
// router. The bridge answers the editor's own `initialize`/`shutdown`
// handshake locally: it is itself the LSP server the editor talks to, a
// separate concern from the initialize/initialized/shutdown/exit handshake
// the router drives against each downstream in turn. Other requests are
// handled concurrently (each on its own goroutine) so one slow downstream
// can never stall responses for another language; notifications and
// cancellations are dispatched inline, preserving the order they arrived in.
func serve(ctx context.Context, router *bridge.Router, stream jsonrpc2.ObjectStream, writeObject func(any) error, logger *slog.Logger) {
	for {
		var msg rpcMessage
		if err := stream.ReadObject(&msg); err != nil {
			logger.Info("upstreamClosed", slog.Any("err", err))
			return
		}

		switch {
		case msg.Method == "initialize" && msg.ID != nil:
			handleUpstreamInitialize(*msg.ID, writeObject, logger)

		case msg.Method == "shutdown" && msg.ID != nil:
			handleUpstreamShutdown(*msg.ID, writeObject, logger)

		case msg.Method == "exit":
			logger.Info("upstreamExit")
			return

		case msg.Method == "$/cancelRequest":
			var p struct {
				ID bridge.RequestId `json:"id"`
			}
			if msg.Params != nil {
				json.Unmarshal(*msg.Params, &p)
			}
			router.Cancel(p.ID)

		case msg.Method != "" && msg.ID != nil:
			var params json.RawMessage
			if msg.Params != nil {
				params = *msg.Params
			}
			go handleRequest(ctx, router, *msg.ID, msg.Method, params, writeObject, logger)

		case msg.Method != "":
			var params json.RawMessage
			if msg.Params != nil {
				params = *msg.Params
			}
			language, hostURI := languageAndURI(msg.Params)
			router.SendNotification(ctx, language, msg.Method, params, hostURI)

		default:
			logger.Warn("unexpectedUpstreamMessage")
		}
	}
}

// handleUpstreamInitialize answers the editor's own `initialize` request
// with the bridge's capabilities. It never touches the router: downstream
// servers are spawned lazily, the first time a document of their language
// is actually opened.
func handleUpstreamInitialize(id bridge.RequestId, writeObject func(any) error, logger *slog.Logger) {
	result, err := json.Marshal(initializeResult{Capabilities: serverCapabilities{TextDocumentSync: 2}})
	resp := rpcMessage{JSONRPC: "2.0", ID: &id}
	if err != nil {
		resp.Error = &bridge.WireError{Code: bridge.CodeInternalError, Message: "bridge: failed to build initialize result"}
	} else {
		resp.Result = rawPtr(result)
	}
	if err := writeObject(&resp); err != nil {
		logger.Warn("upstreamWriteFailed", slog.String("method", "initialize"), slog.Any("err", err))
	}
}

// handleUpstreamShutdown answers the editor's own `shutdown` request with a
// null result, per LSP convention. The editor's matching `exit` notification
// (handled in serve) is what actually tears down the downstream router.
func handleUpstreamShutdown(id bridge.RequestId, writeObject func(any) error, logger *slog.Logger) {
	resp := rpcMessage{JSONRPC: "2.0", ID: &id, Result: rawPtr(json.RawMessage("null"))}
	if err := writeObject(&resp); err != nil {
		logger.Warn("upstreamWriteFailed", slog.String("method", "shutdown"), slog.Any("err", err))
	}
}

func handleRequest(ctx context.Context, router *bridge.Router, id bridge.RequestId, method string, params json.RawMessage, writeObject func(any) error, logger *slog.Logger) {
	language, hostURI := languageAndURI(&params)

	sink := make(bridge.ResponseSink, 1)
	router.SendRequest(ctx, id, language, method, params, hostURI, sink)

	var result bridge.Result
	select {
	case result = <-sink:
	case <-ctx.Done():
		result = bridge.Result{Err: &bridge.WireError{Code: bridge.CodeRequestCancelled, Message: "bridge: shutting down"}}
	}

	resp := rpcMessage{JSONRPC: "2.0", ID: &id}
	if result.Err != nil {
		resp.Error = result.Err
	} else {
		resp.Result = rawPtr(result.Value)
	}
	if err := writeObject(&resp); err != nil {
		logger.Warn("upstreamWriteFailed", slog.String("method", method), slog.Any("err", err))
	}
}

// languageAndURI extracts the document this operation concerns from the
// conventional `textDocument.uri`/`textDocument.languageId` params shape
// most LSP requests and notifications share, falling back to a file
// extension guess when languageId isn't present (true for every method
// except textDocument/didOpen). Methods with no textDocument param (e.g.
// workspace/* requests) resolve to no language and are rejected upstream
// as REQUEST_FAILED by the router's no-provider handling.
func languageAndURI(params *json.RawMessage) (language, hostURI string) {
	if params == nil || *params == nil {
		return "", ""
	}
	var p struct {
		TextDocument struct {
			URI        string `json:"uri"`
			LanguageID string `json:"languageId"`
		} `json:"textDocument"`
	}
	if err := json.Unmarshal(*params, &p); err != nil {
		return "", ""
	}
	hostURI = p.TextDocument.URI
	language = p.TextDocument.LanguageID
	if language == "" {
		language = languageFromExtension(hostURI)
	}
	return language, hostURI
}

func languageFromExtension(uri string) string {
	switch {
	case strings.HasSuffix(uri, ".go"):
		return "go"
	case strings.HasSuffix(uri, ".py"):
		return "python"
	case strings.HasSuffix(uri, ".rs"):
		return "rust"
	case strings.HasSuffix(uri, ".ts"), strings.HasSuffix(uri, ".tsx"):
		return "typescript"
	case strings.HasSuffix(uri, ".js"), strings.HasSuffix(uri, ".jsx"):
		return "javascript"
	default:
		return ""
	}
}
