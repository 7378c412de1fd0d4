// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type identityDocs struct{}

func (identityDocs) RewriteOutbound(_, hostURI string, params json.RawMessage) (json.RawMessage, string) {
	return params, hostURI
}

func (identityDocs) RewriteInbound(_ string, params json.RawMessage) json.RawMessage { return params }

type capturingUpstream struct {
	method string
	params json.RawMessage
}

func (u *capturingUpstream) SendUpstreamNotification(method string, params json.RawMessage) {
	u.method = method
	u.params = params
}

func TestRouterSendRequestNoProvider(t *testing.T) {
	cfg := NewConfig()
	r := NewRouter(context.Background(), cfg, DefaultSLogger(), identityDocs{}, nil)

	sink := make(ResponseSink, 1)
	r.SendRequest(context.Background(), RequestId{Num: 1}, "python", "textDocument/hover", json.RawMessage(`{}`), "file:///a.py", sink)

	res := <-sink
	require.NotNil(t, res.Err)
	require.Equal(t, CodeRequestFailed, res.Err.Code)
}

func TestRouterCancelFanOut(t *testing.T) {
	cfg := NewConfig()
	r := NewRouter(context.Background(), cfg, DefaultSLogger(), identityDocs{}, nil)

	c, wire := newTestConnection()
	defer wire.Close()
	require.True(t, c.MarkReady())

	id := RequestId{Num: 9}
	sink := make(ResponseSink, 1)
	require.True(t, c.queue.TrySend(Operation{Request: &RequestOp{ID: id, Method: "textDocument/hover", Sink: sink}}))

	r.mu.Lock()
	r.conns["go"] = c
	r.mu.Unlock()

	r.Cancel(id)

	select {
	case res := <-sink:
		require.NotNil(t, res.Err)
		require.Equal(t, CodeRequestCancelled, res.Err.Code)
	default:
		t.Fatal("expected cancellation to be delivered")
	}
}

func TestRouterHandleDownstreamNotificationForwardsUpstream(t *testing.T) {
	upstream := &capturingUpstream{}
	cfg := NewConfig()
	r := NewRouter(context.Background(), cfg, DefaultSLogger(), identityDocs{}, upstream)

	c, wire := newTestConnection()
	defer wire.Close()

	r.HandleDownstreamNotification(c, "window/logMessage", json.RawMessage(`{"message":"hi"}`))
	require.Equal(t, "window/logMessage", upstream.method)
	require.JSONEq(t, `{"message":"hi"}`, string(upstream.params))
}

func TestRouterTrackDocumentLifecycle(t *testing.T) {
	cfg := NewConfig()
	r := NewRouter(context.Background(), cfg, DefaultSLogger(), identityDocs{}, nil)

	openParams, err := json.Marshal(didOpenParams{TextDocument: textDocumentItem{
		URI: "file:///a.go", LanguageID: "go", Version: 1, Text: "package main\n",
	}})
	require.NoError(t, err)
	r.trackDocumentLifecycle("go", "file:///a.go", "textDocument/didOpen", openParams)

	r.docMu.Lock()
	doc, ok := r.hostDocs["file:///a.go"]
	r.docMu.Unlock()
	require.True(t, ok)
	require.Equal(t, "package main\n", doc.text)

	changeParams, err := json.Marshal(didChangeParams{
		TextDocument:   versionedTextDocumentIdentifier{Version: 2},
		ContentChanges: []contentChangeEvent{{Text: "package main\n\nfunc main() {}\n"}},
	})
	require.NoError(t, err)
	r.trackDocumentLifecycle("go", "file:///a.go", "textDocument/didChange", changeParams)

	r.docMu.Lock()
	doc = r.hostDocs["file:///a.go"]
	r.docMu.Unlock()
	require.Equal(t, 2, doc.version)
	require.Contains(t, doc.text, "func main")

	r.trackDocumentLifecycle("go", "file:///a.go", "textDocument/didClose", nil)
	r.docMu.Lock()
	_, ok = r.hostDocs["file:///a.go"]
	r.docMu.Unlock()
	require.False(t, ok)
}
