// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionMarkReady(t *testing.T) {
	c, wire := newTestConnection()
	defer wire.Close()

	require.True(t, c.MarkReady())
	require.Equal(t, StateReady, c.State())
	require.False(t, c.MarkReady(), "MarkReady must not succeed twice")
}

func TestConnectionSendRequestRoundTrip(t *testing.T) {
	c, wire := newTestConnection()
	defer wire.Close()
	go c.writeLoop()
	go c.readLoop()
	defer c.cancel()

	require.True(t, c.MarkReady())

	id := RequestId{Str: "1", IsString: true}
	sink := make(ResponseSink, 1)
	ok, err := c.Send(context.Background(), NewRequestOperation(id, "textDocument/hover", json.RawMessage(`{}`), "file:///a.go", sink))
	require.True(t, ok)
	require.NoError(t, err)

	var sent *wireMessage
	select {
	case sent = <-wire.written:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for downstream write")
	}
	require.Equal(t, "textDocument/hover", sent.Method)
	require.True(t, c.pending.Contains(id))

	result := json.RawMessage(`{"contents":"docs"}`)
	wire.toRead <- newResultMessage(id, result)

	select {
	case res := <-sink:
		require.Nil(t, res.Err)
		require.JSONEq(t, string(result), string(res.Value))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response delivery")
	}
	require.False(t, c.pending.Contains(id))
}

func TestConnectionSendRequestRejectedWhenClosed(t *testing.T) {
	c, wire := newTestConnection()
	defer wire.Close()
	require.True(t, c.MarkReady())
	require.True(t, c.state.TryTransition(StateReady, StateClosing))
	require.True(t, c.state.Transition(StateClosed))

	sink := make(ResponseSink, 1)
	ok, err := c.Send(context.Background(), NewRequestOperation(RequestId{Num: 1}, "textDocument/hover", nil, "", sink))
	require.False(t, ok)
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestConnectionSendRequestBackpressure(t *testing.T) {
	c, wire := newTestConnection()
	defer wire.Close()
	// Fill the queue without a writer draining it.
	c.queue = NewOrderQueue(1)
	require.True(t, c.MarkReady())
	require.True(t, c.queue.TrySend(NewNotificationOperation("textDocument/didOpen", nil, "")))

	sink := make(ResponseSink, 1)
	ok, err := c.Send(context.Background(), NewRequestOperation(RequestId{Num: 1}, "textDocument/hover", nil, "", sink))
	require.False(t, ok)
	var bp *BackpressureError
	require.ErrorAs(t, err, &bp)
	require.False(t, c.pending.Contains(RequestId{Num: 1}), "a rolled-back insert must not remain pending")
}

func TestConnectionDocumentOpenPrecedence(t *testing.T) {
	c, wire := newTestConnection()
	defer wire.Close()
	require.True(t, c.MarkReady())

	ok, err := c.sendNotification(StateReady, &NotificationOp{Method: "textDocument/didChange", DocumentURI: "file:///a.go"})
	require.False(t, ok)
	require.NoError(t, err)

	ok, err = c.sendNotification(StateReady, &NotificationOp{Method: "textDocument/didOpen", DocumentURI: "file:///a.go"})
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, DocOpened, c.documentLifecycle("file:///a.go"))

	ok, err = c.sendNotification(StateReady, &NotificationOp{Method: "textDocument/didChange", DocumentURI: "file:///a.go"})
	require.True(t, ok)
	require.NoError(t, err)

	ok, err = c.sendNotification(StateReady, &NotificationOp{Method: "textDocument/didClose", DocumentURI: "file:///a.go"})
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, DocClosed, c.documentLifecycle("file:///a.go"))
}

func TestConnectionTransitionFailedFailsPendingAndQueued(t *testing.T) {
	c, wire := newTestConnection()
	defer wire.Close()
	require.True(t, c.MarkReady())

	pendingSink := make(ResponseSink, 1)
	require.True(t, c.pending.Insert(RequestId{Num: 1}, pendingSink))

	queuedSink := make(ResponseSink, 1)
	require.True(t, c.queue.TrySend(Operation{Request: &RequestOp{ID: RequestId{Num: 2}, Method: "m", Sink: queuedSink}}))

	require.True(t, c.transitionFailed("boom"))
	require.Equal(t, StateFailed, c.State())

	for _, sink := range []ResponseSink{pendingSink, queuedSink} {
		select {
		case res := <-sink:
			require.NotNil(t, res.Err)
			require.Equal(t, CodeInternalError, res.Err.Code)
		default:
			t.Fatal("expected a result to already be delivered")
		}
	}

	require.False(t, c.transitionFailed("boom again"), "transitionFailed must be idempotent")
}

func TestConnectionUnmatchedResponseIsIgnored(t *testing.T) {
	c, wire := newTestConnection()
	defer wire.Close()
	go c.readLoop()
	defer c.cancel()
	require.True(t, c.MarkReady())

	wire.toRead <- newResultMessage(RequestId{Num: 99}, json.RawMessage(`{}`))

	require.Never(t, func() bool {
		return c.State() == StateFailed
	}, 50*time.Millisecond, 5*time.Millisecond)
}
