// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import "encoding/json"

// Result is what a downstream eventually delivers for a Request: either a
// success value or an error, never both. It is delivered on a Request's
// response_sink exactly once.
type Result struct {
	Value json.RawMessage
	Err   *WireError
}

// ResponseSink is the single-shot delivery channel a caller owns and reads
// exactly one [Result] from. It must be buffered with capacity 1 so the
// writer/reader never blocks delivering into it.
type ResponseSink chan Result

// NotificationOp is the Notification variant of [Operation]: a fire-and-forget
// outbound message with no response.
type NotificationOp struct {
	Method string
	Params json.RawMessage

	// DocumentURI is the virtual document URI this notification concerns, if
	// any. Empty for notifications with no single document subject (e.g.
	// workspace/didChangeConfiguration).
	DocumentURI string

	// Internal marks a bridge-issued handshake notification (`exit`) that
	// must reach the writer regardless of the normal per-state gating
	// table (SPEC_FULL.md §4.5): the handshake itself drives the Closing
	// transition these ordinary notifications are gated against.
	Internal bool
}

// RequestOp is the Request variant of [Operation]: an outbound message that
// expects exactly one correlated response.
type RequestOp struct {
	ID     RequestId
	Method string
	Params json.RawMessage

	DocumentURI string

	// Sink receives the eventual [Result]. Owned by the caller of [Connection.Send].
	Sink ResponseSink

	// Internal marks a bridge-issued handshake request (`initialize`,
	// `shutdown`) that must be written regardless of the Ready-only
	// gating ordinary client Requests are subject to: these are the
	// requests that move the connection between states, not requests
	// subject to the states they move between.
	Internal bool
}

// Operation is a tagged value representing one outbound LSP message handed
// to a [Connection]'s OrderQueue. Exactly one of Notification or Request is
// non-nil.
type Operation struct {
	Notification *NotificationOp
	Request      *RequestOp
}

// NewNotificationOperation builds a Notification [Operation].
func NewNotificationOperation(method string, params json.RawMessage, documentURI string) Operation {
	return Operation{Notification: &NotificationOp{Method: method, Params: params, DocumentURI: documentURI}}
}

// NewRequestOperation builds a Request [Operation]. sink must be buffered
// (capacity >= 1).
func NewRequestOperation(id RequestId, method string, params json.RawMessage, documentURI string, sink ResponseSink) Operation {
	return Operation{Request: &RequestOp{ID: id, Method: method, Params: params, DocumentURI: documentURI, Sink: sink}}
}

// newInternalRequestOperation builds the `initialize`/`shutdown` handshake
// Request the bridge itself issues, exempt from the Ready-only gating
// applied to ordinary client Requests. sink must be buffered (capacity >= 1).
func newInternalRequestOperation(id RequestId, method string, params json.RawMessage, sink ResponseSink) Operation {
	return Operation{Request: &RequestOp{ID: id, Method: method, Params: params, Sink: sink, Internal: true}}
}

// newInternalNotificationOperation builds the `exit` handshake notification
// the bridge itself issues, exempt from the Closing-drops-notifications
// gating applied to ordinary client notifications.
func newInternalNotificationOperation(method string, params json.RawMessage) Operation {
	return Operation{Notification: &NotificationOp{Method: method, Params: params, Internal: true}}
}

// IsRequest reports whether op is the Request variant.
func (op Operation) IsRequest() bool {
	return op.Request != nil
}

// Method returns the outbound method name regardless of variant.
func (op Operation) Method() string {
	if op.Request != nil {
		return op.Request.Method
	}
	return op.Notification.Method
}

// DocumentURI returns the document this operation concerns, if any.
func (op Operation) DocumentURI() string {
	if op.Request != nil {
		return op.Request.DocumentURI
	}
	return op.Notification.DocumentURI
}
