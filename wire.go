// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"encoding/json"
	"io"

	"github.com/sourcegraph/jsonrpc2"
)

// RequestId is the JSON-RPC id as received from the upstream client. Phase 1
// forwards it to the downstream verbatim (see SPEC_FULL.md §3).
type RequestId = jsonrpc2.ID

// WireError is a JSON-RPC 2.0 error object.
type WireError = jsonrpc2.Error

// Bridge-generated error codes. Downstream errors pass through unchanged;
// these are only used for errors the bridge itself manufactures.
const (
	CodeRequestFailed    = -32803
	CodeRequestCancelled = -32800
	CodeInternalError    = -32603
)

// wireMessage is the on-the-wire JSON-RPC 2.0 envelope, covering requests,
// notifications, and responses uniformly so a single ObjectStream can
// read and write all three without a codec-level type switch.
type wireMessage struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *RequestId       `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  *json.RawMessage `json:"params,omitempty"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *WireError       `json:"error,omitempty"`
}

func (m *wireMessage) isRequest() bool {
	return m.Method != "" && m.ID != nil
}

func (m *wireMessage) isNotification() bool {
	return m.Method != "" && m.ID == nil
}

func (m *wireMessage) isResponse() bool {
	return m.Method == "" && m.ID != nil
}

func newRequestMessage(id RequestId, method string, params json.RawMessage) *wireMessage {
	return &wireMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: rawPtr(params)}
}

func newNotificationMessage(method string, params json.RawMessage) *wireMessage {
	return &wireMessage{JSONRPC: "2.0", Method: method, Params: rawPtr(params)}
}

func newResultMessage(id RequestId, result json.RawMessage) *wireMessage {
	return &wireMessage{JSONRPC: "2.0", ID: &id, Result: rawPtr(result)}
}

func newErrorMessage(id RequestId, wireErr *WireError) *wireMessage {
	return &wireMessage{JSONRPC: "2.0", ID: &id, Error: wireErr}
}

func rawPtr(raw json.RawMessage) *json.RawMessage {
	if raw == nil {
		return nil
	}
	return &raw
}

// newWireStream wraps rwc with Content-Length/JSON-RPC framing, using
// sourcegraph/jsonrpc2's VSCodeObjectCodec for the framing logic. The
// returned ObjectStream is only used for its WriteObject/ReadObject/Close
// methods: the bridge builds its own read/dispatch loop (reader.go,
// writer.go) rather than using jsonrpc2's Conn, whose automatic
// request/response correlation does not give the OrderQueue/
// check-insert-check/state-gating semantics this engine requires.
func newWireStream(rwc io.ReadWriteCloser) wireStream {
	return jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
}

func readWireMessage(stream wireStream) (*wireMessage, error) {
	var msg wireMessage
	if err := stream.ReadObject(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func writeWireMessage(stream wireStream, msg *wireMessage) error {
	return stream.WriteObject(msg)
}
