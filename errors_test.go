// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorStrings(t *testing.T) {
	require.Contains(t, (&ProtocolError{Reason: "bad frame"}).Error(), "bad frame")
	require.Contains(t, (&TransportError{Reason: "spawn", Err: errors.New("boom")}).Error(), "boom")
	require.Contains(t, (&StateError{Operation: "send", State: StateClosed}).Error(), "closed")
	require.Contains(t, (&BackpressureError{Method: "textDocument/hover"}).Error(), "textDocument/hover")
	require.Contains(t, (&TimeoutError{Timer: "liveness"}).Error(), "liveness")
	require.Contains(t, (&CancellationError{ID: RequestId{Num: 3}}).Error(), "cancelled")
	require.Contains(t, (&NoProviderError{Method: "textDocument/hover", Language: "go"}).Error(), "go")
	require.Contains(t, (&InternalError{Reason: "oops", Err: errors.New("bang")}).Error(), "bang")
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	te := &TransportError{Reason: "spawn", Err: cause}
	require.ErrorIs(t, te, cause)

	ie := &InternalError{Reason: "oops", Err: cause}
	require.ErrorIs(t, ie, cause)
}

func TestToWireError(t *testing.T) {
	require.Equal(t, CodeRequestCancelled, toWireError(&CancellationError{ID: RequestId{Num: 1}}).Code)
	require.Equal(t, CodeRequestFailed, toWireError(&NoProviderError{Method: "m", Language: "go"}).Code)
	require.Equal(t, CodeRequestFailed, toWireError(&BackpressureError{Method: "m"}).Code)
	require.Equal(t, CodeRequestFailed, toWireError(&StateError{Operation: "send", State: StateClosed}).Code)
	require.Equal(t, CodeInternalError, toWireError(&InternalError{Reason: "oops"}).Code)
	require.Equal(t, CodeInternalError, toWireError(errors.New("plain")).Code)
}
