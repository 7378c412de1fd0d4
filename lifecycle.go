// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import "context"

// NewBindLifecycleFunc returns a new [*BindLifecycleFunc].
func NewBindLifecycleFunc() *BindLifecycleFunc {
	return &BindLifecycleFunc{}
}

// BindLifecycleFunc arranges for the downstream process to be terminated
// when the connection's governing context is done (cancelled or deadline
// exceeded). This provides responsive cleanup on external cancellation
// (e.g., SIGINT via signal.NotifyContext) rather than waiting for the
// shutdown controller to notice.
//
// The returned transport is the input. The context watcher stays registered
// until ctx is done; closing the stdio pipes of the transport neither
// unregisters it nor stops the process (use [Transport.Terminate] or
// [Transport.Kill] for that).
type BindLifecycleFunc struct{}

var _ Func[*Transport, *Transport] = &BindLifecycleFunc{}

// Call registers a context watcher using [context.AfterFunc] that sends
// SIGTERM to the downstream when the context is done. The returned
// [*Transport] is the same value as the input: only the teardown path is
// instrumented, ownership does not change hands.
func (op *BindLifecycleFunc) Call(ctx context.Context, t *Transport) (*Transport, error) {
	context.AfterFunc(ctx, func() {
		t.Terminate()
	})
	return t, nil
}
