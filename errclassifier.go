// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"context"
	"errors"
	"io"

	"github.com/bassosimone/lspbridge/errclass"
)

// ErrClassifier classifies errors into categorical strings for analysis.
//
// Implementations map errors to short, descriptive labels (e.g., "ETIMEDOUT",
// "ECONNRESET") that are attached to Done-span log events. Classification
// is for log enrichment only and must never influence control flow: a
// Connection's error handling always follows the error taxonomy, never a
// string returned by this interface.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier is a no-op classifier that returns an empty string.
var DefaultErrClassifier = ErrClassifierFunc(func(error) string { return "" })

// PipeErrClassifier classifies errors observed on a downstream's stdio
// pipes, recognizing context cancellation/deadline and EOF in addition to
// the platform-level conditions handled by the [errclass] subpackage.
var PipeErrClassifier = ErrClassifierFunc(func(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "ECANCELED"
	case errors.Is(err, context.DeadlineExceeded):
		return "ETIMEDOUT"
	case errors.Is(err, io.EOF):
		return "EEOF"
	default:
		return errclass.Classify(err)
	}
})
