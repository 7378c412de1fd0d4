// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/bassosimone/lspbridge/errclass"
	"github.com/stretchr/testify/assert"
)

func TestDefaultErrClassifier(t *testing.T) {
	// Default classifier never inspects the error.
	assert.Equal(t, "", DefaultErrClassifier.Classify(nil))
	assert.Equal(t, "", DefaultErrClassifier.Classify(errors.New("boom")))
}

func TestPipeErrClassifier(t *testing.T) {
	assert.Equal(t, "", PipeErrClassifier.Classify(nil))
	assert.Equal(t, "ECANCELED", PipeErrClassifier.Classify(context.Canceled))
	assert.Equal(t, "ETIMEDOUT", PipeErrClassifier.Classify(context.DeadlineExceeded))
	assert.Equal(t, "EEOF", PipeErrClassifier.Classify(io.EOF))
	assert.Equal(t, errclass.EGENERIC, PipeErrClassifier.Classify(errors.New("unknown error")))
}

func TestErrClassifierFunc(t *testing.T) {
	var called error
	classifier := ErrClassifierFunc(func(err error) string {
		called = err
		return "TAG"
	})

	sentinel := errors.New("sentinel")
	assert.Equal(t, "TAG", classifier.Classify(sentinel))
	assert.Equal(t, sentinel, called)
}
