// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePipeFuncCall(t *testing.T) {
	logger, records := newCapturingLogger()

	var stdinClosed, stdoutClosed bool
	stdin := &funcReadWriteCloser{
		WriteFunc: func(p []byte) (int, error) { return len(p), nil },
		CloseFunc: func() error { stdinClosed = true; return nil },
	}
	stdout := &funcReadWriteCloser{
		ReadFunc:  func(p []byte) (int, error) { copy(p, "hello"); return 5, nil },
		CloseFunc: func() error { stdoutClosed = true; return nil },
	}

	transport := &Transport{Stdin: stdin, Stdout: stdout, command: "gopls"}

	op := &ObservePipeFunc{
		ErrClassifier: DefaultErrClassifier,
		Logger:        logger,
		TimeNow:       time.Now,
	}

	out, err := op.Call(context.Background(), transport)
	require.NoError(t, err)
	require.Same(t, transport, out)

	n, err := out.Stdin.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	buf := make([]byte, 5)
	n, err = out.Stdout.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, out.Stdin.Close())
	require.NoError(t, out.Stdout.Close())
	assert.True(t, stdinClosed)
	assert.True(t, stdoutClosed)

	// Second close returns os.ErrClosed without calling the underlying Close again.
	assert.ErrorIs(t, out.Stdin.Close(), os.ErrClosed)

	var names []string
	for _, r := range *records {
		names = append(names, r.Message)
	}
	assert.Contains(t, names, "writeStart")
	assert.Contains(t, names, "writeDone")
	assert.Contains(t, names, "readStart")
	assert.Contains(t, names, "readDone")
	assert.Contains(t, names, "closeStart")
	assert.Contains(t, names, "closeDone")
}

func TestObservePipeFuncPropagatesReadError(t *testing.T) {
	logger, _ := newCapturingLogger()
	sentinel := errors.New("broken pipe")

	stdin := &funcReadWriteCloser{CloseFunc: func() error { return nil }}
	stdout := &funcReadWriteCloser{
		ReadFunc:  func(p []byte) (int, error) { return 0, sentinel },
		CloseFunc: func() error { return nil },
	}
	transport := &Transport{Stdin: stdin, Stdout: stdout, command: "pyls"}

	op := &ObservePipeFunc{ErrClassifier: DefaultErrClassifier, Logger: logger, TimeNow: time.Now}
	out, err := op.Call(context.Background(), transport)
	require.NoError(t, err)

	_, err = out.Stdout.Read(make([]byte, 1))
	assert.ErrorIs(t, err, sentinel)
}
