//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommandSpecFunc(t *testing.T) {
	spec := DownstreamSpec{Command: "gopls", Args: []string{"serve"}}
	fn := NewCommandSpecFunc(spec)

	out, err := fn.Call(context.Background(), Unit{})
	require.NoError(t, err)
	assert.Equal(t, spec, out)
}

func TestNewTransportPipeline(t *testing.T) {
	cfg := NewConfig()
	logger, _ := newCapturingLogger()
	cfg.Logger = logger

	pipeline := NewTransportPipeline(cfg, logger)

	transport, err := pipeline.Call(context.Background(), DownstreamSpec{Command: "cat"})
	require.NoError(t, err)
	require.NotNil(t, transport)
	defer transport.Close()
	defer transport.Kill()

	// The pipeline wraps stdio in observed pipes, so writes/reads still work.
	_, err = transport.Stdin.Write([]byte("x"))
	require.NoError(t, err)
}
