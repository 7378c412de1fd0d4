//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newShutdownTestConnection(t *testing.T) (*Connection, *Config) {
	t.Helper()
	cfg := NewConfig()
	cfg.WriterIdleTimeout = 50 * time.Millisecond
	// GlobalShutdownTimeout bounds both the shutdown handshake's response
	// wait and the process kill grace period; kept short so a handshake
	// that never gets a matching response (see below) doesn't slow the
	// test down.
	cfg.GlobalShutdownTimeout = 200 * time.Millisecond

	transport, err := NewTransportPipeline(cfg, DefaultSLogger()).Call(context.Background(), DownstreamSpec{Command: "cat"})
	require.NoError(t, err)

	return NewConnection(context.Background(), "go", transport, cfg, DefaultSLogger(), nil), cfg
}

func TestConnectionShutdownFromReadyTerminatesProcess(t *testing.T) {
	conn, _ := newShutdownTestConnection(t)
	require.True(t, conn.MarkReady())

	// cat echoes the `shutdown` request back as itself rather than a
	// matching response, so the handshake always times out; shutdown must
	// still proceed to terminate the process within the budget.
	err := conn.Shutdown(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateClosed, conn.State())
}

func TestConnectionShutdownFromInitializingSkipsHandshake(t *testing.T) {
	conn, _ := newShutdownTestConnection(t)

	err := conn.Shutdown(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateClosed, conn.State())
}

func TestConnectionShutdownIsIdempotent(t *testing.T) {
	conn, _ := newShutdownTestConnection(t)

	err1 := conn.Shutdown(context.Background())
	err2 := conn.Shutdown(context.Background())
	require.Equal(t, err1, err2)
	require.Equal(t, StateClosed, conn.State())
}

func TestShutdownAllRunsEveryConnection(t *testing.T) {
	conn1, cfg := newShutdownTestConnection(t)
	conn2, _ := newShutdownTestConnection(t)
	require.True(t, conn1.MarkReady())
	require.True(t, conn2.MarkReady())

	err := ShutdownAll(context.Background(), []*Connection{conn1, conn2}, cfg)
	require.NoError(t, err)
	require.Equal(t, StateClosed, conn1.State())
	require.Equal(t, StateClosed, conn2.State())
}
