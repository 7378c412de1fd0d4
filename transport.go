//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
//

package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Transport owns a spawned downstream server's stdio. It is produced by
// [SpawnFunc] and, once returned from the transport construction pipeline,
// owned by exactly one [*Connection].
type Transport struct {
	cmd     *exec.Cmd
	Stdin   io.WriteCloser
	Stdout  io.ReadCloser
	command string
}

// Pid returns the spawned process's process ID.
func (t *Transport) Pid() int {
	return t.cmd.Process.Pid
}

// Command returns the executable name this transport was spawned with, for
// log enrichment.
func (t *Transport) Command() string {
	return t.command
}

// Wait blocks until the child process has been reaped and returns its exit
// error, if any. It must be called at most once.
func (t *Transport) Wait() error {
	return t.cmd.Wait()
}

// Terminate and Kill (platform-specific) request a graceful and a forced
// exit of the spawned process, respectively. See transport_unix.go and
// transport_windows.go.

// Close closes the stdin and stdout pipes without signaling the process.
// Use [Transport.Terminate] or [Transport.Kill] to stop the child itself.
func (t *Transport) Close() error {
	err1 := t.Stdin.Close()
	err2 := t.Stdout.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// ProcessSpawner spawns a downstream server process.
type ProcessSpawner interface {
	Spawn(ctx context.Context, spec DownstreamSpec) (*Transport, error)
}

// ProcessSpawnerFunc adapts a function to the [ProcessSpawner] interface.
type ProcessSpawnerFunc func(ctx context.Context, spec DownstreamSpec) (*Transport, error)

var _ ProcessSpawner = ProcessSpawnerFunc(nil)

// Spawn implements [ProcessSpawner].
func (f ProcessSpawnerFunc) Spawn(ctx context.Context, spec DownstreamSpec) (*Transport, error) {
	return f(ctx, spec)
}

// DefaultProcessSpawner spawns the child using [os/exec], isolating it into
// its own process group so that [Transport.Terminate] and [Transport.Kill]
// reach any grandchildren it spawns.
var DefaultProcessSpawner = ProcessSpawnerFunc(func(ctx context.Context, spec DownstreamSpec) (*Transport, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("bridge: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("bridge: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("bridge: spawn: %w", err)
	}

	go drainStderr(spec.Command, stderr)

	return &Transport{cmd: cmd, Stdin: stdin, Stdout: stdout, command: spec.Command}, nil
})

// drainStderr reads a downstream's stderr in 4096-byte chunks until EOF or
// a read error and discards what it reads; nothing is logged. Its only
// effect is to keep the child from blocking on a full stderr pipe.
func drainStderr(command string, stderr io.ReadCloser) {
	defer stderr.Close()
	buf := make([]byte, 4096)
	for {
		if _, err := stderr.Read(buf); err != nil {
			return
		}
	}
}

// NewSpawnFunc returns a new [*SpawnFunc] wired from cfg and logger.
func NewSpawnFunc(cfg *Config, logger SLogger) *SpawnFunc {
	return &SpawnFunc{
		Spawner:       DefaultProcessSpawner,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// SpawnFunc spawns a downstream server process, analogous to the teacher's
// ConnectFunc dialing a TCP/UDP endpoint.
//
// Resource cleanup contract: on error, no [*Transport] is returned and any
// partially-opened pipes have already been closed by the [ProcessSpawner].
type SpawnFunc struct {
	// Spawner performs the actual spawn.
	//
	// Set by [NewSpawnFunc] to [DefaultProcessSpawner].
	Spawner ProcessSpawner

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

var _ Func[DownstreamSpec, *Transport] = &SpawnFunc{}

// Call spawns the downstream server named by spec.
func (op *SpawnFunc) Call(ctx context.Context, spec DownstreamSpec) (*Transport, error) {
	t0 := op.TimeNow()
	op.Logger.Info(
		"spawnStart",
		slog.String("command", spec.Command),
		slog.Any("args", spec.Args),
		slog.Time("t", t0),
	)

	transport, err := op.Spawner.Spawn(ctx, spec)

	var pid int
	if transport != nil {
		pid = transport.Pid()
	}
	op.Logger.Info(
		"spawnDone",
		slog.String("command", spec.Command),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.Int("pid", pid),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)

	return transport, err
}
