//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/conn.go
//

package bridge

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// NewObservePipeFunc returns a new [*ObservePipeFunc] with default logging.
func NewObservePipeFunc(cfg *Config, logger SLogger) *ObservePipeFunc {
	return &ObservePipeFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// ObservePipeFunc observes a [*Transport]'s stdio to log I/O operations.
//
// This primitive provides observability for the downstream's pipes by
// logging all reads, writes, and closes. For timeout enforcement, use
// [BindLifecycleFunc] to kill the process when the context is done, which
// causes any in-progress I/O to fail immediately.
//
// All fields are safe to modify after construction but before first use.
type ObservePipeFunc struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewObservePipeFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewObservePipeFunc] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewObservePipeFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[*Transport, *Transport] = &ObservePipeFunc{}

// Call wraps t.Stdin and t.Stdout with observed pipes for logging I/O
// operations, mutating and returning the same [*Transport].
func (op *ObservePipeFunc) Call(ctx context.Context, t *Transport) (*Transport, error) {
	t.Stdin = &observedWriteCloser{wc: t.Stdin, op: op, command: t.command, pid: t.Pid()}
	t.Stdout = &observedReadCloser{rc: t.Stdout, op: op, command: t.command, pid: t.Pid()}
	return t, nil
}

// observedReadCloser observes a downstream's stdout.
type observedReadCloser struct {
	closeonce sync.Once
	rc        io.ReadCloser
	op        *ObservePipeFunc
	command   string
	pid       int
}

// Read implements [io.ReadCloser].
func (c *observedReadCloser) Read(buf []byte) (int, error) {
	t0 := c.op.TimeNow()
	c.op.Logger.Debug(
		"readStart",
		slog.String("command", c.command),
		slog.Int("ioBufferSize", len(buf)),
		slog.Int("pid", c.pid),
		slog.Time("t", t0),
	)

	count, err := c.rc.Read(buf)

	c.op.Logger.Debug(
		"readDone",
		slog.String("command", c.command),
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.Int("pid", c.pid),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)

	return count, err
}

// Close implements [io.ReadCloser]. Subsequent calls return [os.ErrClosed].
func (c *observedReadCloser) Close() (err error) {
	err = os.ErrClosed
	c.closeonce.Do(func() {
		t0 := c.op.TimeNow()
		c.op.Logger.Info(
			"closeStart",
			slog.String("command", c.command),
			slog.String("pipe", "stdout"),
			slog.Int("pid", c.pid),
			slog.Time("t", t0),
		)

		err = c.rc.Close()

		c.op.Logger.Info(
			"closeDone",
			slog.String("command", c.command),
			slog.String("pipe", "stdout"),
			slog.Any("err", err),
			slog.String("errClass", c.op.ErrClassifier.Classify(err)),
			slog.Int("pid", c.pid),
			slog.Time("t0", t0),
			slog.Time("t", c.op.TimeNow()),
		)
	})
	return
}

// observedWriteCloser observes a downstream's stdin.
type observedWriteCloser struct {
	closeonce sync.Once
	wc        io.WriteCloser
	op        *ObservePipeFunc
	command   string
	pid       int
}

// Write implements [io.WriteCloser].
func (c *observedWriteCloser) Write(data []byte) (int, error) {
	t0 := c.op.TimeNow()
	c.op.Logger.Debug(
		"writeStart",
		slog.String("command", c.command),
		slog.Int("ioBufferSize", len(data)),
		slog.Int("pid", c.pid),
		slog.Time("t", t0),
	)

	count, err := c.wc.Write(data)

	c.op.Logger.Debug(
		"writeDone",
		slog.String("command", c.command),
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.Int("pid", c.pid),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)

	return count, err
}

// Close implements [io.WriteCloser]. Subsequent calls return [os.ErrClosed].
func (c *observedWriteCloser) Close() (err error) {
	err = os.ErrClosed
	c.closeonce.Do(func() {
		t0 := c.op.TimeNow()
		c.op.Logger.Info(
			"closeStart",
			slog.String("command", c.command),
			slog.String("pipe", "stdin"),
			slog.Int("pid", c.pid),
			slog.Time("t", t0),
		)

		err = c.wc.Close()

		c.op.Logger.Info(
			"closeDone",
			slog.String("command", c.command),
			slog.String("pipe", "stdin"),
			slog.Any("err", err),
			slog.String("errClass", c.op.ErrClassifier.Classify(err)),
			slog.Int("pid", c.pid),
			slog.Time("t0", t0),
			slog.Time("t", c.op.TimeNow()),
		)
	})
	return
}
