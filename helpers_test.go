// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/bassosimone/slogstub"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// funcReadWriteCloser adapts three closures to the [io.ReadWriteCloser]
// interface, in the same function-field-stub idiom the teacher uses for
// its net.Conn doubles. A nil field panics if called, so tests only need
// to set the methods they expect to be exercised.
type funcReadWriteCloser struct {
	ReadFunc  func(p []byte) (int, error)
	WriteFunc func(p []byte) (int, error)
	CloseFunc func() error
}

func (c *funcReadWriteCloser) Read(p []byte) (int, error) {
	return c.ReadFunc(p)
}

func (c *funcReadWriteCloser) Write(p []byte) (int, error) {
	return c.WriteFunc(p)
}

func (c *funcReadWriteCloser) Close() error {
	return c.CloseFunc()
}

// fakeWireStream is an in-memory double for the local [wireStream]
// interface: reads are pulled off toRead, writes are pushed onto written.
// Both channels are buffered so tests can drive a Connection's reader and
// writer tasks without a real downstream process.
type fakeWireStream struct {
	toRead    chan *wireMessage
	written   chan *wireMessage
	closeOnce sync.Once
}

func newFakeWireStream() *fakeWireStream {
	return &fakeWireStream{
		toRead:  make(chan *wireMessage, 64),
		written: make(chan *wireMessage, 64),
	}
}

func (f *fakeWireStream) ReadObject(v any) error {
	msg, ok := <-f.toRead
	if !ok {
		return io.EOF
	}
	*(v.(*wireMessage)) = *msg
	return nil
}

func (f *fakeWireStream) WriteObject(v any) error {
	msg := v.(*wireMessage)
	cp := *msg
	f.written <- &cp
	return nil
}

func (f *fakeWireStream) Close() error {
	f.closeOnce.Do(func() { close(f.toRead) })
	return nil
}

// newTestConnection builds a [*Connection] wired to a [fakeWireStream]
// instead of a real [*Transport], for tests that exercise the send/receive
// protocol without spawning a process. Its transport field is left nil:
// such tests must not call anything that touches it (Shutdown, Pid, ...).
func newTestConnection() (*Connection, *fakeWireStream) {
	wire := newFakeWireStream()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		SpanID:     "test-span",
		LanguageID: "go",
		wire:       wire,
		cfg:        NewConfig(),
		logger:     DefaultSLogger(),
		state:      newConnectionStateVar(StateInitializing),
		pending:    NewPendingRequests(),
		queue:      NewOrderQueue(8),
		docState:   make(map[string]DocumentLifecycleState),
		ctx:        ctx,
		cancel:     cancel,
		readerDone: make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	c.timers = newConnectionTimers(c)
	return c, wire
}
