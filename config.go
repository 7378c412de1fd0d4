// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"encoding/json"
	"time"
)

// Default tunables, used by [NewConfig].
const (
	DefaultOrderQueueCapacity    = 256
	DefaultInitializationTimeout = 30 * time.Second
	DefaultLivenessTimeout       = 10 * time.Second
	DefaultWriterIdleTimeout     = 2 * time.Second
	DefaultGlobalShutdownTimeout = 10 * time.Second
)

// DownstreamSpec configures one downstream language server, spawned on
// demand by the router the first time a document of the matching language
// is encountered.
type DownstreamSpec struct {
	// Command is the executable to run.
	Command string

	// Args are passed to Command.
	Args []string

	// Env lists additional "KEY=VALUE" environment entries. The spawned
	// process also inherits the bridge's own environment.
	Env []string

	// InitializationOptions is passed verbatim as the initialize request's
	// initializationOptions parameter.
	InitializationOptions json.RawMessage
}

// Config holds common configuration for the bridge engine.
//
// Pass this to constructor functions to pre-wire dependencies. All fields
// have sensible defaults set by [NewConfig].
type Config struct {
	// OrderQueueCapacity bounds each downstream's outbound FIFO.
	//
	// Set by [NewConfig] to [DefaultOrderQueueCapacity].
	OrderQueueCapacity int

	// InitializationTimeout bounds the time a downstream may spend between
	// spawn and completing its initialize/initialized handshake.
	//
	// Set by [NewConfig] to [DefaultInitializationTimeout].
	InitializationTimeout time.Duration

	// LivenessTimeout bounds the time a Ready connection may go without
	// producing a downstream message while requests are pending.
	//
	// Set by [NewConfig] to [DefaultLivenessTimeout].
	LivenessTimeout time.Duration

	// WriterIdleTimeout is carried as a configuration value only: nothing
	// in this package reads it. The shutdown controller's wait for the
	// writer actor to exit is bounded by GlobalShutdownTimeout instead.
	//
	// Set by [NewConfig] to [DefaultWriterIdleTimeout].
	WriterIdleTimeout time.Duration

	// GlobalShutdownTimeout bounds the entire multi-connection shutdown
	// sequence, after which remaining connections are force-killed.
	//
	// Set by [NewConfig] to [DefaultGlobalShutdownTimeout].
	GlobalShutdownTimeout time.Duration

	// Downstreams maps a languageId to the spec used to spawn its server.
	Downstreams map[string]DownstreamSpec

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [PipeErrClassifier].
	ErrClassifier ErrClassifier

	// Logger receives structured log events.
	//
	// Set by [NewConfig] to [DefaultSLogger].
	Logger SLogger

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		OrderQueueCapacity:    DefaultOrderQueueCapacity,
		InitializationTimeout: DefaultInitializationTimeout,
		LivenessTimeout:       DefaultLivenessTimeout,
		WriterIdleTimeout:     DefaultWriterIdleTimeout,
		GlobalShutdownTimeout: DefaultGlobalShutdownTimeout,
		Downstreams:           make(map[string]DownstreamSpec),
		ErrClassifier:         PipeErrClassifier,
		Logger:                DefaultSLogger(),
		TimeNow:               time.Now,
	}
}
