// SPDX-License-Identifier: GPL-3.0-or-later

// Package bridge implements the core of an LSP bridge: a process that
// presents itself to an editor as a single LSP server while transparently
// multiplexing requests and notifications onto one downstream language
// server per embedded language (e.g., Python fragments inside Markdown).
//
// # Core Abstraction
//
// The package reuses a composable-pipeline abstraction for building a
// downstream's transport:
//
//	type Func[A, B any] interface {
//		Call(ctx context.Context, input A) (B, error)
//	}
//
// Each Func represents an atomic operation with exactly one success mode
// and one failure mode. [Compose2] through [Compose8] chain Funcs into
// pipelines where the compiler verifies outputs match inputs across
// stages; [Transport] construction is one such pipeline (spawn, observe,
// bind lifecycle).
//
// # Available Primitives
//
// Transport construction:
//   - [SpawnFunc]: spawns a downstream server as a child process
//   - [ObservePipeFunc]: wraps a downstream's stdio for logging I/O operations
//   - [BindLifecycleFunc]: kills the child when the governing context is done
//
// Composition utilities:
//   - [Compose2] through [Compose8]: chain Funcs into pipelines
//   - [FuncAdapter]: wrap a function as a Func for ad-hoc custom behavior
//   - [Apply]: bind a fixed input to a Func
//   - [ConstFunc]: lift a pure value into a Func
//   - [NewCommandSpecFunc]: convenience wrapper for ConstFunc with a [DownstreamSpec]
//
// The engine itself is built from:
//   - [Connection]: one per downstream, owns its state machine, pending
//     requests, document lifecycle map, reader task, and writer actor
//   - [Router]: maps a languageId to a lazily-spawned [*Connection],
//     translates between host and virtual document coordinates, and
//     fans out cancellation and shutdown
//
// # Connection Lifecycle
//
// A [*Transport] is created and owned by exactly one [*Connection]: on
// success, ownership transfers to the connection, which is responsible for
// killing the child process when shutting down. On spawn failure the
// transport pipeline itself closes any partially-constructed resource.
//
// # Observability
//
// All components support structured logging via [SLogger] (compatible
// with [log/slog]). By default, logging is disabled. Set the Logger field
// on [Config] to a custom [*slog.Logger] to enable logging. Error
// classification is configurable via [ErrClassifier]; by default,
// [PipeErrClassifier] is used.
//
// Components emit span events (*Start/*Done pairs) for operation lifecycle
// including timing and success/failure, plus per-I/O debug events for
// reads, writes, and pipe closes. Completion events additionally include
// t0 (start time), err, and errClass.
//
// Use [NewSpanID] to generate a unique, time-ordered identifier (UUIDv7)
// for each connection or request/response exchange, then attach it to the
// logger with [*slog.Logger.With]. All log entries from one span share the
// same spanID, enabling correlation across pipeline stages.
//
// # Timeout and Context Philosophy
//
// Components are context-transparent: operations never modify the context
// they receive. [BindLifecycleFunc] binds the governing context's
// cancellation to the downstream process: when the context is done, the
// child is sent a terminate signal, causing any in-progress I/O to fail.
// Beyond that, three purpose-specific timers (initialization, liveness,
// global shutdown) govern the connection and shutdown state machines
// directly; see [Config] for their defaults. [Config] also carries a
// writer-idle timeout that no component reads.
//
// # Design Boundaries
//
// This package implements Phase 1 only: one downstream connection per
// language, no circuit breakers, no bulkheads, no health monitoring, no
// fan-out to multiple servers for the same language, no response merging.
// Virtual-document identity, position mapping, and language/filetype
// resolution are the responsibility of an external collaborator supplied
// by the caller.
package bridge
