// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

// NewCommandSpecFunc returns a [Func] that always returns the given
// [DownstreamSpec].
//
// This is a convenience wrapper around [ConstFunc] for the common case of
// injecting a fixed downstream command into the transport construction
// pipeline when a connection spawns its server.
func NewCommandSpecFunc(spec DownstreamSpec) Func[Unit, DownstreamSpec] {
	return ConstFunc(spec)
}

// NewTransportPipeline composes [SpawnFunc], [ObservePipeFunc], and
// [BindLifecycleFunc] into the single pipeline the [Router] uses to
// construct each [*Connection]'s [*Transport], mirroring the teacher's
// ConnectFunc→ObserveConnFunc→CancelWatchFunc dial pipeline.
func NewTransportPipeline(cfg *Config, logger SLogger) Func[DownstreamSpec, *Transport] {
	return Compose3[DownstreamSpec, *Transport, *Transport, *Transport](
		NewSpawnFunc(cfg, logger),
		NewObservePipeFunc(cfg, logger),
		NewBindLifecycleFunc(),
	)
}
