// Package trace records spans for the code generator: driver runs,
// translation units, record layouts and individual emitted nodes.
//
// Tracers travel through the pipeline on the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.Enter(ctx, trace.ScopeUnit, path)
//	defer span.End("ok")
//
// Verbosity is controlled by Level; each Scope is emitted only when the
// level admits it (see Level.ShouldEmit).
package trace
