// Package observability provides the OpenTelemetry tracing and metrics
// Provider used across the governance pipeline.
//
// Initialize once at application startup:
//
//	provider, err := observability.New(ctx, observability.DefaultConfig())
//	defer provider.Shutdown(ctx)
//
// Wrap a pipeline stage with RED metrics and a span in one call:
//
//	ctx, done := provider.TrackOperation(ctx, "governance.evaluate", attrs...)
//	defer func() { done(err) }()
package observability
