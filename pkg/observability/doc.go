// Package observability provides OpenTelemetry tracing and metrics for
// borg runtime services.
//
// Initialize a provider at application startup:
//
//	provider, err := observability.New(ctx, observability.DefaultConfig())
//	defer provider.Shutdown(ctx)
//
// Create spans manually:
//
//	ctx, span := provider.StartSpan(ctx, "organ.invoke")
//	defer span.End()
//
// Or use TrackOperation for span plus RED metrics in one call:
//
//	ctx, finish := provider.TrackOperation(ctx, "organ.invoke",
//		observability.OrganCall(borgID, organName, capabilityID, state)...)
//	err := doWork(ctx)
//	finish(err)
//
// Record request-level metrics directly:
//
//	provider.RecordRequest(ctx, attrs...)
//	provider.RecordError(ctx, err, attrs...)
//	provider.RecordDuration(ctx, elapsed, attrs...)
package observability
