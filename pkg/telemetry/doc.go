// Package telemetry wires the observability stack for the guardrails service.
//
// Logging uses zerolog. NewLogger builds the root logger from LoggingConfig and
// rotates file output with lumberjack. Components derive their own logger:
//
//	logger := tel.Logger.Component("guardrails-engine")
//	logger.Info().Str("evaluation_id", id).Msg("Evaluation completed")
//
// Tracing uses the OpenTelemetry SDK. When enabled, NewTracer installs a global
// provider that exports through OTLP/gRPC or stdout. Engine code starts spans
// with otel.Tracer(TracerName), so a disabled tracer costs nothing.
//
// Metrics use a private Prometheus registry. A disabled or nil *Metrics
// accepts every Record call and does nothing. Handler serves the registry for
// the /metrics route:
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//	router.Handle("/metrics", tel.Metrics.Handler())
package telemetry
