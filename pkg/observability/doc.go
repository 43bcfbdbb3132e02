// Package observability provides the service logger, Prometheus metrics,
// health probes, OpenTelemetry tracing and graceful shutdown.
//
// # Logging
//
//	logger, err := observability.NewLogger("info", "json", os.Stdout)
//	observability.FromContext(r.Context(), logger).Info("publish authorized")
//
// # Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	client := &http.Client{Transport: metrics.InstrumentTransport("github", nil)}
//
// # Health Checks
//
// /healthz always answers 200. /readyz runs the registered probes and
// answers 503 only when a required one fails. The database holding publish
// keys is required; the Redis handoff store is not.
//
//	checker := observability.NewHealthChecker(version,
//		observability.DatabaseProbe(db),
//		observability.HandoffProbe(redisClient))
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// # Tracing
//
//	tp, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, tp)
package observability
