// Package observability provides structured logging and Prometheus metrics.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", userID).Info("system access granted")
//
// Context-aware logging carries request and user identifiers:
//
//	ctx = observability.WithRequestID(ctx, reqID)
//	observability.FromContext(ctx).Warn("cache unavailable, falling through to store")
//
// # Prometheus Metrics
//
// Metrics are registered on a caller-supplied registry so embedding
// applications control exposure:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.DecisionsTotal.WithLabelValues("download", "allowed_owner").Inc()
//	metrics.CacheHitsTotal.WithLabelValues("system_access").Inc()
//
// Expose them with RegisterMetricsEndpoint on any http.ServeMux.
package observability
