/*
Package observability turns session lifecycle events into Prometheus metrics
and structured log lines.

Both are plain domain.LifecycleHooks and can be combined:

	metrics, _ := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := domain.ChainHooks(metrics.Hooks(), observability.LoggingHooks(logger))
*/
package observability
