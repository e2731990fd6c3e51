/*
Package observability turns interpreter lifecycle events into Prometheus
metrics and structured log records.

Both are plain domain.LifecycleHooks and can be merged:

	metrics := observability.NewMetrics()
	hooks := metrics.Hooks().Merge(observability.LogHooks(logger))
	eng, _ := chatflow.New(dir, chatflow.WithLifecycleHooks(hooks))
	http.Handle("/metrics", metrics.Handler())
*/
package observability
