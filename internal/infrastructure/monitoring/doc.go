/*
Package monitoring provides Prometheus metrics for the sandbox bridge.

Each Metrics value owns a private registry, exposed through Handler for the
/metrics endpoint. Besides HTTP and WebSocket traffic it tracks the bridge
itself: runs, envelopes in and out, dropped envelopes by reason, realm
recycles, watchdog expiries, live timers and pending dialogs.

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

Snapshot returns the counters the JSON stats endpoint reports.
*/
package monitoring
