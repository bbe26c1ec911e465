/*
Package monitoring provides Prometheus metrics for the session service.

# Overview

Metrics live on a private registry created by NewMetrics and are exposed
through promhttp by the HTTP server. A JSON snapshot of the headline values
backs the /metrics/json endpoint.

# Metrics

- HTTP requests (count, latency, sizes) labelled by route template
- Sessions (registered, spawned, ended by reason, spawn failures)
- Commands (count by outcome, duration) and signals sent
- WebSocket connections and messages
- Uptime, plus the Go and process collectors

# Usage

	metrics := monitoring.NewMetrics()
	go metrics.Run(ctx)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	metrics.RecordCommand(monitoring.CommandOutcome(res.ExitCode, res.TimedOut, res.SessionClosed), res.Duration)
*/
package monitoring
