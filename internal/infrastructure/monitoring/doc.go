/*
Package monitoring provides metrics collection for the clone service.

# Overview

This package implements Prometheus-based metrics collection, tracking HTTP
requests, clone outcomes, pipeline stage timings, admission gates, circuit
breakers, render payloads and prompt sizes.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Time a pipeline stage
	timer := monitoring.NewTimer(metrics, "render")
	// ... perform operation ...
	timer.Stop()

	// Record a finished clone
	metrics.RecordClone("gemini", "ok", elapsed)

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
