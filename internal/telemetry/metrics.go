/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry carries the Prometheus metrics and OpenTelemetry
// tracing setup.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestsTotal counts HTTP requests by method, route and status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yurets_fm_api_requests_total",
		Help: "Total HTTP API requests.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yurets_fm_api_request_duration_seconds",
		Help:    "HTTP API request duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections gauges in-flight HTTP requests, the long-lived
	// stream connections included.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yurets_fm_api_active_connections",
		Help: "In-flight HTTP connections.",
	})

	// Listeners gauges currently connected stream listeners.
	Listeners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yurets_fm_listeners",
		Help: "Currently connected stream listeners.",
	})

	// ListenersDropped counts listeners disconnected for falling behind.
	ListenersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yurets_fm_listeners_dropped_total",
		Help: "Listeners dropped for not keeping up with the stream.",
	})

	// ChunksBroadcast counts chunks fanned out to listeners.
	ChunksBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yurets_fm_chunks_broadcast_total",
		Help: "Audio chunks broadcast.",
	})

	// BytesBroadcast counts bytes fanned out to listeners.
	BytesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yurets_fm_bytes_broadcast_total",
		Help: "Audio bytes broadcast.",
	})

	// TracksStarted counts tracks the engine started, by source.
	TracksStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yurets_fm_tracks_started_total",
		Help: "Tracks started by the broadcast engine.",
	}, []string{"source"})

	// SourceFallbacks counts slot sources replaced by the local fallback.
	SourceFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yurets_fm_source_fallbacks_total",
		Help: "Times a slot source failed over to the local fallback.",
	}, []string{"from"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
