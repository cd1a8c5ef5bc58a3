/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics for the orchestrator.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playout loop.
type Metrics struct {
	registry *prometheus.Registry

	ClipsPlayed    prometheus.Counter
	ClipsSkipped   prometheus.Counter
	ClipsFailed    prometheus.Counter
	SkipVotes      prometheus.Counter
	SinkRestarts   prometheus.Counter
	RelayBytes     prometheus.Counter
	SinkSessionAge prometheus.Gauge
}

// New creates and registers the orchestrator metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ClipsPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skald_clips_played_total",
			Help: "Total number of clips played to completion",
		}),
		ClipsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skald_clips_skipped_total",
			Help: "Total number of clips cancelled by skip votes",
		}),
		ClipsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skald_clips_failed_total",
			Help: "Total number of clips marked permanently failed this run",
		}),
		SkipVotes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skald_skip_votes_total",
			Help: "Total number of accepted skip votes",
		}),
		SinkRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skald_sink_restarts_total",
			Help: "Total number of broadcast encoder restarts",
		}),
		RelayBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skald_relay_bytes_total",
			Help: "Total bytes relayed into the broadcast encoder",
		}),
		SinkSessionAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skald_sink_session_age_seconds",
			Help: "Age of the current broadcast encoder session",
		}),
	}

	registry.MustRegister(
		m.ClipsPlayed,
		m.ClipsSkipped,
		m.ClipsFailed,
		m.SkipVotes,
		m.SinkRestarts,
		m.RelayBytes,
		m.SinkSessionAge,
	)

	return m
}

// Handler exposes the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
