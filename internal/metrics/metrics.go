// Package metrics exposes Prometheus collectors for sync activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "octopus_exporter"

// Metrics groups every collector the exporter records into.
type Metrics struct {
	RecordsFetched *prometheus.CounterVec
	PointsWritten  *prometheus.CounterVec
	SeriesResets   *prometheus.CounterVec
	SyncDuration   *prometheus.HistogramVec
	LastSync       *prometheus.GaugeVec
	Cycles         *prometheus.CounterVec

	RPCRequests *prometheus.CounterVec
	RPCLatency  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Consumption records fetched from the upstream API.",
		}, []string{"series"}),
		PointsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_written_total",
			Help:      "Points written to the time series store.",
		}, []string{"series"}),
		SeriesResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_resets_total",
			Help:      "Corrupted series dropped from the store.",
		}, []string{"series"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Time taken to sync one series.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"series"}),
		LastSync: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix time of the last successful sync of a series.",
		}, []string{"series"}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cycles_total",
			Help:      "Sync cycles run, by result.",
		}, []string{"result"}),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC requests served.",
		}, []string{"method"}),
		RPCLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(
		m.RecordsFetched,
		m.PointsWritten,
		m.SeriesResets,
		m.SyncDuration,
		m.LastSync,
		m.Cycles,
		m.RPCRequests,
		m.RPCLatency,
	)
	return m
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
