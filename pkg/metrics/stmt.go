// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	LblServer   = "server"
	LblRes      = "res"
	LblStrategy = "strategy"

	ResHit   = "hit"
	ResMiss  = "miss"
	ResOK    = "ok"
	ResError = "error"
)

var (
	CacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleStmtKit,
			Subsystem: LabelCache,
			Name:      "lookup",
			Help:      "Counter of template cache lookups.",
		}, []string{LblServer, LblRes})

	CacheSizeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ModuleStmtKit,
			Subsystem: LabelCache,
			Name:      "templates",
			Help:      "Number of cached templates.",
		}, []string{LblServer})

	BatchStrategyCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleStmtKit,
			Subsystem: LabelBatch,
			Name:      "plan",
			Help:      "Counter of batch plans by strategy.",
		}, []string{LblStrategy})

	BatchRowsHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: ModuleStmtKit,
			Subsystem: LabelBatch,
			Name:      "rows",
			Help:      "Bucketed histogram of rows per batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16), // 1 ~ 32768
		})

	BatchChunkCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleStmtKit,
			Subsystem: LabelBatch,
			Name:      "chunk",
			Help:      "Counter of executed batch chunks.",
		}, []string{LblStrategy, LblRes})

	BatchChunkDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ModuleStmtKit,
			Subsystem: LabelBatch,
			Name:      "chunk_duration_seconds",
			Help:      "Bucketed histogram of time (s) for executing a batch chunk.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 26), // 1us ~ 30s
		}, []string{LblStrategy})

	OutParamRoundTripCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleStmtKit,
			Subsystem: LabelCallable,
			Name:      "out_param_query",
			Help:      "Counter of queries reading output parameters.",
		}, []string{LblRes})

	QueryDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ModuleStmtKit,
			Subsystem: LabelBackend,
			Name:      "query_duration_seconds",
			Help:      "Bucketed histogram of time (s) for COM_QUERY round trips.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 26), // 1us ~ 30s
		}, []string{LblRes})
)

// DelServer removes the per-server series of a closed template cache.
func DelServer(addr string) {
	CacheCounter.DeletePartialMatch(prometheus.Labels{LblServer: addr})
	CacheSizeGauge.DeleteLabelValues(addr)
}
