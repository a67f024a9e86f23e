package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	captureOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddscap_capture_outcomes_total",
			Help: "Count of rule-group outcomes, by group and outcome",
		},
		[]string{"group", "outcome"},
	)
	captureWriteDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oddscap_capture_write_duration_seconds",
			Help:    "Distribution of time spent writing bucket files, by source tag and write mode",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms -> 4s
		},
		[]string{"source_tag", "mode"},
	)
	captureWrittenBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddscap_capture_written_bytes_total",
			Help: "Bytes of response body written into buckets, by source tag",
		},
		[]string{"source_tag"},
	)
)
