// Package metrics exposes Prometheus metrics for the sync service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncPassesTotal counts sync passes by outcome.
	SyncPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailsync",
			Subsystem: "pass",
			Name:      "runs_total",
			Help:      "Total number of sync passes by outcome (ok, error, rejected)",
		},
		[]string{"outcome"},
	)

	// SyncPassDuration measures full sync pass duration in seconds.
	SyncPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mailsync",
			Subsystem: "pass",
			Name:      "duration_seconds",
			Help:      "Duration of a full sync pass in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// MessagesTotal counts processed messages by result.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailsync",
			Subsystem: "messages",
			Name:      "total",
			Help:      "Messages handled by result (processed, skipped, fetch_failed, parse_failed)",
		},
		[]string{"result"},
	)

	// AttachmentUploadsTotal counts attachment uploads by status.
	AttachmentUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailsync",
			Subsystem: "attachments",
			Name:      "uploads_total",
			Help:      "Attachment uploads to the blob store by status (uploaded, failed)",
		},
		[]string{"status"},
	)

	// RecordWritesTotal counts record store writes by operation.
	RecordWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailsync",
			Subsystem: "records",
			Name:      "writes_total",
			Help:      "Record store writes by operation (insert, update, failed)",
		},
		[]string{"operation"},
	)
)
