package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsProcessed counts every consumed record by kind and terminal state
	// (archived, broadcast_sent, skipped_unknown_type, failed, ...)
	RecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archiver_records_total",
		Help: "Total number of records processed by the archiver",
	}, []string{"kind", "state"})

	// ProcessingDuration tracks the end-to-end latency of one record, fetch included
	ProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archiver_processing_duration_seconds",
		Help:    "Time taken to process a record from reception to archive and broadcast",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"kind", "status"}) // status: success, invalid, transient

	// ArchiveWrites counts archive write attempts by category and result (written, error)
	ArchiveWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archiver_archive_writes_total",
		Help: "Total number of archive write attempts",
	}, []string{"category", "result"})

	// ArchivedBytes sums the encoded size of archived content
	ArchivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archiver_archived_bytes_total",
		Help: "Total bytes written to the archive",
	}, []string{"category"})

	// Broadcasts counts downstream change events by result (sent, error)
	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archiver_broadcasts_total",
		Help: "Total number of broadcast publish attempts",
	}, []string{"result"})

	// LedgerWrites counts archive ledger inserts by result (recorded, error)
	LedgerWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archiver_ledger_writes_total",
		Help: "Total number of archive ledger inserts",
	}, []string{"result"})

	// BrokerReconnections counts how many times the consumer had to restore the broker link
	BrokerReconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archiver_broker_reconnections_total",
		Help: "Total number of RabbitMQ reconnection attempts",
	})

	// PublisherRedials counts broadcast publisher dial attempts by result (connected, error)
	PublisherRedials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archiver_publisher_redials_total",
		Help: "Total number of broadcast publisher dial attempts",
	}, []string{"result"})

	// HealthStatus provides a binary 0/1 signal for the broker link
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archiver_healthy",
		Help: "Current health status of the archiver (1 for healthy, 0 for unhealthy)",
	})
)
