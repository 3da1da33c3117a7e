package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks currently attached sync connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "podium",
		Subsystem: "sync",
		Name:      "active_connections",
		Help:      "Number of currently attached sync connections.",
	})

	// MergesApplied counts updates merged into resident documents.
	MergesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "podium",
		Subsystem: "sync",
		Name:      "merges_applied_total",
		Help:      "Total updates merged into resident documents.",
	})

	// MergesRejected counts updates dropped from read-only connections.
	MergesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "podium",
		Subsystem: "sync",
		Name:      "merges_rejected_total",
		Help:      "Total updates dropped because the sender lacked write capability.",
	})

	// MalformedUpdates counts payloads that failed to parse as document updates.
	MalformedUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "podium",
		Subsystem: "sync",
		Name:      "malformed_updates_total",
		Help:      "Total update payloads rejected as malformed.",
	})

	// DocumentFetches counts loads of competition records from durable storage.
	DocumentFetches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "podium",
		Subsystem: "store",
		Name:      "document_fetches_total",
		Help:      "Total competition document fetches from durable storage.",
	})

	// PersistFailures counts failed durable writes; repeated failure risks
	// data loss on restart and should be alerted on.
	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "podium",
		Subsystem: "store",
		Name:      "persist_failures_total",
		Help:      "Total failed attempts to persist a competition document.",
	})
)
