package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for messagesTotal.
const (
	outcomeAccepted     = "accepted"
	outcomeInvalid      = "invalid"
	outcomeUnregistered = "unregistered"
	outcomeRejected     = "rejected"
	outcomeStoreError   = "store_error"
	outcomePanic        = "panic"
)

var (
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vigilant",
		Subsystem: "ingest",
		Name:      "messages_total",
		Help:      "Inbound device messages by outcome.",
	}, []string{"outcome"})

	riskTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vigilant",
		Subsystem: "ingest",
		Name:      "risk_readings_total",
		Help:      "Accepted readings at or above a risk threshold, by severity.",
	}, []string{"severity"})

	processingSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vigilant",
		Subsystem: "ingest",
		Name:      "processing_seconds",
		Help:      "Time from message receipt to broadcast.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)
