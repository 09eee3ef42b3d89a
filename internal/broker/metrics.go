package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vigilant",
		Subsystem: "broker",
		Name:      "connect_attempts_total",
		Help:      "Broker connect attempts by result.",
	}, []string{"result"})

	connectionsLost = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vigilant",
		Subsystem: "broker",
		Name:      "connections_lost_total",
		Help:      "Established broker sessions that dropped.",
	})

	connectedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vigilant",
		Subsystem: "broker",
		Name:      "connected",
		Help:      "1 while a broker session is live.",
	})

	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vigilant",
		Subsystem: "broker",
		Name:      "publish_total",
		Help:      "Outbound publishes by result.",
	}, []string{"result"})
)
