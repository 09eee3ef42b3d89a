package influxdb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var writeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vigilant",
	Subsystem: "influx",
	Name:      "write_errors_total",
	Help:      "Measurement batches InfluxDB rejected or that could not be sent.",
})
