package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementName is the InfluxDB measurement all device readings go to.
const measurementName = "device_measurements"

// Measurement is one accepted device reading.
type Measurement struct {
	DeviceID   int64
	ExternalID string
	Location   string
	SensorKind string
	Status     string

	// Raw is the opaque value reported by the device.
	Raw string

	// Value is Raw parsed as a number. HasValue is false when Raw is not numeric.
	Value    float64
	HasValue bool

	At time.Time
}

// WriteMeasurement queues m for the next batch. It is a no-op while
// disconnected.
//
// Example:
//
//	client.WriteMeasurement(influxdb.Measurement{
//	    DeviceID: 1, ExternalID: "SENS_01", SensorKind: "Temperatura",
//	    Raw: "251.3", Value: 251.3, HasValue: true, At: time.Now(),
//	})
func (c *Client) WriteMeasurement(m Measurement) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(measurementPoint(m))
}

// measurementPoint maps a reading to a point. Identity and classification
// are tags; the reading itself is stored as fields.
func measurementPoint(m Measurement) *write.Point {
	tags := map[string]string{
		"device_id":   strconv.FormatInt(m.DeviceID, 10),
		"external_id": m.ExternalID,
		"sensor_kind": m.SensorKind,
	}
	if m.Location != "" {
		tags["location"] = m.Location
	}

	fields := map[string]interface{}{
		"raw":    m.Raw,
		"status": m.Status,
	}
	if m.HasValue {
		fields["value"] = m.Value
	}

	at := m.At
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(measurementName, tags, fields, at)
}
