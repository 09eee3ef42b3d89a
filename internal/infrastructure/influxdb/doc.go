// Package influxdb records device measurement history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every accepted reading
// becomes one point in the "device_measurements" measurement, tagged with the
// device identity and sensor kind. The raw reported value is always stored;
// a numeric value field is added when the reading parses as a number.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteMeasurement(influxdb.Measurement{ExternalID: "SENS_01", Raw: "21.5", Value: 21.5, HasValue: true})
//
// # Error Handling
//
// Writes are batched and non-blocking; async write errors are delivered to
// the callback registered with SetOnError. Connection and health check errors
// are returned directly.
package influxdb
