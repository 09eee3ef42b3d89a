// Package device is the registry of sensor units known to VigiLant.
//
// A device is created by an operator ("connect") before it reports
// anything; at that point it only has a broker-facing external ID and
// placeholder fields, and its status is AwaitingData. From then on the
// ingestion pipeline is the only writer: every accepted measurement
// overwrites name, location, sensor kind, status and last measurement.
//
// Status and SensorKind are closed enumerations whose integer values are the
// codes used on the wire and in the database. ParseStatus and
// ParseSensorKind reject anything outside the known set.
//
// The Registry fronts a Repository with an in-memory cache indexed by ID and
// external ID. Values returned from the Registry are copies.
package device
