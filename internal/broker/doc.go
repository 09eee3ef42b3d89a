// Package broker keeps VigiLant Core attached to its MQTT broker.
//
// The Manager polls on a fixed interval (5s by default). Whenever a poll finds
// no live session it re-reads the persisted broker row, dials with a fresh
// client id and subscribes to the configured wildcard at QoS 1. Inbound
// messages are passed to the ingestion pipeline; outbound commands go through
// Publish, which fails fast with ErrNotConnected while the broker is away.
package broker
