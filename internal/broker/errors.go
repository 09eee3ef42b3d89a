package broker

import "errors"

var (
	// ErrNotConnected is returned by Publish when no broker session is live.
	// Nothing is written to the network in that case.
	ErrNotConnected = errors.New("broker: not connected")

	// ErrNoConfigSource is returned by New when Options.Config is nil.
	ErrNoConfigSource = errors.New("broker: config source is required")

	// ErrNoHandler is returned by New when Options.Handler is nil.
	ErrNoHandler = errors.New("broker: inbound handler is required")
)
