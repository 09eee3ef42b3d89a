// Package api provides the HTTP REST API and the realtime WebSocket endpoint
// for VigiLant.
//
// Operators connect and delete devices, read device snapshots and risk
// evaluations, and edit the broker configuration. Every route except the
// health probe and the Prometheus exposition requires a bearer token issued
// by "vigilant token".
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
