// Package api implements the bridge's HTTP query surface, command
// endpoints and WebSocket live feed.
//
// Reads come straight from the state store and always return copies.
// Commands go through the command publisher and map its errors onto
// status codes: not_connected is 503, publish_timeout is 504 and any
// other transport failure is 502.
//
// The live feed at /api/ws pushes two event types: telemetry.update after
// every applied message and connection.state on every connection state
// change. Clients pick channels with ?channels= or subscribe messages.
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
