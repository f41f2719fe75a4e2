// Package api implements the diagnostics HTTP API and WebSocket stream.
//
// This package provides:
//   - Read-only views of resolved accessories, cached devices and loop health
//   - Characteristic writes that take the same path as a HomeKit write
//   - Characteristic history and command log queries
//   - A WebSocket stream of mirror events, filtered per client by channel
//     and service subtype
//
// The server follows the same lifecycle as the other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// The API is intended for a trusted LAN and carries no authentication.
package api
