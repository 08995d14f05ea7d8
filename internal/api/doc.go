// Package api implements the HTTP REST API and WebSocket server for pjlinkd.
//
// This package provides:
//   - REST endpoints to list projectors, read state and statistics, submit
//     commands and page through the event history
//   - A WebSocket hub that streams engine events as they happen
//   - Prometheus metrics on /metrics
//   - Optional JWT bearer authentication with role-based permissions
//
// # Architecture
//
// The server reads from the PJLink bridge through the Fleet interface and
// registers its hub and metrics as bridge listeners. Commands submitted over
// HTTP go through the same dispatcher as MQTT commands, so validation and
// error codes match on both surfaces.
//
// # Security
//
// When security.jwt.secret is empty every caller is treated as an anonymous
// admin. Otherwise requests need a bearer token signed with HS256; WebSocket
// clients may pass it as the token query parameter.
package api
