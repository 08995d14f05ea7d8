// Package pjlink implements a PJLink Class 1 projector control engine and
// the MQTT bridge that exposes it to Gray Logic.
//
// # Architecture
//
//	┌─────────────────┐   MQTT   ┌──────────────────┐  TCP 4352  ┌───────────┐
//	│   Gray Logic    │◄────────►│  Bridge          │            │           │
//	│   Core / API    │          │   Projector ─────┼───────────►│ Projector │
//	└─────────────────┘          │   (queue, link,  │ one conn   │           │
//	                             │    poller)       │ per command│           │
//	                             └──────────────────┘            └───────────┘
//
// Each Projector owns a FIFO CommandQueue drained by one worker. The worker
// hands every line to a Link, which opens a fresh TCP connection, reads the
// "PJLINK 0" or "PJLINK 1 <seed>" greeting, prefixes the command with the
// challenge hash when required, writes it and waits for one response line.
// The ResponseParser turns that line into confirmed state and events.
//
// # State
//
// Confirmed state is what the projector last reported. Pending state is the
// optimistic target set by command methods. An "OK" response promotes
// pending to confirmed; an ERR2 response rolls pending back.
//
// # Events
//
// Listeners receive Event values tagged Error, Power, Input, AVMute or Lamp.
// Error events carry a bitmask: two bits per subsystem (fan, lamp,
// temperature, cover, filter, other) plus flags for connection failure,
// undefined command, unavailable time and projector failure.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
//
// # References
//
//   - PJLink specification: https://pjlink.jbmia.or.jp/english/
package pjlink
