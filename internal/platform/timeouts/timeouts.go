// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// InternalRequest caps a single internal service-to-service HTTP call,
// such as the chat gateway asking the teams service about membership.
const InternalRequest = 3 * time.Second

// LeaveGrace is how long a room keeps a departed identity's seat warm so a
// quick reconnect does not produce a presence broadcast storm.
const LeaveGrace = 3 * time.Second
