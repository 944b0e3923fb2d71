// Package stream implements the live-push side of event distribution.
//
// # Connections
//
// A Connection is one open server-sent-events stream held by a verified
// user. Connections are pure in-process state: they are created when the
// stream endpoint accepts a request, tracked in the Registry, and destroyed
// on peer disconnect, heartbeat failure, or the age ceiling. Nothing about
// a connection survives a restart; clients are expected to reconnect.
//
// # Registry
//
// The Registry indexes connections by id and by owner. Owners with at least
// one open connection are considered active: the registry fires an onFirst
// hook when an owner's first connection registers and an onLast hook when
// their last one leaves, which the gateway uses to start and stop the
// per-user change poller.
//
// # Delivery semantics
//
// The Broadcaster delivers each event at most once per connection, with no
// acknowledgment, buffering, or retry. Targeted events reach every
// connection of one owner; global events reach everyone. A connection whose
// push fails is unregistered and never written to again.
//
// # Heartbeats
//
// Each connection gets a heartbeat goroutine that doubles as the liveness
// detector: SSE peers rarely signal disconnect explicitly, so a failed
// heartbeat push is what evicts a dead connection. The same loop enforces
// the maximum connection age.
package stream
