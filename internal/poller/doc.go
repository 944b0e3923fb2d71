// Package poller detects new conversation and message rows by periodically
// querying the store, substituting for a change-data-capture feed.
//
// One polling goroutine runs per user with at least one open stream
// connection. Each tick reads rows created since a per-user watermark and
// publishes one typed event per row: conversation_started for new
// conversations, message_received or agent_responded for new messages
// depending on the author role.
//
// The watermark advances to the newest created_at observed, pulled back by
// a small overlap so rows whose timestamps tie across two poll windows are
// re-read rather than missed. A TTL cache keyed by row id suppresses the
// duplicate announcements that overlap would otherwise produce.
//
// Detection latency is bounded by the poll interval. Rows created while a
// user has no open connection are never announced retroactively.
package poller
