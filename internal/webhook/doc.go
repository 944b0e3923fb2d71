// Package webhook delivers events to externally registered HTTP endpoints.
//
// Each dispatch resolves the owner's active subscriptions for the event
// type, then POSTs the same canonical JSON body to every match
// concurrently. Bodies are signed with a per-subscription HMAC-SHA256
// secret carried in the X-Webhook-Signature header, computed over the
// exact bytes sent.
//
// Delivery is best-effort with no retry. Every attempt, successful or not,
// appends exactly one audit record; transport failures are recorded with
// status code zero and the error text.
package webhook
