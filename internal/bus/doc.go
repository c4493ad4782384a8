// Package bus abstracts the broadcast channel shared by all fleet nodes.
//
// The transport contract:
//   - Publish delivers a payload to every current subscriber of a channel.
//   - Messages from a single publisher arrive in publish order.
//   - Channels can be subscribed and unsubscribed at any time.
//   - At most one handler per channel, invoked synchronously in delivery order.
//
// Two implementations are provided: Redis (production, one pub/sub channel per
// symbol or node id) and Memory (tests and single-process runs).
package bus
