// Package maker implements the quote reconciliation engine.
//
// The engine reconciles a local view of market state against the remote
// ledger's quotes and trades. It runs from two triggers: ledger block
// notifications and target price/premium updates derived from the node's own
// feed. At most one reconciliation pass runs at a time; a trigger that
// arrives mid-pass is dropped, not queued; triggers recur frequently enough
// that the next one carries fresher data anyway.
//
// All backing arithmetic is decimal (ledger-bound); pricing math is float.
package maker
