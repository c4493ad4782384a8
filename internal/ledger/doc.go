// Package ledger is the client boundary to the remote options ledger.
//
// The ledger owns all quote and trade state; this package only queries and
// mutates it. Amounts cross the wire as fixed-precision decimal strings with
// a unit suffix (e.g. "10.500000dai"); Coin keeps that arithmetic in a
// decimal representation end to end, never binary floating point.
//
// Calls are not retried here. A failed call surfaces to the reconciliation
// pass boundary, which logs it and waits for the next periodic trigger.
package ledger
