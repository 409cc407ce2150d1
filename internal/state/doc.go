// Package state holds the connection and sync status shown by the UI.
//
// The event stream, the resync poller and the mutation ledger report into a
// Store from their own goroutines; the UI reads copies through Snapshot on
// every tick. Nothing in here touches article data, which lives in the cache.
package state
