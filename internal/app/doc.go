// Package app is the composition root for flowreader.
//
// Setup turns a config file plus command-line overrides into a Runtime: a
// zap logger, the REST client, the status store, the event stream and the
// sync coordinator, all wired together but not yet started. Run starts the
// stream and the resync poller and hands the coordinator to the TUI. Watch
// does the same without a TUI and prints each notification as it arrives.
//
// # Resync Poller
//
// The event stream is the primary source of change notifications. The poller
// is a fallback that reloads the feed list on a fixed interval and
// invalidates the filtered article lists when any unread counter moved. After
// a failure it retries sooner with exponential backoff, never waiting longer
// than the configured interval.
package app
