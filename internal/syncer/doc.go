// Package syncer coordinates the client-side sync layer.
//
// # Overview
//
// A Coordinator owns the article cache, the mutation ledger, the REST client
// and the event stream. The UI talks to nothing else: it reads collections,
// asks for the next page, and issues writes, and the coordinator keeps the
// cache consistent with the server.
//
// # Notifications
//
// Server pushes are turned into cache transitions:
//
//   - new_articles invalidates every filtered list (all, unread, favorites,
//     per-feed) and the feed counters. Search results are left alone.
//   - article_updated with an id and changed fields patches that article in
//     every collection and invalidates the feed counters.
//   - article_updated without an id, or with no fields, invalidates
//     everything.
//   - Anything else is logged and ignored.
//
// # Writes
//
// MarkRead, MarkUnread and ToggleFavorite are optimistic and go through the
// ledger. MarkAllRead flips cached copies at once but waits for the server
// before returning, restoring them if the request fails.
//
// # Pagination
//
// LoadNextPage fetches one page of a collection at a time. A collection is
// exhausted once a page comes back shorter than the page size, so a list
// whose length is an exact multiple of the page size needs one extra, empty
// request to finish.
package syncer
