// Package ui provides the terminal reader for flowreader.
//
// # Architecture Overview
//
// The UI is a Bubble Tea program styled with Lip Gloss. It never calls the
// REST API directly: every read goes through the sync coordinator's cache and
// every write goes through its optimistic mutation path, so a toggle shows up
// in the list the moment the key is pressed and snaps back if the server
// refuses it.
//
// # Data Flow
//
// The model subscribes to every cache change when it is created. The
// subscription only signals a buffered channel of size one; a command blocked
// on that channel turns the signal into a cacheChangedMsg, and the model then
// re-reads the collection it is showing. Bursts of changes therefore collapse
// into a single redraw.
//
// A collection that was invalidated, by a push notification or by a write
// that changed unread counters, is reloaded from its first page the next time
// the model sees it stale. A collection whose load failed keeps its error
// until the user presses r.
//
// # Views
//
//   - List: the current filter (unread, all, favorites), optionally narrowed
//     to one feed or replaced by a search. Pages load on demand as the cursor
//     nears the end of the loaded rows.
//   - Article: the open article, rendered from the cache. Opening an unread
//     article marks it read.
//
// # Keyboard Shortcuts
//
// Press ? inside the program for the full list. Theme, filter and feed scope
// are saved to the preferences file whenever they change.
package ui
