package cache

import (
	"fmt"
	"strings"
)

// Key selects one collection. Search keys never share state with filter keys.
type Key struct {
	FeedID        string
	UnreadOnly    bool
	FavoritesOnly bool
	Search        string
}

// AllKey is the unfiltered article list.
func AllKey() Key { return Key{} }

// UnreadKey is the list of unread articles across all feeds.
func UnreadKey() Key { return Key{UnreadOnly: true} }

// FavoritesKey is the list of favorited articles.
func FavoritesKey() Key { return Key{FavoritesOnly: true} }

// FeedKey lists one feed's articles, optionally unread only.
func FeedKey(feedID string, unreadOnly bool) Key {
	return Key{FeedID: strings.TrimSpace(feedID), UnreadOnly: unreadOnly}
}

// SearchKey lists the hits for a search query.
func SearchKey(q string) Key {
	return Key{Search: strings.TrimSpace(q)}
}

// IsSearch reports whether the key selects search results.
func (k Key) IsSearch() bool {
	return k.Search != ""
}

// IsFilter reports whether the key is a filter list that new server-side
// articles can appear in: not a search and not favorites.
func (k Key) IsFilter() bool {
	return !k.IsSearch() && !k.FavoritesOnly
}

func (k Key) String() string {
	switch {
	case k.IsSearch():
		return fmt.Sprintf("search:%q", k.Search)
	case k.FavoritesOnly:
		return "favorites"
	}
	scope := "all"
	if k.FeedID != "" {
		scope = "feed:" + k.FeedID
	}
	if k.UnreadOnly {
		return scope + "/unread"
	}
	return scope
}
