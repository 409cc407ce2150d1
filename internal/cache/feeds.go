package cache

import (
	"time"

	"github.com/five82/flowreader/internal/flowapi"
)

// FeedList is a snapshot of the cached feed list with unread counts.
type FeedList struct {
	Items      []flowapi.Feed
	Stale      bool
	Generation uint64
	LoadedAt   time.Time
	Err        error
}

// TotalUnread sums the unread counts of every feed.
func (f FeedList) TotalUnread() int {
	total := 0
	for _, feed := range f.Items {
		total += feed.UnreadCount
	}
	return total
}

// Feeds returns the cached feed list.
func (c *Cache) Feeds() FeedList {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.feeds
	out.Items = append([]flowapi.Feed(nil), c.feeds.Items...)
	return out
}

// BeginFeeds returns the generation a feed list fetch is issued against.
func (c *Cache) BeginFeeds() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feeds.Generation
}

// CompleteFeeds stores a fetched feed list unless it was invalidated since
// generation was handed out.
func (c *Cache) CompleteFeeds(generation uint64, feeds []flowapi.Feed) bool {
	c.mu.Lock()
	if c.feeds.Generation != generation {
		c.mu.Unlock()
		return false
	}
	c.feeds.Items = append([]flowapi.Feed(nil), feeds...)
	c.feeds.Stale = false
	c.feeds.Err = nil
	c.feeds.LoadedAt = time.Now()
	c.mu.Unlock()

	c.notify([]Change{{Feeds: true}})
	return true
}

// FailFeeds records a feed list fetch error.
func (c *Cache) FailFeeds(generation uint64, err error) bool {
	c.mu.Lock()
	if c.feeds.Generation != generation {
		c.mu.Unlock()
		return false
	}
	c.feeds.Err = err
	c.mu.Unlock()

	c.notify([]Change{{Feeds: true}})
	return true
}

// InvalidateFeeds marks the feed list stale.
func (c *Cache) InvalidateFeeds() {
	c.mu.Lock()
	c.feeds.Stale = true
	c.feeds.Generation++
	c.feeds.Err = nil
	c.mu.Unlock()

	c.notify([]Change{{Feeds: true}})
}
