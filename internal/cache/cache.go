// Package cache keeps the paginated article lists and the feed list the UI
// reads from.
//
// Each list is a Collection identified by a Key (feed, unread-only,
// favorites-only or search). Invalidating a collection marks it stale and
// bumps its generation; a fetch started against an older generation is
// discarded when it completes, so a slow response can never overwrite a
// newer reload. The same article may sit in several collections at once;
// UpdateItem patches every copy in one step.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/five82/flowreader/internal/flowapi"
)

// DefaultPageSize is used when New is given a non-positive page size.
const DefaultPageSize = 50

// Collection is a read-only snapshot of one cached, paginated article list.
type Collection struct {
	Key        Key
	Items      []flowapi.Article
	Offset     int
	Exhausted  bool
	Stale      bool
	Generation uint64
	LoadedAt   time.Time
	Err        error
}

// Ticket records the collection state a page fetch was issued against.
type Ticket struct {
	Key        Key
	Generation uint64
	Offset     int
	First      bool
	Exhausted  bool
}

// Change is delivered to subscribers after a transition. Feeds is set when the
// feed list changed; Key is then the zero value.
type Change struct {
	Key   Key
	Feeds bool
}

// Cache holds keyed article collections and the feed list. All transitions run
// under one mutex; subscribers are notified after it is released.
type Cache struct {
	mu          sync.Mutex
	pageSize    int
	collections map[Key]*Collection
	feeds       FeedList

	subMu   sync.Mutex
	nextSub int
	subs    map[int]subscription
}

type subscription struct {
	key Key
	all bool
	fn  func(Change)
}

// New builds an empty cache for pages of pageSize items.
func New(pageSize int) *Cache {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Cache{
		pageSize:    pageSize,
		collections: make(map[Key]*Collection),
		feeds:       FeedList{Stale: true},
		subs:        make(map[int]subscription),
	}
}

// PageSize returns the configured page size.
func (c *Cache) PageSize() int {
	return c.pageSize
}

// GetOrCreate returns the collection for key, creating an empty stale one on
// first use.
func (c *Cache) GetOrCreate(key Key) Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key).snapshot()
}

// View returns the collection for key without creating it.
func (c *Cache) View(key Key) (Collection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	coll, ok := c.collections[key]
	if !ok {
		return Collection{}, false
	}
	return coll.snapshot(), true
}

// Keys returns every tracked key in a stable order.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	keys := make([]Key, 0, len(c.collections))
	for k := range c.collections {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// MergePage merges one fetched page. A first page replaces the sequence and
// resets the cursor; later pages are appended as-is. A stale collection always
// treats the merge as a first page.
func (c *Cache) MergePage(key Key, items []flowapi.Article, isFirstPage bool) {
	c.mu.Lock()
	coll := c.lookup(key)
	c.merge(coll, items, isFirstPage || coll.Stale)
	c.mu.Unlock()

	c.notify([]Change{{Key: key}})
}

// Begin captures the state a fetch of the next page of key is issued against.
func (c *Cache) Begin(key Key) Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	coll := c.lookup(key)
	first := coll.Stale
	t := Ticket{Key: key, Generation: coll.Generation, First: first}
	if !first {
		t.Offset = coll.Offset
		t.Exhausted = coll.Exhausted
	}
	return t
}

// Complete merges the page fetched for t. It returns false, leaving the
// collection untouched, when the collection was invalidated or advanced since
// t was issued.
func (c *Cache) Complete(t Ticket, items []flowapi.Article) bool {
	c.mu.Lock()
	coll := c.lookup(t.Key)
	if coll.Generation != t.Generation {
		c.mu.Unlock()
		return false
	}
	if !t.First && (coll.Stale || coll.Offset != t.Offset) {
		c.mu.Unlock()
		return false
	}
	c.merge(coll, items, t.First)
	c.mu.Unlock()

	c.notify([]Change{{Key: t.Key}})
	return true
}

// Fail records a fetch error for t unless the collection moved on.
func (c *Cache) Fail(t Ticket, err error) bool {
	c.mu.Lock()
	coll := c.lookup(t.Key)
	if coll.Generation != t.Generation {
		c.mu.Unlock()
		return false
	}
	coll.Err = err
	c.mu.Unlock()

	c.notify([]Change{{Key: t.Key}})
	return true
}

// UpdateItem applies patch to every copy of id in every collection and returns
// the keys that changed.
func (c *Cache) UpdateItem(id string, patch Patch) []Key {
	if patch.IsEmpty() {
		return nil
	}
	c.mu.Lock()
	keys := c.update(id, patch)
	c.mu.Unlock()

	c.notify(changesFor(keys))
	return keys
}

// ApplyPatch captures the current values of the fields patch touches and then
// applies patch everywhere, as one step. found is false when no collection
// holds id; the patch is then a no-op.
func (c *Cache) ApplyPatch(id string, patch Patch) (prior Patch, found bool) {
	if patch.IsEmpty() {
		return Patch{}, false
	}
	c.mu.Lock()
	current, found := c.find(id)
	if !found {
		c.mu.Unlock()
		return Patch{}, false
	}
	prior = patch.Capture(current)
	keys := c.update(id, patch)
	c.mu.Unlock()

	c.notify(changesFor(keys))
	return prior, true
}

// Find returns the cached copy of id.
func (c *Cache) Find(id string) (flowapi.Article, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.find(id)
}

// FindWhere returns the ids of every cached article matching pred, once each.
func (c *Cache) FindWhere(pred func(flowapi.Article) bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]struct{})
	var ids []string
	for _, coll := range c.collections {
		for _, a := range coll.Items {
			if _, dup := seen[a.ID]; dup || !pred(a) {
				continue
			}
			seen[a.ID] = struct{}{}
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Upsert replaces every cached copy of a.ID with a, e.g. after fetching full
// content. It never inserts into a collection that does not hold the id.
func (c *Cache) Upsert(a flowapi.Article) []Key {
	c.mu.Lock()
	var keys []Key
	for key, coll := range c.collections {
		hit := false
		for i := range coll.Items {
			if coll.Items[i].ID == a.ID {
				coll.Items[i] = a
				hit = true
			}
		}
		if hit {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()

	c.notify(changesFor(keys))
	return keys
}

// Invalidate marks key stale. The next read refetches its first page.
func (c *Cache) Invalidate(key Key) {
	c.InvalidateWhere(func(k Key) bool { return k == key })
}

// InvalidateAll marks every collection stale.
func (c *Cache) InvalidateAll() []Key {
	return c.InvalidateWhere(func(Key) bool { return true })
}

// InvalidateWhere marks every collection whose key matches pred stale and
// returns the affected keys.
func (c *Cache) InvalidateWhere(pred func(Key) bool) []Key {
	c.mu.Lock()
	var keys []Key
	for key, coll := range c.collections {
		if !pred(key) {
			continue
		}
		coll.Stale = true
		coll.Generation++
		coll.Err = nil
		keys = append(keys, key)
	}
	c.mu.Unlock()

	c.notify(changesFor(keys))
	return keys
}

// Subscribe registers fn for changes to key. The returned func cancels it.
// fn runs on the goroutine that made the change and must not block.
func (c *Cache) Subscribe(key Key, fn func(Change)) func() {
	return c.addSub(subscription{key: key, fn: fn})
}

// SubscribeAll registers fn for every change, including feed list changes.
func (c *Cache) SubscribeAll(fn func(Change)) func() {
	return c.addSub(subscription{all: true, fn: fn})
}

func (c *Cache) addSub(s subscription) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = s
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Cache) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	c.subMu.Lock()
	subs := make([]subscription, 0, len(c.subs))
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, c.subs[id])
	}
	c.subMu.Unlock()

	for _, ch := range changes {
		for _, s := range subs {
			if s.all || (!ch.Feeds && s.key == ch.Key) {
				s.fn(ch)
			}
		}
	}
}

// lookup must be called with mu held.
func (c *Cache) lookup(key Key) *Collection {
	coll, ok := c.collections[key]
	if !ok {
		coll = &Collection{Key: key, Stale: true}
		c.collections[key] = coll
	}
	return coll
}

func (c *Cache) merge(coll *Collection, items []flowapi.Article, first bool) {
	if first {
		coll.Items = append([]flowapi.Article(nil), items...)
		coll.Offset = 0
	} else {
		coll.Items = append(coll.Items, items...)
	}
	coll.Offset += len(items)
	coll.Exhausted = len(items) < c.pageSize
	coll.Stale = false
	coll.Err = nil
	coll.LoadedAt = time.Now()
}

func (c *Cache) update(id string, patch Patch) []Key {
	var keys []Key
	for key, coll := range c.collections {
		changed := false
		for i := range coll.Items {
			if coll.Items[i].ID == id && patch.Apply(&coll.Items[i]) {
				changed = true
			}
		}
		if changed {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *Cache) find(id string) (flowapi.Article, bool) {
	for _, coll := range c.collections {
		for _, a := range coll.Items {
			if a.ID == id {
				return a, true
			}
		}
	}
	return flowapi.Article{}, false
}

func (coll *Collection) snapshot() Collection {
	out := *coll
	out.Items = append([]flowapi.Article(nil), coll.Items...)
	return out
}

func changesFor(keys []Key) []Change {
	if len(keys) == 0 {
		return nil
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	out := make([]Change, len(keys))
	for i, k := range keys {
		out[i] = Change{Key: k}
	}
	return out
}
