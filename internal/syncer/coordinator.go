package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/five82/flowreader/internal/cache"
	"github.com/five82/flowreader/internal/events"
	"github.com/five82/flowreader/internal/flowapi"
	"github.com/five82/flowreader/internal/ledger"
)

// DefaultRequestTimeout bounds page and feed fetches.
const DefaultRequestTimeout = 30 * time.Second

var (
	// ErrLoadInProgress is returned when a page of the same collection
	// generation is already being fetched.
	ErrLoadInProgress = errors.New("page load already in progress")
	// ErrSuperseded is returned when a fetched page arrived after its
	// collection was invalidated and was dropped.
	ErrSuperseded = errors.New("page superseded by invalidation")
	// ErrNotCached is returned for commands that need a cached copy of the
	// article to compute their effect.
	ErrNotCached = errors.New("article not cached")
)

// API is the REST surface the coordinator drives.
type API interface {
	flowapi.ArticleSource
	flowapi.ArticleWriter
}

// Stream is the push channel the coordinator listens on.
type Stream interface {
	Start(handler events.Handler) error
	Stop()
}

// Options configures a Coordinator.
type Options struct {
	Cache          *cache.Cache
	API            API
	Stream         Stream
	RequestTimeout time.Duration
	// MutationTimeout bounds each remote write; zero uses the ledger default.
	MutationTimeout time.Duration
	// OnRollback is told about every failed optimistic write.
	OnRollback func(*ledger.PendingMutation)
	// Observe sees every notification after it was applied.
	Observe func(events.Notification)
	Logger  *zap.Logger
}

// Coordinator wires the cache, the mutation ledger, the REST client and the
// event stream together. It is the only type the UI talks to.
type Coordinator struct {
	cache   *cache.Cache
	api     API
	stream  Stream
	ledger  *ledger.Ledger
	timeout time.Duration
	observe func(events.Notification)
	logger  *zap.Logger

	mu       sync.Mutex
	inflight map[cache.Key]uint64
	started  bool
	// writes counts local and pushed flag changes per article.
	writes map[string]flagWrites
	// counters are the unread counts seen by the last Resync.
	counters map[string]int
}

// flagWrites counts changes to the membership-relevant flags of an article.
type flagWrites struct {
	read     uint64
	favorite uint64
}

// flagSet names the flags a write touches.
type flagSet struct {
	read     bool
	favorite bool
}

func (f flagSet) union(o flagSet) flagSet {
	return flagSet{read: f.read || o.read, favorite: f.favorite || o.favorite}
}

func flagsOf(p cache.Patch) flagSet {
	return flagSet{read: p.IsRead != nil, favorite: p.IsFavorite != nil}
}

// New builds a coordinator. Cache and API are required.
func New(opts Options) (*Coordinator, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("cache required")
	}
	if opts.API == nil {
		return nil, fmt.Errorf("api client required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	c := &Coordinator{
		cache:    opts.Cache,
		api:      opts.API,
		stream:   opts.Stream,
		timeout:  timeout,
		observe:  opts.Observe,
		logger:   logger.Named("sync"),
		inflight: make(map[cache.Key]uint64),
		writes:   make(map[string]flagWrites),
	}
	c.ledger = ledger.New(opts.Cache, ledger.Options{
		Timeout: opts.MutationTimeout,
		// Unread counters cannot be predicted locally.
		OnCommit:   func(*ledger.PendingMutation) { c.cache.InvalidateFeeds() },
		OnRollback: opts.OnRollback,
		Logger:     logger,
	})
	return c, nil
}

// Cache exposes the underlying cache for read-only use.
func (c *Coordinator) Cache() *cache.Cache {
	return c.cache
}

// Start begins listening for server notifications.
func (c *Coordinator) Start() error {
	if c.stream == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if err := c.stream.Start(c.OnNotification); err != nil {
		return fmt.Errorf("start event stream: %w", err)
	}
	c.started = true
	return nil
}

// Stop closes the event stream and waits for outstanding writes to settle.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	started := c.started
	c.started = false
	c.mu.Unlock()

	if started {
		c.stream.Stop()
	}
	c.ledger.Wait()
}

// OnNotification turns a server push into cache invalidations.
func (c *Coordinator) OnNotification(n events.Notification) {
	c.apply(n)
	if c.observe != nil {
		c.observe(n)
	}
}

func (c *Coordinator) apply(n events.Notification) {
	switch n := n.(type) {
	case events.NewArticles:
		keys := c.cache.InvalidateWhere(cache.Key.IsFilter)
		c.cache.InvalidateFeeds()
		c.logger.Debug("new articles",
			zap.String("feed", n.FeedID),
			zap.Int("count", n.Count),
			zap.Int("invalidated", len(keys)))
	case events.ArticleUpdated:
		if !n.HasChanges() {
			c.RefreshAll()
			c.logger.Debug("article updated without detail, refreshing everything")
			return
		}
		patch := cache.Patch{IsRead: n.IsRead, IsFavorite: n.IsFavorite, Summary: n.Summary}
		// A local write still in flight owns its field until it settles.
		pending := c.pendingFlags(n.ID)
		if pending.read {
			patch.IsRead = nil
		}
		if pending.favorite {
			patch.IsFavorite = nil
		}
		if patch.IsEmpty() {
			c.logger.Debug("article update shadowed by pending writes", zap.String("article", n.ID))
			return
		}
		keys := c.cache.UpdateItem(n.ID, patch)
		c.recordWrite(n.ID, flagsOf(patch))

		// Membership of these views depends on the pushed flags.
		touched := flagsOf(patch)
		stale := c.cache.InvalidateWhere(func(k cache.Key) bool {
			return (touched.favorite && k.FavoritesOnly) ||
				(touched.read && (k.UnreadOnly || k.IsSearch()))
		})
		c.cache.InvalidateFeeds()
		c.logger.Debug("article updated",
			zap.String("article", n.ID),
			zap.Strings("fields", patch.Fields()),
			zap.Int("collections", len(keys)),
			zap.Int("invalidated", len(stale)))
	default:
		c.logger.Debug("ignoring notification", zap.String("type", string(n.Kind())))
	}
}

// RefreshAll marks every collection and the feed list stale.
func (c *Coordinator) RefreshAll() {
	c.cache.InvalidateAll()
	c.cache.InvalidateFeeds()
}

// Resync reloads the feed list and invalidates the filter collections when
// the unread counters moved since the previous Resync. It catches changes
// whose notifications were lost while the stream was down. Feed loads made
// elsewhere do not move the baseline.
func (c *Coordinator) Resync(ctx context.Context) (bool, error) {
	next, err := c.LoadFeeds(ctx)
	if err != nil {
		return false, err
	}
	counts := make(map[string]int, len(next.Items))
	for _, f := range next.Items {
		counts[f.ID] = f.UnreadCount
	}
	c.mu.Lock()
	prev := c.counters
	c.counters = counts
	c.mu.Unlock()

	if prev == nil || sameCounters(prev, counts) {
		return false, nil
	}
	keys := c.cache.InvalidateWhere(cache.Key.IsFilter)
	c.logger.Info("unread counters changed, resynchronizing",
		zap.Int("unread", next.TotalUnread()),
		zap.Int("invalidated", len(keys)))
	return true, nil
}

func sameCounters(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for id, n := range a {
		if m, ok := b[id]; !ok || m != n {
			return false
		}
	}
	return true
}

// recordWrite notes that the given flags of id changed locally.
func (c *Coordinator) recordWrite(id string, f flagSet) {
	if !f.read && !f.favorite {
		return
	}
	c.mu.Lock()
	w := c.writes[id]
	if f.read {
		w.read++
	}
	if f.favorite {
		w.favorite++
	}
	c.writes[id] = w
	c.mu.Unlock()
}

func (c *Coordinator) writeCount(id string) flagWrites {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[id]
}

// pendingFlags reports which flags of id have a write awaiting the server.
func (c *Coordinator) pendingFlags(id string) flagSet {
	var f flagSet
	for _, m := range c.ledger.Pending() {
		if m.ArticleID == id {
			f = f.union(flagsOf(m.Patch))
		}
	}
	return f
}

// View returns the collection for key, creating an empty stale one first.
func (c *Coordinator) View(key cache.Key) cache.Collection {
	return c.cache.GetOrCreate(key)
}

// Feeds returns the cached feed list.
func (c *Coordinator) Feeds() cache.FeedList {
	return c.cache.Feeds()
}

// Subscribe registers fn for changes to key.
func (c *Coordinator) Subscribe(key cache.Key, fn func(cache.Change)) func() {
	return c.cache.Subscribe(key, fn)
}

// SubscribeAll registers fn for every cache change.
func (c *Coordinator) SubscribeAll(fn func(cache.Change)) func() {
	return c.cache.SubscribeAll(fn)
}

// NeedsLoad reports whether key has never loaded or was invalidated.
func (c *Coordinator) NeedsLoad(key cache.Key) bool {
	coll, ok := c.cache.View(key)
	return !ok || coll.Stale
}

// LoadNextPage fetches the next page of key, or its first page when the
// collection is stale, and returns the merged collection. An exhausted, fresh
// collection is returned without a request.
func (c *Coordinator) LoadNextPage(ctx context.Context, key cache.Key) (cache.Collection, error) {
	ticket := c.cache.Begin(key)
	if ticket.Exhausted {
		return c.cache.GetOrCreate(key), nil
	}

	c.mu.Lock()
	if gen, busy := c.inflight[key]; busy && gen == ticket.Generation {
		c.mu.Unlock()
		return c.cache.GetOrCreate(key), ErrLoadInProgress
	}
	c.inflight[key] = ticket.Generation
	c.mu.Unlock()
	defer c.release(key, ticket.Generation)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	items, err := c.fetch(ctx, key, ticket.Offset)
	if err != nil {
		c.cache.Fail(ticket, err)
		c.logger.Warn("page load failed", zap.Stringer("key", key), zap.Error(err))
		return c.cache.GetOrCreate(key), fmt.Errorf("load %s: %w", key, err)
	}
	if !c.cache.Complete(ticket, items) {
		c.logger.Debug("discarding superseded page",
			zap.Stringer("key", key),
			zap.Uint64("generation", ticket.Generation))
		return c.cache.GetOrCreate(key), ErrSuperseded
	}
	return c.cache.GetOrCreate(key), nil
}

func (c *Coordinator) release(key cache.Key, gen uint64) {
	c.mu.Lock()
	if c.inflight[key] == gen {
		delete(c.inflight, key)
	}
	c.mu.Unlock()
}

func (c *Coordinator) fetch(ctx context.Context, key cache.Key, offset int) ([]flowapi.Article, error) {
	limit := c.cache.PageSize()
	if key.IsSearch() {
		return c.api.SearchArticles(ctx, key.Search, limit, offset)
	}
	return c.api.ListArticles(ctx, flowapi.ArticleQuery{
		Limit:         limit,
		Offset:        offset,
		UnreadOnly:    key.UnreadOnly,
		FavoritesOnly: key.FavoritesOnly,
		FeedID:        key.FeedID,
	})
}

// LoadFeeds refreshes the feed list and its unread counters.
func (c *Coordinator) LoadFeeds(ctx context.Context) (cache.FeedList, error) {
	gen := c.cache.BeginFeeds()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	feeds, err := c.api.ListFeeds(ctx)
	if err != nil {
		c.cache.FailFeeds(gen, err)
		return c.cache.Feeds(), fmt.Errorf("load feeds: %w", err)
	}
	c.cache.CompleteFeeds(gen, feeds)
	return c.cache.Feeds(), nil
}

// Article fetches the full article and writes it back into every collection
// holding it. A flag that had a write in flight at any point during the fetch
// keeps its cached value, since the response may predate that write.
func (c *Coordinator) Article(ctx context.Context, id string) (flowapi.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	before := c.writeCount(id)
	keep := c.pendingFlags(id)

	a, err := c.api.GetArticle(ctx, id)
	if err != nil {
		return flowapi.Article{}, fmt.Errorf("load article %s: %w", id, err)
	}

	after := c.writeCount(id)
	keep = keep.union(c.pendingFlags(id))
	keep.read = keep.read || after.read != before.read
	keep.favorite = keep.favorite || after.favorite != before.favorite

	if cached, ok := c.cache.Find(id); ok {
		if keep.read {
			a.IsRead, a.ReadAt = cached.IsRead, cached.ReadAt
		}
		if keep.favorite {
			a.IsFavorite = cached.IsFavorite
		}
	}
	c.cache.Upsert(a)
	return a, nil
}

// ApplyMutation performs an optimistic write through the ledger.
func (c *Coordinator) ApplyMutation(ctx context.Context, id string, patch cache.Patch, remote ledger.RemoteCall) *ledger.PendingMutation {
	m := c.ledger.Perform(ctx, id, patch, remote)
	c.recordWrite(id, flagsOf(patch))
	return m
}

// Pending lists writes still awaiting the server.
func (c *Coordinator) Pending() []*ledger.PendingMutation {
	return c.ledger.Pending()
}

// MarkRead optimistically marks id read.
func (c *Coordinator) MarkRead(ctx context.Context, id string) *ledger.PendingMutation {
	return c.ApplyMutation(ctx, id, cache.ReadPatch(true), func(ctx context.Context) error {
		_, err := c.api.MarkRead(ctx, id)
		return err
	})
}

// MarkUnread optimistically clears the read flag on id.
func (c *Coordinator) MarkUnread(ctx context.Context, id string) *ledger.PendingMutation {
	return c.ApplyMutation(ctx, id, cache.ReadPatch(false), func(ctx context.Context) error {
		_, err := c.api.MarkUnread(ctx, id)
		return err
	})
}

// ToggleFavorite flips the cached favorite flag of id. The server's answer is
// written back if it disagrees with the optimistic value.
func (c *Coordinator) ToggleFavorite(ctx context.Context, id string) (*ledger.PendingMutation, error) {
	current, ok := c.cache.Find(id)
	if !ok {
		return nil, fmt.Errorf("toggle favorite %s: %w", id, ErrNotCached)
	}
	want := !current.IsFavorite
	return c.ApplyMutation(ctx, id, cache.FavoritePatch(want), func(ctx context.Context) error {
		got, err := c.api.ToggleFavorite(ctx, id)
		if err != nil {
			return err
		}
		if got != want {
			c.cache.UpdateItem(id, cache.FavoritePatch(got))
		}
		return nil
	}), nil
}

// MarkAllRead marks every article of feedID read, or every article when
// feedID is empty. Cached copies flip right away and are restored if the
// server rejects the request.
func (c *Coordinator) MarkAllRead(ctx context.Context, feedID string) (string, error) {
	feedID = strings.TrimSpace(feedID)
	ids := c.cache.FindWhere(func(a flowapi.Article) bool {
		return !a.IsRead && (feedID == "" || a.FeedID == feedID)
	})

	priors := make(map[string]cache.Patch, len(ids))
	for _, id := range ids {
		if prior, found := c.cache.ApplyPatch(id, cache.ReadPatch(true)); found {
			priors[id] = prior
			c.recordWrite(id, flagSet{read: true})
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		msg string
		err error
	)
	if feedID == "" {
		msg, err = c.api.MarkAllReadGlobal(ctx)
	} else {
		msg, err = c.api.MarkAllRead(ctx, feedID)
	}
	if err != nil {
		for id, prior := range priors {
			c.cache.UpdateItem(id, prior)
			c.recordWrite(id, flagSet{read: true})
		}
		c.logger.Warn("mark all read rolled back",
			zap.String("feed", feedID),
			zap.Int("articles", len(priors)),
			zap.Error(err))
		return "", fmt.Errorf("mark all read: %w", err)
	}

	c.cache.InvalidateWhere(func(k cache.Key) bool {
		return k.UnreadOnly && (feedID == "" || k.FeedID == "" || k.FeedID == feedID)
	})
	c.cache.InvalidateFeeds()
	return msg, nil
}

// Summarize asks the server for a summary of id. The summary arrives later
// through an article_updated notification.
func (c *Coordinator) Summarize(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.api.Summarize(ctx, id); err != nil {
		return fmt.Errorf("summarize %s: %w", id, err)
	}
	return nil
}
