package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/five82/flowreader/internal/cache"
	"github.com/five82/flowreader/internal/prefs"
	"github.com/five82/flowreader/internal/state"
	"github.com/five82/flowreader/internal/syncer"
)

// View represents the current active view.
type View int

const (
	ViewList View = iota
	ViewArticle
)

// Options configure the TUI.
type Options struct {
	Context     context.Context
	Coordinator *syncer.Coordinator
	Store       *state.Store
	Prefs       prefs.Prefs
	PrefsPath   string // empty uses default ~/.config/flowreader/prefs.toml
	Logger      *zap.Logger
	PollTick    time.Duration
}

// Model is the Bubble Tea model for the reader.
type Model struct {
	ctx       context.Context
	coord     *syncer.Coordinator
	store     *state.Store
	prefs     prefs.Prefs
	prefsPath string
	logger    *zap.Logger
	pollTick  time.Duration
	keys      keyMap

	// Cache subscription
	changes     chan struct{}
	unsubscribe func()

	// UI state
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool

	// List state
	filter       string
	feedID       string
	query        string
	searching    bool
	searchInput  textinput.Model
	list         cache.Collection
	feeds        cache.FeedList
	selected     int
	offset       int
	loading      bool
	feedsLoading bool

	// Article state
	articleID string
	detail    viewport.Model

	// Status
	snapshot state.Snapshot
	pending  int
	flash    string
	flashErr bool
	flashAt  time.Time
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = DefaultUIInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	input := textinput.New()
	input.Placeholder = "Search articles..."
	input.Prompt = "/ "
	input.CharLimit = 200

	m := Model{
		ctx:         ctx,
		coord:       opts.Coordinator,
		store:       opts.Store,
		prefs:       opts.Prefs,
		prefsPath:   prefsPath,
		logger:      logger.Named("ui"),
		pollTick:    pollTick,
		keys:        DefaultKeyMap(),
		theme:       GetTheme(opts.Prefs.Theme),
		currentView: ViewList,
		filter:      startupFilter(opts.Prefs.Filter),
		feedID:      strings.TrimSpace(opts.Prefs.Feed),
		searchInput: input,
	}

	if m.coord != nil {
		changes := make(chan struct{}, 1)
		m.changes = changes
		m.unsubscribe = m.coord.SubscribeAll(func(cache.Change) {
			select {
			case changes <- struct{}{}:
			default:
			}
		})
		m.refresh()
	}
	return m
}

func startupFilter(filter string) string {
	switch filter {
	case prefs.FilterAll, prefs.FilterUnread, prefs.FilterFavorites:
		return filter
	default:
		return prefs.FilterUnread
	}
}

// Close releases the cache subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tickCmd(m.pollTick),
		waitForChange(m.ctx, m.changes),
	}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.detail = viewport.New(m.width, m.bodyHeight())
		}
		m.ready = true
		m.detail.Width = m.width
		m.detail.Height = m.bodyHeight()
		m.refresh()
		cmd := m.ensureLoaded()
		return m, cmd

	case cacheChangedMsg:
		m.refresh()
		cmd := tea.Batch(waitForChange(m.ctx, m.changes), m.ensureLoaded(), m.maybeLoadMore())
		return m, cmd

	case pageLoadedMsg:
		if msg.key == m.currentKey() {
			m.loading = false
		}
		switch {
		case msg.err == nil:
		case errors.Is(msg.err, syncer.ErrLoadInProgress), errors.Is(msg.err, syncer.ErrSuperseded):
		default:
			m.setFlash(msg.err.Error(), true)
		}
		m.refresh()
		cmd := tea.Batch(m.ensureLoaded(), m.maybeLoadMore())
		return m, cmd

	case feedsLoadedMsg:
		m.feedsLoading = false
		if msg.err != nil {
			m.setFlash(msg.err.Error(), true)
		}
		m.refresh()
		return m, nil

	case articleLoadedMsg:
		if msg.err != nil {
			m.setFlash(msg.err.Error(), true)
		}
		m.refresh()
		return m, nil

	case mutationSettledMsg:
		if msg.err != nil {
			m.setFlash(fmt.Sprintf("%s failed: %v", msg.label, msg.err), true)
		}
		m.refresh()
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.setFlash(msg.err.Error(), true)
		} else if msg.text != "" {
			m.setFlash(msg.text, false)
		}
		m.refresh()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	switch m.currentView {
	case ViewArticle:
		b.WriteString(m.detail.View())
	default:
		b.WriteString(m.renderList())
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	if m.searching {
		return m.handleSearchInput(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		if m.currentView == ViewArticle {
			m.updateDetail()
		}
		return m, nil

	case key.Matches(msg, m.keys.ToggleRead):
		cmd := m.toggleRead()
		return m, cmd

	case key.Matches(msg, m.keys.Favorite):
		cmd := m.toggleFavorite()
		return m, cmd

	case key.Matches(msg, m.keys.Summarize):
		if a, ok := m.current(); ok {
			m.setFlash("summary requested", false)
			return m, summarizeCmd(m.ctx, m.coord, a.ID)
		}
		return m, nil
	}

	switch m.currentView {
	case ViewArticle:
		return m.handleArticleKey(msg)
	default:
		return m.handleListKey(msg)
	}
}

// handleListKey processes keyboard input for the article list.
func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		if m.query != "" {
			m.query = ""
			m.searchInput.SetValue("")
			cmd := m.switchList()
			return m, cmd
		}
		return m, nil

	case key.Matches(msg, m.keys.CycleFilter):
		m.cycleFilter()
		m.savePrefs()
		cmd := m.switchList()
		return m, cmd

	case key.Matches(msg, m.keys.NextFeed):
		m.cycleFeed(1)
		m.savePrefs()
		cmd := m.switchList()
		return m, cmd

	case key.Matches(msg, m.keys.PrevFeed):
		m.cycleFeed(-1)
		m.savePrefs()
		cmd := m.switchList()
		return m, cmd

	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.searchInput.SetValue(m.query)
		m.searchInput.CursorEnd()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.Refresh):
		if m.coord != nil {
			m.coord.Cache().Invalidate(m.currentKey())
			m.coord.Cache().InvalidateFeeds()
		}
		m.refresh()
		cmd := m.ensureLoaded()
		return m, cmd

	case key.Matches(msg, m.keys.MarkAllRead):
		if m.coord == nil || m.query != "" {
			return m, nil
		}
		return m, markAllReadCmd(m.ctx, m.coord, m.feedID)

	case key.Matches(msg, m.keys.Open):
		cmd := m.openSelected()
		return m, cmd
	}

	count := len(m.list.Items)
	if count == 0 {
		return m, nil
	}
	page := maxInt(1, m.bodyHeight())
	switch {
	case key.Matches(msg, m.keys.Down):
		m.selected++
	case key.Matches(msg, m.keys.Up):
		m.selected--
	case key.Matches(msg, m.keys.Top):
		m.selected = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selected = count - 1
	case key.Matches(msg, m.keys.PageDown):
		m.selected += page
	case key.Matches(msg, m.keys.PageUp):
		m.selected -= page
	case key.Matches(msg, m.keys.HalfPageDown):
		m.selected += page / 2
	case key.Matches(msg, m.keys.HalfPageUp):
		m.selected -= page / 2
	}
	m.clampSelection()
	cmd := m.maybeLoadMore()
	return m, cmd
}

// handleArticleKey processes keyboard input while an article is open.
func (m Model) handleArticleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.currentView = ViewList
		m.articleID = ""
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.detail.ScrollDown(1)
	case key.Matches(msg, m.keys.Up):
		m.detail.ScrollUp(1)
	case key.Matches(msg, m.keys.Top):
		m.detail.GotoTop()
	case key.Matches(msg, m.keys.Bottom):
		m.detail.GotoBottom()
	case key.Matches(msg, m.keys.PageDown):
		m.detail.PageDown()
	case key.Matches(msg, m.keys.PageUp):
		m.detail.PageUp()
	case key.Matches(msg, m.keys.HalfPageDown):
		m.detail.HalfPageDown()
	case key.Matches(msg, m.keys.HalfPageUp):
		m.detail.HalfPageUp()
	}
	return m, nil
}

// handleSearchInput handles keyboard input while the search prompt is focused.
func (m Model) handleSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		m.searching = false
		m.searchInput.Blur()
		m.query = strings.TrimSpace(m.searchInput.Value())
		m.currentView = ViewList
		cmd := m.switchList()
		return m, cmd

	case key.Matches(msg, m.keys.Escape):
		m.searching = false
		m.searchInput.Blur()
		m.searchInput.SetValue(m.query)
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// currentKey identifies the collection the list shows.
func (m Model) currentKey() cache.Key {
	if m.query != "" {
		return cache.SearchKey(m.query)
	}
	return cache.Key{
		FeedID:        m.feedID,
		UnreadOnly:    m.filter == prefs.FilterUnread,
		FavoritesOnly: m.filter == prefs.FilterFavorites,
	}
}

// cycleFilter cycles through unread, all and favorites.
func (m *Model) cycleFilter() {
	switch m.filter {
	case prefs.FilterUnread:
		m.filter = prefs.FilterAll
	case prefs.FilterAll:
		m.filter = prefs.FilterFavorites
	default:
		m.filter = prefs.FilterUnread
	}
}

// filterLabel returns the display label for the current filter.
func (m Model) filterLabel() string {
	if m.query != "" {
		return "Search"
	}
	switch m.filter {
	case prefs.FilterAll:
		return "All"
	case prefs.FilterFavorites:
		return "Favorites"
	default:
		return "Unread"
	}
}

// cycleFeed moves the feed scope by delta, wrapping through "all feeds".
func (m *Model) cycleFeed(delta int) {
	ids := []string{""}
	for _, f := range m.feeds.Items {
		ids = append(ids, f.ID)
	}
	pos := 0
	for i, id := range ids {
		if id == m.feedID {
			pos = i
			break
		}
	}
	pos = (pos + delta + len(ids)) % len(ids)
	m.feedID = ids[pos]
}

// feedTitle names the feed scope shown in the header.
func (m Model) feedTitle() string {
	if m.feedID == "" {
		return "All feeds"
	}
	for _, f := range m.feeds.Items {
		if f.ID == m.feedID {
			return f.DisplayTitle()
		}
	}
	return m.feedID
}

// switchList resets the cursor after the list key changed and loads it if needed.
func (m *Model) switchList() tea.Cmd {
	m.selected = 0
	m.offset = 0
	m.loading = false
	m.refresh()
	return m.ensureLoaded()
}

// refresh re-reads the cache after any change.
func (m *Model) refresh() {
	if m.coord == nil {
		return
	}
	m.list = m.coord.View(m.currentKey())
	m.feeds = m.coord.Feeds()
	m.pending = len(m.coord.Pending())
	m.clampSelection()
	if m.currentView == ViewArticle {
		m.updateDetail()
	}
}

// ensureLoaded starts fetches for an invalidated list or feed list. Failed
// loads wait for an explicit refresh.
func (m *Model) ensureLoaded() tea.Cmd {
	if m.coord == nil {
		return nil
	}
	var cmds []tea.Cmd
	if m.list.Stale && m.list.Err == nil && !m.loading {
		m.loading = true
		cmds = append(cmds, loadPageCmd(m.ctx, m.coord, m.currentKey()))
	}
	if m.feeds.Stale && m.feeds.Err == nil && !m.feedsLoading {
		m.feedsLoading = true
		cmds = append(cmds, loadFeedsCmd(m.ctx, m.coord))
	}
	return tea.Batch(cmds...)
}

// maybeLoadMore requests the next page once the selection nears the end.
func (m *Model) maybeLoadMore() tea.Cmd {
	if m.coord == nil || m.loading || m.list.Stale || m.list.Exhausted || m.list.Err != nil {
		return nil
	}
	if m.selected < len(m.list.Items)-PrefetchThreshold {
		return nil
	}
	m.loading = true
	return loadPageCmd(m.ctx, m.coord, m.currentKey())
}

// clampSelection keeps the selection inside the list and scrolled into view.
func (m *Model) clampSelection() {
	count := len(m.list.Items)
	if m.selected >= count {
		m.selected = count - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
	height := maxInt(1, m.bodyHeight())
	if m.selected < m.offset {
		m.offset = m.selected
	}
	if m.selected >= m.offset+height {
		m.offset = m.selected - height + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

// bodyHeight is the number of rows between the header and the footer.
func (m Model) bodyHeight() int {
	return maxInt(1, m.height-2)
}

// setFlash shows a transient footer message.
func (m *Model) setFlash(text string, isErr bool) {
	m.flash = text
	m.flashErr = isErr
	m.flashAt = time.Now()
	if isErr {
		m.logger.Warn("ui action failed", zap.String("message", text))
	}
}

// savePrefs persists the theme and list scope.
func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	m.prefs.Theme = m.theme.Name
	m.prefs.Filter = m.filter
	m.prefs.Feed = m.feedID
	if err := prefs.Save(m.prefsPath, m.prefs); err != nil {
		m.logger.Warn("save prefs failed", zap.Error(err))
	}
}

// handleTick processes the polling tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.flash != "" && time.Since(m.flashAt) > FlashDuration {
		m.flash = ""
	}
	if m.coord != nil {
		m.pending = len(m.coord.Pending())
	}
	return m, tea.Batch(cmds...)
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	if opts.Coordinator == nil {
		return errors.New("coordinator required")
	}
	m := New(opts)
	defer m.Close()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
