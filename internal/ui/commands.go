package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/flowreader/internal/cache"
	"github.com/five82/flowreader/internal/flowapi"
	"github.com/five82/flowreader/internal/ledger"
	"github.com/five82/flowreader/internal/state"
	"github.com/five82/flowreader/internal/syncer"
)

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

// cacheChangedMsg is sent after any cache transition. Bursts coalesce into one.
type cacheChangedMsg struct{}

type pageLoadedMsg struct {
	key cache.Key
	err error
}

type feedsLoadedMsg struct {
	err error
}

type articleLoadedMsg struct {
	id  string
	err error
}

// mutationSettledMsg reports the outcome of an optimistic write.
type mutationSettledMsg struct {
	label string
	err   error
}

// actionDoneMsg reports a synchronous server action.
type actionDoneMsg struct {
	text string
	err  error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func waitForChange(ctx context.Context, changes <-chan struct{}) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-changes:
			return cacheChangedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func loadPageCmd(ctx context.Context, coord *syncer.Coordinator, key cache.Key) tea.Cmd {
	return func() tea.Msg {
		_, err := coord.LoadNextPage(ctx, key)
		return pageLoadedMsg{key: key, err: err}
	}
}

func loadFeedsCmd(ctx context.Context, coord *syncer.Coordinator) tea.Cmd {
	return func() tea.Msg {
		_, err := coord.LoadFeeds(ctx)
		return feedsLoadedMsg{err: err}
	}
}

func loadArticleCmd(ctx context.Context, coord *syncer.Coordinator, id string) tea.Cmd {
	return func() tea.Msg {
		_, err := coord.Article(ctx, id)
		return articleLoadedMsg{id: id, err: err}
	}
}

// awaitMutation waits for m to settle. Rollbacks surface as errors.
func awaitMutation(ctx context.Context, label string, m *ledger.PendingMutation) tea.Cmd {
	if m == nil {
		return nil
	}
	return func() tea.Msg {
		return mutationSettledMsg{label: label, err: m.Wait(ctx)}
	}
}

func markAllReadCmd(ctx context.Context, coord *syncer.Coordinator, feedID string) tea.Cmd {
	return func() tea.Msg {
		text, err := coord.MarkAllRead(ctx, feedID)
		if err == nil && text == "" {
			text = "marked all read"
		}
		return actionDoneMsg{text: text, err: err}
	}
}

func summarizeCmd(ctx context.Context, coord *syncer.Coordinator, id string) tea.Cmd {
	if coord == nil {
		return nil
	}
	return func() tea.Msg {
		return actionDoneMsg{err: coord.Summarize(ctx, id)}
	}
}

// Actions

// current returns the article under the cursor, or the open article.
func (m Model) current() (flowapi.Article, bool) {
	if m.coord == nil {
		return flowapi.Article{}, false
	}
	if m.currentView == ViewArticle && m.articleID != "" {
		return m.coord.Cache().Find(m.articleID)
	}
	if m.selected < 0 || m.selected >= len(m.list.Items) {
		return flowapi.Article{}, false
	}
	return m.list.Items[m.selected], true
}

// openSelected shows the selected article, fetches its full content and marks
// it read.
func (m *Model) openSelected() tea.Cmd {
	a, ok := m.current()
	if !ok {
		return nil
	}
	m.currentView = ViewArticle
	m.articleID = a.ID
	m.detail.GotoTop()
	m.updateDetail()

	cmds := []tea.Cmd{loadArticleCmd(m.ctx, m.coord, a.ID)}
	if !a.IsRead {
		cmds = append(cmds, awaitMutation(m.ctx, "mark read", m.coord.MarkRead(m.ctx, a.ID)))
	}
	return tea.Batch(cmds...)
}

func (m *Model) toggleRead() tea.Cmd {
	a, ok := m.current()
	if !ok {
		return nil
	}
	if a.IsRead {
		return awaitMutation(m.ctx, "mark unread", m.coord.MarkUnread(m.ctx, a.ID))
	}
	return awaitMutation(m.ctx, "mark read", m.coord.MarkRead(m.ctx, a.ID))
}

func (m *Model) toggleFavorite() tea.Cmd {
	a, ok := m.current()
	if !ok {
		return nil
	}
	pm, err := m.coord.ToggleFavorite(m.ctx, a.ID)
	if err != nil {
		m.setFlash(err.Error(), true)
		return nil
	}
	return awaitMutation(m.ctx, "favorite", pm)
}
