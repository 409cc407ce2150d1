package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/flowreader/internal/flowapi"
)

// updateDetail re-renders the open article into the viewport, keeping the
// scroll position.
func (m *Model) updateDetail() {
	if m.coord == nil || m.articleID == "" {
		return
	}
	a, ok := m.coord.Cache().Find(m.articleID)
	if !ok {
		m.detail.SetContent(m.theme.Styles().MutedText.Render("Article is no longer cached."))
		return
	}
	offset := m.detail.YOffset
	m.detail.SetContent(m.renderArticle(a))
	m.detail.SetYOffset(offset)
}

// renderArticle lays out title, metadata, summary and body text.
func (m Model) renderArticle(a flowapi.Article) string {
	styles := m.theme.Styles()
	width := maxInt(20, min(m.width-4, 100))
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	b.WriteString(wrap.Inherit(styles.Text.Bold(true)).Render(oneLine(a.Title)))
	b.WriteString("\n")

	var meta []string
	if a.FeedTitle != "" {
		meta = append(meta, a.FeedTitle)
	}
	if a.Author != "" {
		meta = append(meta, a.Author)
	}
	if published := a.Published(); !published.IsZero() {
		meta = append(meta, published.Local().Format("Mon 2 Jan 2006 15:04"))
	}
	b.WriteString(styles.MutedText.Render(strings.Join(meta, " · ")))
	b.WriteString("\n")

	badges := []string{ternary(a.IsRead,
		styles.Badge(BadgeRead).Render("read"),
		styles.Badge(BadgeUnread).Render("unread"))}
	if a.IsFavorite {
		badges = append(badges, styles.Badge(BadgeFavorite).Render("favorite"))
	}
	b.WriteString(strings.Join(badges, " "))
	b.WriteString("\n\n")

	if a.HasSummary() {
		b.WriteString(styles.Marker(BadgeSummary).Bold(true).Render("Summary"))
		b.WriteString("\n")
		b.WriteString(wrap.Inherit(styles.Text).Render(strings.TrimSpace(a.Summary)))
		b.WriteString("\n\n")
	}

	body := htmlToText(a.Content)
	if body == "" {
		body = "No content yet."
	}
	b.WriteString(wrap.Inherit(styles.Text).Render(body))

	if a.URL != "" {
		b.WriteString("\n\n")
		b.WriteString(styles.AccentText.Render(a.URL))
	}
	return b.String()
}
