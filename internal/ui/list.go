package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/flowreader/internal/flowapi"
)

// renderList renders the visible window of the article list.
func (m Model) renderList() string {
	styles := m.theme.Styles()
	height := m.bodyHeight()

	if len(m.list.Items) == 0 {
		msg := "No articles"
		switch {
		case m.list.Err != nil:
			msg = "Load failed: " + m.list.Err.Error() + " (r to retry)"
		case m.list.Stale || m.loading:
			msg = "Loading..."
		}
		return lipgloss.NewStyle().Width(m.width).Height(height).Render(styles.MutedText.Render(msg))
	}

	end := min(m.offset+height, len(m.list.Items))
	rows := make([]string, 0, height)
	for i := m.offset; i < end; i++ {
		rows = append(rows, m.renderRow(m.list.Items[i], i == m.selected, styles))
	}
	if end == len(m.list.Items) && len(rows) < height {
		switch {
		case m.list.Err != nil:
			rows = append(rows, styles.DangerText.Render("  "+truncate(m.list.Err.Error(), m.width-4)))
		case !m.list.Exhausted:
			rows = append(rows, styles.FaintText.Render("  more..."))
		}
	}
	for len(rows) < height {
		rows = append(rows, "")
	}
	return strings.Join(rows, "\n")
}

// renderRow renders one article line: state markers, title, feed and age.
func (m Model) renderRow(a flowapi.Article, selected bool, styles Styles) string {
	readMarker := styles.Marker(BadgeUnread).Render("●")
	if a.IsRead {
		readMarker = styles.Marker(BadgeRead).Render("○")
	}
	favMarker := " "
	if a.IsFavorite {
		favMarker = styles.Marker(BadgeFavorite).Render("★")
	}
	sumMarker := " "
	if a.HasSummary() {
		sumMarker = styles.Marker(BadgeSummary).Render("✦")
	}

	feedWidth := 0
	if m.width >= LayoutCompactWidth {
		feedWidth = 20
	}
	ageWidth := 0
	if m.width >= LayoutWideWidth {
		ageWidth = 5
	}
	titleWidth := maxInt(10, m.width-6-feedWidth-ageWidth-2)

	titleStyle := styles.Text
	if a.IsRead {
		titleStyle = styles.MutedText
	} else {
		titleStyle = titleStyle.Bold(true)
	}
	if selected {
		titleStyle = styles.Selected.Bold(!a.IsRead)
	}

	var b strings.Builder
	b.WriteString(readMarker)
	b.WriteString(favMarker)
	b.WriteString(sumMarker)
	b.WriteString(" ")
	b.WriteString(titleStyle.Render(padRight(truncate(oneLine(a.Title), titleWidth), titleWidth)))
	if feedWidth > 0 {
		b.WriteString(" ")
		b.WriteString(styles.FaintText.Render(padRight(truncate(a.FeedTitle, feedWidth), feedWidth)))
	}
	if ageWidth > 0 {
		b.WriteString(" ")
		b.WriteString(styles.FaintText.Render(padRight(humanizeDuration(time.Since(a.Published())), ageWidth)))
	}
	return b.String()
}
