package ui

import (
	"fmt"

	"github.com/five82/flowreader/internal/events"
)

// renderHeader renders the status bar: scope, unread total, stream state and
// writes in flight.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < LayoutCompactWidth

	parts := []string{
		bg.Render("flowreader", styles.Logo),
		bg.Render(m.filterLabel(), styles.AccentText.Bold(true)),
	}
	if m.query != "" {
		parts = append(parts, bg.Render(fmt.Sprintf("%q", truncate(m.query, 30)), styles.Text))
	} else {
		parts = append(parts, bg.Render(truncate(m.feedTitle(), 30), styles.Text))
	}

	unreadStyle := styles.MutedText
	if total := m.feeds.TotalUnread(); total > 0 {
		unreadStyle = styles.Marker(BadgeUnread).Bold(true)
	}
	parts = append(parts,
		bg.Render("Unread:", styles.MutedText)+bg.Space()+
			bg.Render(fmt.Sprintf("%d", m.feeds.TotalUnread()), unreadStyle))

	if !compact {
		parts = append(parts,
			bg.Render("Loaded:", styles.MutedText)+bg.Space()+
				bg.Render(fmt.Sprintf("%d", len(m.list.Items)), styles.Text)+
				bg.Render(ternary(m.list.Exhausted, "", "+"), styles.FaintText))
	}

	if m.pending > 0 {
		parts = append(parts, styles.Badge(BadgePending).Render(fmt.Sprintf("saving %d", m.pending)))
	}
	if m.loading {
		parts = append(parts, bg.Render("loading...", styles.InfoText))
	}
	parts = append(parts, m.streamBadge(styles))

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

// streamBadge summarizes the push channel and resync health.
func (m Model) streamBadge(styles Styles) string {
	switch {
	case m.snapshot.IsOffline():
		return styles.Badge(BadgeOffline).Render("offline")
	case m.snapshot.IsLive():
		return styles.Badge(BadgeLive).Render("live")
	case m.snapshot.Stream == events.StateClosedPermanent:
		return styles.Badge(BadgeOffline).Render("disconnected")
	default:
		return styles.Badge(BadgeConnecting).Render("connecting")
	}
}

// renderFooter shows the transient status message or key hints.
func (m Model) renderFooter() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	if m.searching {
		return bg.FillLine(m.searchInput.View(), m.width)
	}

	var content string
	switch {
	case m.flash != "" && m.flashErr:
		content = bg.Render(truncate(oneLine(m.flash), m.width-2), styles.DangerText)
	case m.flash != "":
		content = bg.Render(truncate(oneLine(m.flash), m.width-2), styles.SuccessText)
	case m.currentView == ViewArticle:
		content = bg.Render("esc back  m read  f favorite  s summarize  j/k scroll  ? help", styles.MutedText)
	default:
		content = bg.Render("enter open  tab filter  [/] feed  / search  m read  f favorite  A all read  ? help", styles.MutedText)
	}
	return styles.Footer.Width(m.width).Render(content)
}
