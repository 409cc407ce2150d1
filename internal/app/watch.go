package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/five82/flowreader/internal/events"
	"github.com/five82/flowreader/internal/logging"
)

// Watch connects to the notification stream and prints one line per
// notification to w until ctx is cancelled. Logs go to stderr unless a log
// file is configured.
func Watch(ctx context.Context, opts Options, w io.Writer) error {
	if strings.TrimSpace(opts.LogFile) == "" {
		opts.LogFile = logging.Stderr
	}

	var mu sync.Mutex
	rt, err := Setup(opts, func(n events.Notification) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "%s %s\n", time.Now().Format(time.TimeOnly), Describe(n))
	})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if err := rt.Coordinator.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Describe renders a notification as a single human-readable line.
func Describe(n events.Notification) string {
	switch n := n.(type) {
	case events.NewArticles:
		feed := n.FeedTitle
		if feed == "" {
			feed = n.FeedID
		}
		if feed == "" {
			return fmt.Sprintf("new_articles count=%d", n.Count)
		}
		return fmt.Sprintf("new_articles feed=%q count=%d", feed, n.Count)
	case events.ArticleUpdated:
		var fields []string
		if n.IsRead != nil {
			fields = append(fields, fmt.Sprintf("is_read=%t", *n.IsRead))
		}
		if n.IsFavorite != nil {
			fields = append(fields, fmt.Sprintf("is_favorite=%t", *n.IsFavorite))
		}
		if n.Summary != nil {
			fields = append(fields, "summary")
		}
		if n.ID == "" {
			return "article_updated"
		}
		if len(fields) == 0 {
			return "article_updated id=" + n.ID
		}
		return fmt.Sprintf("article_updated id=%s %s", n.ID, strings.Join(fields, " "))
	default:
		return fmt.Sprintf("ignored type=%s", n.Kind())
	}
}
