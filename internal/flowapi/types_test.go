package flowapi

import (
	"encoding/json"
	"testing"
	"time"
)

func TestArticlePublishedFallsBackToCreatedAt(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	a := Article{CreatedAt: created}
	if !a.Published().Equal(created) {
		t.Fatalf("Published = %v, want %v", a.Published(), created)
	}
	pub := created.Add(-time.Hour)
	a.PublishedAt = &pub
	if !a.Published().Equal(pub) {
		t.Fatalf("Published = %v, want %v", a.Published(), pub)
	}
}

func TestArticleDecodesServerPayload(t *testing.T) {
	raw := `{"id":"7c1","feed_id":"f9","guid":"g","title":"T","summary":"  ","is_read":true,
		"is_favorite":false,"created_at":"2025-12-13T10:11:12Z","published_at":"2025-12-12T09:00:00Z"}`
	var a Article
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if a.ID != "7c1" || a.FeedID != "f9" || !a.IsRead || a.IsFavorite {
		t.Fatalf("decoded = %#v", a)
	}
	if a.HasSummary() {
		t.Fatalf("HasSummary = true for blank summary")
	}
	if a.Published().Day() != 12 {
		t.Fatalf("Published = %v, want Dec 12", a.Published())
	}
}

func TestFeedDisplayTitle(t *testing.T) {
	if got := (Feed{URL: "https://x/feed"}).DisplayTitle(); got != "https://x/feed" {
		t.Fatalf("DisplayTitle = %q, want url", got)
	}
	if got := (Feed{URL: "u", Title: " Go Blog "}).DisplayTitle(); got != "Go Blog" {
		t.Fatalf("DisplayTitle = %q, want Go Blog", got)
	}
}
