package flowapi

import (
	"strings"
	"time"
)

// Article mirrors the article payload returned by the /articles endpoints.
type Article struct {
	ID          string     `json:"id"`
	FeedID      string     `json:"feed_id"`
	GUID        string     `json:"guid"`
	Title       string     `json:"title"`
	URL         string     `json:"url,omitempty"`
	Content     string     `json:"content,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Author      string     `json:"author,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	IsRead      bool       `json:"is_read"`
	IsFavorite  bool       `json:"is_favorite"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FeedTitle   string     `json:"feed_title,omitempty"`
}

// Published returns the publication time, falling back to CreatedAt.
func (a Article) Published() time.Time {
	if a.PublishedAt != nil && !a.PublishedAt.IsZero() {
		return *a.PublishedAt
	}
	return a.CreatedAt
}

// HasSummary reports whether an AI summary has arrived for the article.
func (a Article) HasSummary() bool {
	return strings.TrimSpace(a.Summary) != ""
}

// Feed mirrors the feed payload returned by /feeds.
type Feed struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	URL           string     `json:"url"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	SiteURL       string     `json:"site_url,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	FetchError    string     `json:"fetch_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	UnreadCount   int        `json:"unread_count,omitempty"`
}

// DisplayTitle returns the title, or the URL when the feed has not been fetched yet.
func (f Feed) DisplayTitle() string {
	if title := strings.TrimSpace(f.Title); title != "" {
		return title
	}
	return f.URL
}

// ArticleQuery selects a page of a filtered article list.
type ArticleQuery struct {
	Limit         int
	Offset        int
	UnreadOnly    bool
	FavoritesOnly bool
	FeedID        string
}

// ImportResult is returned by the OPML import endpoint.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// User is the authenticated account.
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// LoginResponse is returned by /auth/login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

type readState struct {
	IsRead bool `json:"is_read"`
}

type favoriteState struct {
	IsFavorite bool `json:"is_favorite"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}
