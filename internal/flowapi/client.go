// Package flowapi is a JSON client for the reader server's /api/v1 REST API.
package flowapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ArticleSource is the read side of the API used by the sync layer.
type ArticleSource interface {
	ListArticles(ctx context.Context, query ArticleQuery) ([]Article, error)
	SearchArticles(ctx context.Context, q string, limit, offset int) ([]Article, error)
	GetArticle(ctx context.Context, id string) (Article, error)
	ListFeeds(ctx context.Context) ([]Feed, error)
}

// ArticleWriter is the write side of the API used by the sync layer.
type ArticleWriter interface {
	MarkRead(ctx context.Context, id string) (bool, error)
	MarkUnread(ctx context.Context, id string) (bool, error)
	ToggleFavorite(ctx context.Context, id string) (bool, error)
	MarkAllRead(ctx context.Context, feedID string) (string, error)
	MarkAllReadGlobal(ctx context.Context) (string, error)
	Summarize(ctx context.Context, id string) error
}

// Ensure Client implements both halves at compile time.
var (
	_ ArticleSource = (*Client)(nil)
	_ ArticleWriter = (*Client)(nil)
)

// APIError is returned for any non-2xx response. Message carries the server's
// {"error": ...} text, or "Request failed" when the body has none.
type APIError struct {
	Status  int
	Message string
	Path    string
}

func (e *APIError) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status of err if it wraps an *APIError, else 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsClientError reports whether err is a 4xx application error. Those are never
// retried automatically.
func IsClientError(err error) bool {
	status := StatusCode(err)
	return status >= 400 && status < 500
}

// Client talks to the FlowReader REST API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string

	mu      sync.RWMutex
	session string
}

// Options configure a Client.
type Options struct {
	Session string
	Timeout time.Duration
}

const (
	// APIPrefix is the path every REST and stream endpoint lives under.
	APIPrefix = "/api/v1"
	// SessionCookie is the cookie the server authenticates with.
	SessionCookie = "session_id"

	defaultServer         = "127.0.0.1:8080"
	defaultUserAgent      = "flowreader/0.1"
	defaultRequestTimeout = 30 * time.Second
	fallbackErrorMessage  = "Request failed"
)

// NewClient builds a Client for the given server address ("host:port" or a URL).
func NewClient(server string, opts Options) (*Client, error) {
	base, err := parseBaseURL(server)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
		session:   strings.TrimSpace(opts.Session),
	}, nil
}

// BaseURL returns a copy of the server root URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// StreamURL returns the websocket URL of the notification stream.
func (c *Client) StreamURL() string {
	u := c.baseURL.JoinPath(APIPrefix, "ws")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}

// Session returns the current session token.
func (c *Client) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SetSession replaces the session token used for subsequent requests.
func (c *Client) SetSession(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = strings.TrimSpace(token)
}

// AuthHeader returns the headers needed to authenticate a non-REST connection.
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	h.Set("User-Agent", c.userAgent)
	if session := c.Session(); session != "" {
		h.Set("Cookie", (&http.Cookie{Name: SessionCookie, Value: session}).String())
	}
	return h
}

// ListArticles retrieves one page of the article list selected by query.
func (c *Client) ListArticles(ctx context.Context, query ArticleQuery) ([]Article, error) {
	values := url.Values{}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		values.Set("offset", strconv.Itoa(query.Offset))
	}
	if query.UnreadOnly {
		values.Set("unread", "true")
	}
	if query.FavoritesOnly {
		values.Set("favorite", "true")
	}

	path := "/articles"
	switch {
	case query.FavoritesOnly:
		path = "/articles/favorites"
	case strings.TrimSpace(query.FeedID) != "":
		path = "/feeds/" + url.PathEscape(query.FeedID) + "/articles"
	}

	var payload []Article
	if err := c.get(ctx, path, values, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// SearchArticles runs a full-text search and returns one page of hits.
func (c *Client) SearchArticles(ctx context.Context, q string, limit, offset int) ([]Article, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("search query required")
	}
	if limit <= 0 {
		limit = 50
	}
	values := url.Values{}
	values.Set("q", q)
	values.Set("limit", strconv.Itoa(limit))
	values.Set("offset", strconv.Itoa(offset))

	var payload []Article
	if err := c.get(ctx, "/articles/search", values, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// GetArticle retrieves a single article with full content.
func (c *Client) GetArticle(ctx context.Context, id string) (Article, error) {
	if strings.TrimSpace(id) == "" {
		return Article{}, fmt.Errorf("article id required")
	}
	var payload Article
	if err := c.get(ctx, "/articles/"+url.PathEscape(id), nil, &payload); err != nil {
		return Article{}, err
	}
	return payload, nil
}

// MarkRead marks an article read and returns the server's is_read value.
func (c *Client) MarkRead(ctx context.Context, id string) (bool, error) {
	var payload readState
	if err := c.do(ctx, http.MethodPost, "/articles/"+url.PathEscape(id)+"/read", nil, &payload); err != nil {
		return false, err
	}
	return payload.IsRead, nil
}

// MarkUnread clears the read flag and returns the server's is_read value.
func (c *Client) MarkUnread(ctx context.Context, id string) (bool, error) {
	var payload readState
	if err := c.do(ctx, http.MethodDelete, "/articles/"+url.PathEscape(id)+"/read", nil, &payload); err != nil {
		return false, err
	}
	return payload.IsRead, nil
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (c *Client) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var payload favoriteState
	if err := c.do(ctx, http.MethodPost, "/articles/"+url.PathEscape(id)+"/favorite", nil, &payload); err != nil {
		return false, err
	}
	return payload.IsFavorite, nil
}

// MarkAllRead marks every article of one feed read.
func (c *Client) MarkAllRead(ctx context.Context, feedID string) (string, error) {
	if strings.TrimSpace(feedID) == "" {
		return "", fmt.Errorf("feed id required")
	}
	var payload messageResponse
	if err := c.do(ctx, http.MethodPost, "/feeds/"+url.PathEscape(feedID)+"/read-all", nil, &payload); err != nil {
		return "", err
	}
	return payload.Message, nil
}

// MarkAllReadGlobal marks every article of every feed read.
func (c *Client) MarkAllReadGlobal(ctx context.Context) (string, error) {
	var payload messageResponse
	if err := c.do(ctx, http.MethodPost, "/articles/read-all", nil, &payload); err != nil {
		return "", err
	}
	return payload.Message, nil
}

// Summarize asks the server to generate a summary. The result is delivered
// later as an article_updated notification, not in this response.
func (c *Client) Summarize(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/articles/"+url.PathEscape(id)+"/summarize", nil, nil)
}

// ListFeeds retrieves the subscribed feeds with their unread counters.
func (c *Client) ListFeeds(ctx context.Context) ([]Feed, error) {
	var payload []Feed
	if err := c.get(ctx, "/feeds", nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// GetFeed retrieves a single feed.
func (c *Client) GetFeed(ctx context.Context, id string) (Feed, error) {
	var payload Feed
	if err := c.get(ctx, "/feeds/"+url.PathEscape(id), nil, &payload); err != nil {
		return Feed{}, err
	}
	return payload, nil
}

// AddFeed subscribes to the feed at feedURL.
func (c *Client) AddFeed(ctx context.Context, feedURL string) (Feed, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return Feed{}, fmt.Errorf("feed url required")
	}
	var payload Feed
	if err := c.doJSON(ctx, http.MethodPost, "/feeds", map[string]string{"url": feedURL}, &payload); err != nil {
		return Feed{}, err
	}
	return payload, nil
}

// RenameFeed changes a feed's display title.
func (c *Client) RenameFeed(ctx context.Context, id, title string) (Feed, error) {
	var payload Feed
	if err := c.doJSON(ctx, http.MethodPatch, "/feeds/"+url.PathEscape(id), map[string]string{"title": title}, &payload); err != nil {
		return Feed{}, err
	}
	return payload, nil
}

// DeleteFeed unsubscribes from a feed.
func (c *Client) DeleteFeed(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/feeds/"+url.PathEscape(id), nil, nil)
}

// RefreshFeeds asks the server to poll every feed now.
func (c *Client) RefreshFeeds(ctx context.Context) (string, error) {
	var payload messageResponse
	if err := c.do(ctx, http.MethodPost, "/feeds/refresh", nil, &payload); err != nil {
		return "", err
	}
	return payload.Message, nil
}

// ImportOPML uploads an OPML document as multipart field "file".
func (c *Client) ImportOPML(ctx context.Context, filename string, r io.Reader) (ImportResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return ImportResult{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return ImportResult{}, fmt.Errorf("copy opml: %w", err)
	}
	if err := mw.Close(); err != nil {
		return ImportResult{}, fmt.Errorf("close multipart: %w", err)
	}

	var payload ImportResult
	rel, err := apiURL("/feeds/import/opml")
	if err != nil {
		return ImportResult{}, err
	}
	if err := c.send(ctx, http.MethodPost, rel, &body, mw.FormDataContentType(), &payload); err != nil {
		return ImportResult{}, err
	}
	return payload, nil
}

// Login authenticates and stores the returned token as the session.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	var payload LoginResponse
	req := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", req, &payload); err != nil {
		return LoginResponse{}, err
	}
	if payload.Token != "" {
		c.SetSession(payload.Token)
	}
	return payload, nil
}

// Logout ends the session on the server and forgets it locally.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.SetSession("")
	return err
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var payload User
	if err := c.get(ctx, "/users/me", nil, &payload); err != nil {
		return User{}, err
	}
	return payload, nil
}

func (c *Client) get(ctx context.Context, path string, values url.Values, dest any) error {
	rel, err := apiURL(path)
	if err != nil {
		return err
	}
	if len(values) > 0 {
		rel.RawQuery = values.Encode()
	}
	return c.send(ctx, http.MethodGet, rel, nil, "", dest)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, dest any) error {
	rel, err := apiURL(path)
	if err != nil {
		return err
	}
	return c.send(ctx, method, rel, body, "", dest)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, dest any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	rel, err := apiURL(path)
	if err != nil {
		return err
	}
	return c.send(ctx, method, rel, bytes.NewReader(raw), "application/json", dest)
}

// apiURL parses an already-escaped path below APIPrefix so escaped ids keep
// their RawPath.
func apiURL(path string) (*url.URL, error) {
	rel, err := url.Parse(APIPrefix + path)
	if err != nil {
		return nil, fmt.Errorf("build request path: %w", err)
	}
	return rel, nil
}

func (c *Client) send(ctx context.Context, method string, rel *url.URL, body io.Reader, contentType string, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if session := c.Session(); session != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: session})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp, rel.Path)
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response, path string) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: fallbackErrorMessage, Path: path}
	var payload errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
		if msg := strings.TrimSpace(payload.Error); msg != "" {
			apiErr.Message = msg
		}
	}
	return apiErr
}

func parseBaseURL(server string) (*url.URL, error) {
	trimmed := strings.TrimSpace(server)
	if trimmed == "" {
		trimmed = defaultServer
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse server %q: %w", server, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse server %q: missing host", server)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
