package flowapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" {
		t.Fatalf("scheme = %q, want http", u.Scheme)
	}
	if u.Host != defaultServer {
		t.Fatalf("host = %q, want %q", u.Host, defaultServer)
	}

	u, err = parseBaseURL("https://reader.example.com:8443/app?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		t.Fatalf("url not normalized: %q", u.String())
	}
}

func TestClient_StreamURL(t *testing.T) {
	cases := []struct {
		server string
		want   string
	}{
		{"127.0.0.1:8080", "ws://127.0.0.1:8080/api/v1/ws"},
		{"http://reader.local", "ws://reader.local/api/v1/ws"},
		{"https://reader.example.com", "wss://reader.example.com/api/v1/ws"},
	}
	for _, tc := range cases {
		c, err := NewClient(tc.server, Options{})
		if err != nil {
			t.Fatalf("NewClient(%q) returned error: %v", tc.server, err)
		}
		if got := c.StreamURL(); got != tc.want {
			t.Fatalf("StreamURL(%q) = %q, want %q", tc.server, got, tc.want)
		}
	}
}

func TestClient_ListArticlesSelectsEndpointAndEncodesQuery(t *testing.T) {
	t.Parallel()

	var gotPaths []string
	var gotQueries []url.Values
	var gotCookie string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)
		gotQueries = append(gotQueries, r.URL.Query())
		if c, err := r.Cookie(SessionCookie); err == nil {
			gotCookie = c.Value
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]Article{{ID: "a1", FeedID: "f1", Title: "Hello"}})
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, Options{Session: "tok"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	items, err := c.ListArticles(ctx, ArticleQuery{Limit: 50, Offset: 100, UnreadOnly: true})
	if err != nil {
		t.Fatalf("ListArticles returned error: %v", err)
	}
	if len(items) != 1 || items[0].ID != "a1" {
		t.Fatalf("ListArticles items = %#v, want 1 item id=a1", items)
	}
	if _, err := c.ListArticles(ctx, ArticleQuery{FeedID: "f/1"}); err != nil {
		t.Fatalf("ListArticles(feed) returned error: %v", err)
	}
	if _, err := c.ListArticles(ctx, ArticleQuery{FavoritesOnly: true, FeedID: "ignored"}); err != nil {
		t.Fatalf("ListArticles(favorites) returned error: %v", err)
	}

	wantPaths := []string{"/api/v1/articles", "/api/v1/feeds/f/1/articles", "/api/v1/articles/favorites"}
	for i, want := range wantPaths {
		if gotPaths[i] != want {
			t.Fatalf("path[%d] = %q, want %q", i, gotPaths[i], want)
		}
	}
	q := gotQueries[0]
	if q.Get("limit") != "50" || q.Get("offset") != "100" || q.Get("unread") != "true" || q.Get("favorite") != "" {
		t.Fatalf("list query = %v, want limit/offset/unread encoded", q)
	}
	if gotQueries[1].Get("offset") != "" {
		t.Fatalf("zero offset should be omitted, got %v", gotQueries[1])
	}
	if gotQueries[2].Get("favorite") != "true" {
		t.Fatalf("favorites query = %v, want favorite=true", gotQueries[2])
	}
	if gotCookie != "tok" {
		t.Fatalf("session cookie = %q, want tok", gotCookie)
	}
}

func TestClient_SearchRequiresQuery(t *testing.T) {
	c, err := NewClient("127.0.0.1:1", Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := c.SearchArticles(context.Background(), "   ", 10, 0); err == nil {
		t.Fatalf("SearchArticles returned nil error, want error")
	}
}

func TestClient_Mutations(t *testing.T) {
	t.Parallel()

	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/read") && r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"is_read":true}`))
		case strings.HasSuffix(r.URL.Path, "/read") && r.Method == http.MethodDelete:
			_, _ = w.Write([]byte(`{"is_read":false}`))
		case strings.HasSuffix(r.URL.Path, "/favorite"):
			_, _ = w.Write([]byte(`{"is_favorite":true}`))
		case strings.HasSuffix(r.URL.Path, "/read-all"):
			_, _ = w.Write([]byte(`{"message":"ok"}`))
		case strings.HasSuffix(r.URL.Path, "/summarize"):
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"message":"queued"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx := context.Background()

	if read, err := c.MarkRead(ctx, "a1"); err != nil || !read {
		t.Fatalf("MarkRead = %v, %v; want true, nil", read, err)
	}
	if read, err := c.MarkUnread(ctx, "a1"); err != nil || read {
		t.Fatalf("MarkUnread = %v, %v; want false, nil", read, err)
	}
	if fav, err := c.ToggleFavorite(ctx, "a1"); err != nil || !fav {
		t.Fatalf("ToggleFavorite = %v, %v; want true, nil", fav, err)
	}
	if msg, err := c.MarkAllRead(ctx, "f1"); err != nil || msg != "ok" {
		t.Fatalf("MarkAllRead = %q, %v; want ok, nil", msg, err)
	}
	if _, err := c.MarkAllReadGlobal(ctx); err != nil {
		t.Fatalf("MarkAllReadGlobal returned error: %v", err)
	}
	if err := c.Summarize(ctx, "a1"); err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}

	want := []string{
		"POST /api/v1/articles/a1/read",
		"DELETE /api/v1/articles/a1/read",
		"POST /api/v1/articles/a1/favorite",
		"POST /api/v1/feeds/f1/read-all",
		"POST /api/v1/articles/read-all",
		"POST /api/v1/articles/a1/summarize",
	}
	if strings.Join(calls, "\n") != strings.Join(want, "\n") {
		t.Fatalf("calls =\n%s\nwant\n%s", strings.Join(calls, "\n"), strings.Join(want, "\n"))
	}
}

func TestClient_APIErrorCarriesStatusAndMessage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/articles/a1/read":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Article not found"}`))
		case "/api/v1/articles/a2/read":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/api/v1/feeds":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("{not-json"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx := context.Background()

	_, err = c.MarkRead(ctx, "a1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("MarkRead error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "Article not found" {
		t.Fatalf("APIError = %#v, want 404 Article not found", apiErr)
	}
	if !IsClientError(err) {
		t.Fatalf("IsClientError(404) = false, want true")
	}

	_, err = c.MarkRead(ctx, "a2")
	if StatusCode(err) != http.StatusInternalServerError {
		t.Fatalf("StatusCode = %d, want 500", StatusCode(err))
	}
	if err.Error() != "Request failed" {
		t.Fatalf("error = %q, want Request failed", err.Error())
	}
	if IsClientError(err) {
		t.Fatalf("IsClientError(500) = true, want false")
	}

	_, err = c.ListFeeds(ctx)
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("ListFeeds error = %v, want decode response error", err)
	}
}

func TestClient_LoginStoresSessionAndImportUploadsMultipart(t *testing.T) {
	t.Parallel()

	var gotFile string
	var gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/auth/login":
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["email"] != "me@example.com" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Invalid credentials"}`))
				return
			}
			_, _ = w.Write([]byte(`{"token":"s3cret","user":{"id":"u1","email":"me@example.com"}}`))
		case "/api/v1/feeds/import/opml":
			if c, err := r.Cookie(SessionCookie); err == nil {
				gotCookie = c.Value
			}
			file, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			raw, _ := io.ReadAll(file)
			gotFile = string(raw)
			_, _ = w.Write([]byte(`{"imported":2,"skipped":1}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx := context.Background()

	if _, err := c.Login(ctx, "nobody@example.com", "x"); err == nil || err.Error() != "Invalid credentials" {
		t.Fatalf("Login error = %v, want Invalid credentials", err)
	}
	resp, err := c.Login(ctx, "me@example.com", "pw")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if resp.User.ID != "u1" || c.Session() != "s3cret" {
		t.Fatalf("Login = %#v session=%q, want user u1 and session s3cret", resp, c.Session())
	}

	result, err := c.ImportOPML(ctx, "subs.opml", strings.NewReader("<opml/>"))
	if err != nil {
		t.Fatalf("ImportOPML returned error: %v", err)
	}
	if result.Imported != 2 || result.Skipped != 1 {
		t.Fatalf("ImportOPML = %#v, want 2 imported 1 skipped", result)
	}
	if gotFile != "<opml/>" || gotCookie != "s3cret" {
		t.Fatalf("upload file=%q cookie=%q, want <opml/> and s3cret", gotFile, gotCookie)
	}
}

func TestClient_AuthHeaderCarriesSessionCookie(t *testing.T) {
	c, err := NewClient("127.0.0.1:1", Options{Session: " abc "})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	h := c.AuthHeader()
	if got := h.Get("Cookie"); got != "session_id=abc" {
		t.Fatalf("Cookie header = %q, want session_id=abc", got)
	}
	c.SetSession("")
	if got := c.AuthHeader().Get("Cookie"); got != "" {
		t.Fatalf("Cookie header = %q, want empty after clearing session", got)
	}
}
