package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", filepath.Join(home, "missing.toml")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "flowreader dev\n", out)
}

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/feeds", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session_id"); err != nil || c.Value != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Not authenticated"}`))
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "f1", "url": "https://go.dev/blog/feed.atom", "title": "Go Blog", "unread_count": 4},
		})
	})
	mux.HandleFunc("GET /api/v1/feeds/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "f1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Feed not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "f1", "url": "https://go.dev/blog/feed.atom", "title": "Go Blog",
			"description": "The Go Programming Language Blog", "unread_count": 4,
		})
	})
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": "tok",
			"user":  map[string]any{"id": "u1", "email": req["email"]},
		})
	})
	mux.HandleFunc("POST /api/v1/articles/read-all", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Marked 4 articles as read"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFeedsCommand_ListsFeeds(t *testing.T) {
	srv := fakeServer(t)

	out, err := execute(t, "", "--server", srv.URL, "--session", "tok", "feeds")
	require.NoError(t, err)
	assert.Contains(t, out, "Go Blog")
	assert.Contains(t, out, "UNREAD")
	assert.Contains(t, out, "never")
}

func TestFeedsCommand_SurfacesServerError(t *testing.T) {
	srv := fakeServer(t)

	_, err := execute(t, "", "--server", srv.URL, "feeds")
	require.Error(t, err)
	assert.Equal(t, "Not authenticated", err.Error())
}

func TestFeedsShowCommand(t *testing.T) {
	srv := fakeServer(t)

	out, err := execute(t, "", "--server", srv.URL, "--session", "tok", "feeds", "show", "f1")
	require.NoError(t, err)
	assert.Contains(t, out, "Go Blog")
	assert.Contains(t, out, "The Go Programming Language Blog")

	_, err = execute(t, "", "--server", srv.URL, "--session", "tok", "feeds", "show", "nope")
	require.Error(t, err)
	assert.Equal(t, "Feed not found", err.Error())
}

func TestLoginCommand_ReadsPasswordFromStdin(t *testing.T) {
	srv := fakeServer(t)

	out, err := execute(t, "hunter2\n", "--server", srv.URL, "login", "me@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "# signed in as me@example.com")
	assert.Contains(t, out, `session = "tok"`)

	_, err = execute(t, "wrong\n", "--server", srv.URL, "login", "me@example.com")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())
}

func TestFeedsMarkReadCommand_Global(t *testing.T) {
	srv := fakeServer(t)

	out, err := execute(t, "", "--server", srv.URL, "--session", "tok", "feeds", "mark-read")
	require.NoError(t, err)
	assert.Equal(t, "Marked 4 articles as read\n", out)
}

func TestLogsCommand_FiltersLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "flowreader.log")
	require.NoError(t, os.WriteFile(logPath, []byte(
		`{"level":"debug","logger":"flowreader.sync","msg":"discarding superseded page"}`+"\n"+
			`{"level":"warn","logger":"flowreader.ledger","msg":"mutation rolled back","article":"a1"}`+"\n"), 0o644))

	out, err := execute(t, "", "--log-file", logPath, "logs", "--level", "info")
	require.NoError(t, err)
	assert.Equal(t, "WARN  flowreader.ledger  mutation rolled back article=a1\n", out)
}
