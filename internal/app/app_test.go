package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/flowreader/internal/events"
)

func TestLoadConfig_AppliesOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`server = "http://file.example:8080"
session = "from-file"
`), 0o600))

	cfg, err := LoadConfig(Options{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "http://file.example:8080", cfg.Server)
	assert.Equal(t, "from-file", cfg.Session)

	cfg, err = LoadConfig(Options{ConfigPath: path, Server: " http://flag.example ", Session: "flag", LogLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, "http://flag.example", cfg.Server)
	assert.Equal(t, "flag", cfg.Session)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestSetup_WiresStreamToStore(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	rt, err := Setup(Options{
		ConfigPath: filepath.Join(home, "missing.toml"),
		Server:     "https://reader.example.com",
		Session:    "tok",
		LogFile:    filepath.Join(home, "flowreader.log"),
	}, nil)
	require.NoError(t, err)
	defer func() { _ = rt.Close() }()

	assert.Equal(t, "wss://reader.example.com/api/v1/ws", rt.Client.StreamURL())
	assert.Equal(t, "tok", rt.Client.Session())
	assert.Equal(t, 50, rt.Coordinator.Cache().PageSize())

	rt.Coordinator.OnNotification(events.NewArticles{Count: 1})
	snap := rt.Store.Snapshot()
	assert.Equal(t, 1, snap.Notifications)
	assert.Equal(t, events.KindNewArticles, snap.LastKind)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch_PrintsNotifications(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	upgrader := websocket.Upgrader{}
	cookies := make(chan string, 4)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if c, err := r.Cookie("session_id"); err == nil {
			cookies <- c.Value
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"new_articles","payload":{"feed_id":"f1","feed_title":"Go Blog","count":2}}`+"\n"+
				`{"type":"article_updated","payload":{"id":"a7","is_read":true}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, Options{
			ConfigPath: filepath.Join(home, "missing.toml"),
			Server:     server.URL,
			Session:    "tok",
			LogFile:    filepath.Join(home, "watch.log"),
		}, out)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "article_updated id=a7 is_read=true")
	}, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), `new_articles feed="Go Blog" count=2`)
	assert.Equal(t, "tok", <-cookies)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestDescribe(t *testing.T) {
	yes, no := true, false
	summary := "s"
	tests := []struct {
		in   events.Notification
		want string
	}{
		{events.NewArticles{}, "new_articles count=0"},
		{events.NewArticles{FeedID: "f1", Count: 3}, `new_articles feed="f1" count=3`},
		{events.ArticleUpdated{}, "article_updated"},
		{events.ArticleUpdated{ID: "a1"}, "article_updated id=a1"},
		{events.ArticleUpdated{ID: "a1", IsRead: &yes, IsFavorite: &no, Summary: &summary}, "article_updated id=a1 is_read=true is_favorite=false summary"},
		{events.Unknown{Type: "feed_deleted"}, "ignored type=feed_deleted"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Describe(tt.in))
	}
}
