package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind is the value of a notification's "type" field.
type Kind string

const (
	KindNewArticles    Kind = "new_articles"
	KindArticleUpdated Kind = "article_updated"
)

// Notification is a decoded server push. The set of implementations is closed:
// NewArticles, ArticleUpdated and Unknown.
type Notification interface {
	Kind() Kind
	sealed()
}

// NewArticles reports that a feed ingested new items.
type NewArticles struct {
	FeedID    string `json:"feed_id"`
	FeedTitle string `json:"feed_title"`
	Count     int    `json:"count"`
}

// ArticleUpdated reports server-side changes to an article. Every field is
// optional; a payload without an ID is a pure resync signal.
type ArticleUpdated struct {
	ID         string  `json:"id"`
	IsRead     *bool   `json:"is_read"`
	IsFavorite *bool   `json:"is_favorite"`
	Summary    *string `json:"summary"`
}

// HasChanges reports whether the update names an article and carries at least
// one field that can be applied locally.
func (u ArticleUpdated) HasChanges() bool {
	if strings.TrimSpace(u.ID) == "" {
		return false
	}
	return u.IsRead != nil || u.IsFavorite != nil || u.Summary != nil
}

// Unknown is any notification type this client does not understand.
type Unknown struct {
	Type    string
	Payload json.RawMessage
}

func (NewArticles) Kind() Kind    { return KindNewArticles }
func (ArticleUpdated) Kind() Kind { return KindArticleUpdated }
func (u Unknown) Kind() Kind      { return Kind(u.Type) }

func (NewArticles) sealed()    {}
func (ArticleUpdated) sealed() {}
func (Unknown) sealed()        {}

// ErrMissingType is returned for JSON objects without a "type" string.
var ErrMissingType = errors.New("notification has no type")

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses one notification. Fields may be nested under "payload" or sit
// beside "type" at the top level.
func Decode(raw []byte) (Notification, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return nil, ErrMissingType
	}

	body := env.Payload
	if len(body) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		body = raw
	}

	switch Kind(env.Type) {
	case KindNewArticles:
		var n NewArticles
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		return n, nil
	case KindArticleUpdated:
		var n ArticleUpdated
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		return n, nil
	default:
		return Unknown{Type: env.Type, Payload: env.Payload}, nil
	}
}

// DecodeFrame splits a websocket frame into newline-separated messages and
// decodes each. The server coalesces queued events into one frame this way.
// Messages that fail to decode are returned in errs and skipped.
func DecodeFrame(frame []byte) (out []Notification, errs []error) {
	for _, line := range bytes.Split(frame, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		n, err := Decode(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, n)
	}
	return out, errs
}
