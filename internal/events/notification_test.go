package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Notification
	}{
		{
			name: "new articles with payload",
			raw:  `{"type":"new_articles","payload":{"feed_id":"f1","feed_title":"Go Blog","count":3}}`,
			want: NewArticles{FeedID: "f1", FeedTitle: "Go Blog", Count: 3},
		},
		{
			name: "bare new articles",
			raw:  `{"type":"new_articles"}`,
			want: NewArticles{},
		},
		{
			name: "article updated flat",
			raw:  `{"type":"article_updated","id":"a1","is_read":true}`,
			want: ArticleUpdated{ID: "a1", IsRead: boolPtr(true)},
		},
		{
			name: "article updated null payload",
			raw:  `{"type":"article_updated","payload":null}`,
			want: ArticleUpdated{},
		},
		{
			name: "unknown kind",
			raw:  `{"type":"feed_deleted","payload":{"id":"f1"}}`,
			want: Unknown{Type: "feed_deleted", Payload: []byte(`{"id":"f1"}`)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_SummaryPayload(t *testing.T) {
	got, err := Decode([]byte(`{"type":"article_updated","payload":{"id":"a9","summary":"tl;dr"}}`))
	require.NoError(t, err)

	upd, ok := got.(ArticleUpdated)
	require.True(t, ok, "got %T", got)
	require.NotNil(t, upd.Summary)
	assert.Equal(t, "tl;dr", *upd.Summary)
	assert.Nil(t, upd.IsRead)
	assert.True(t, upd.HasChanges())
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrMissingType)

	_, err = Decode([]byte(`{"type":"new_articles","payload":{"count":"three"}}`))
	assert.Error(t, err)
}

func TestArticleUpdated_HasChanges(t *testing.T) {
	assert.False(t, ArticleUpdated{}.HasChanges())
	assert.False(t, ArticleUpdated{ID: "a1"}.HasChanges())
	assert.False(t, ArticleUpdated{IsRead: boolPtr(true)}.HasChanges())
	assert.True(t, ArticleUpdated{ID: "a1", IsFavorite: boolPtr(false)}.HasChanges())
}

func TestDecodeFrame_SplitsCoalescedMessages(t *testing.T) {
	frame := []byte(`{"type":"new_articles","payload":{"count":1}}` + "\n" +
		`garbage` + "\n\n" +
		`{"type":"article_updated","payload":{"id":"a1","is_favorite":true}}`)

	notes, errs := DecodeFrame(frame)
	require.Len(t, notes, 2)
	require.Len(t, errs, 1)
	assert.Equal(t, KindNewArticles, notes[0].Kind())
	assert.Equal(t, KindArticleUpdated, notes[1].Kind())
}

func boolPtr(v bool) *bool { return &v }
