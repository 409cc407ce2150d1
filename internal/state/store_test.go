package state

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/five82/flowreader/internal/events"
)

func TestStore_ZeroValue(t *testing.T) {
	var s Store
	snap := s.Snapshot()
	// The zero State is connecting; nothing has been recorded yet.
	if snap.Notifications != 0 || snap.LastError != nil || !snap.StreamChanged.IsZero() {
		t.Fatalf("zero snapshot = %#v", snap)
	}
	if snap.IsOffline() {
		t.Fatal("IsOffline() = true on zero value")
	}
}

func TestStore_StreamTransitions(t *testing.T) {
	var s Store

	before := time.Now()
	s.SetStream(events.StateConnecting, nil)
	s.SetStream(events.StateClosedWillRetry, errors.New("connection refused"))

	snap := s.Snapshot()
	if snap.Stream != events.StateClosedWillRetry {
		t.Fatalf("Stream = %v, want closed-will-retry", snap.Stream)
	}
	if snap.StreamError == nil || snap.StreamError.Error() != "connection refused" {
		t.Fatalf("StreamError = %v, want connection refused", snap.StreamError)
	}
	if snap.StreamChanged.Before(before) {
		t.Fatalf("StreamChanged = %v, want >= %v", snap.StreamChanged, before)
	}
	if snap.IsLive() {
		t.Fatal("IsLive() = true while closed")
	}

	// Reconnecting keeps the last error until the connection opens.
	s.SetStream(events.StateConnecting, nil)
	if s.Snapshot().StreamError == nil {
		t.Fatal("StreamError cleared before the connection opened")
	}
	s.SetStream(events.StateOpen, nil)
	snap = s.Snapshot()
	if snap.StreamError != nil || !snap.IsLive() {
		t.Fatalf("open snapshot = %#v, want live without error", snap)
	}
}

func TestStore_RecordNotification(t *testing.T) {
	var s Store
	s.RecordNotification(events.NewArticles{Count: 2})
	s.RecordNotification(events.ArticleUpdated{ID: "a1"})

	snap := s.Snapshot()
	if snap.Notifications != 2 {
		t.Fatalf("Notifications = %d, want 2", snap.Notifications)
	}
	if snap.LastKind != events.KindArticleUpdated {
		t.Fatalf("LastKind = %q, want article_updated", snap.LastKind)
	}
}

func TestStore_SnapshotClonesErrors(t *testing.T) {
	var s Store
	origErr := errors.New("boom")
	s.RecordResync(origErr)
	s.RecordRollback(origErr)

	snap := s.Snapshot()
	if snap.LastError == nil || snap.LastError.Error() != "boom" {
		t.Fatalf("LastError = %v, want boom", snap.LastError)
	}
	if reflect.ValueOf(snap.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatalf("Snapshot should clone error instance")
	}
	if !errors.Is(snap.LastRollbackError, origErr) {
		t.Fatalf("LastRollbackError = %v, want to wrap boom", snap.LastRollbackError)
	}
}

func TestStore_ConsecutiveFailures(t *testing.T) {
	var s Store

	// First failure
	s.RecordResync(errors.New("fail 1"))
	snap := s.Snapshot()
	if snap.ConsecutiveFailures != 1 {
		t.Fatalf("ConsecutiveFailures = %d, want 1", snap.ConsecutiveFailures)
	}
	if snap.IsOffline() {
		t.Fatal("IsOffline() = true, want false with 1 failure")
	}

	// Second failure - now offline
	s.RecordResync(errors.New("fail 2"))
	snap = s.Snapshot()
	if snap.ConsecutiveFailures != 2 {
		t.Fatalf("ConsecutiveFailures = %d, want 2", snap.ConsecutiveFailures)
	}
	if !snap.IsOffline() {
		t.Fatal("IsOffline() = false, want true with 2 failures")
	}

	// Success resets counter
	s.RecordResync(nil)
	snap = s.Snapshot()
	if snap.ConsecutiveFailures != 0 {
		t.Fatalf("ConsecutiveFailures = %d, want 0 after success", snap.ConsecutiveFailures)
	}
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil after success", snap.LastError)
	}
}
