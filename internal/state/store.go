package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/flowreader/internal/events"
)

// Snapshot represents the latest sync status available to the UI.
type Snapshot struct {
	Stream        events.State
	StreamError   error
	StreamChanged time.Time

	LastNotification time.Time
	LastKind         events.Kind
	Notifications    int

	LastResync          time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive resync failures

	LastRollback      time.Time
	LastRollbackError error
}

// IsOffline returns true when the server has been unreachable for multiple resyncs.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// IsLive reports whether push notifications are currently flowing.
func (s Snapshot) IsLive() bool {
	return s.Stream == events.StateOpen
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// SetStream records an event stream state transition.
func (s *Store) SetStream(st events.State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Stream = st
	s.snapshot.StreamChanged = time.Now()
	if err != nil || st == events.StateOpen {
		s.snapshot.StreamError = err
	}
}

// RecordNotification counts a received push notification.
func (s *Store) RecordNotification(n events.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastNotification = time.Now()
	s.snapshot.LastKind = n.Kind()
	s.snapshot.Notifications++
}

// RecordResync records a periodic refresh. When err is non-nil the failure
// counter grows; a success resets it.
func (s *Store) RecordResync(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastResync = time.Now()
	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.ConsecutiveFailures++
		return
	}
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// RecordRollback keeps the most recent failed optimistic write for display.
func (s *Store) RecordRollback(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastRollback = time.Now()
	s.snapshot.LastRollbackError = err
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.StreamError = cloneErr(s.snapshot.StreamError)
	snap.LastError = cloneErr(s.snapshot.LastError)
	snap.LastRollbackError = cloneErr(s.snapshot.LastRollbackError)
	return snap
}

func cloneErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w", err)
}
