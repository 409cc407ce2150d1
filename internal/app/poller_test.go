package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/five82/flowreader/internal/events"
	"github.com/five82/flowreader/internal/state"
)

func TestCalculateBackoff(t *testing.T) {
	baseInterval := 2 * time.Second

	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"zero failures", 0, 2 * time.Second},
		{"negative failures", -1, 2 * time.Second},
		{"one failure", 1, 4 * time.Second},
		{"two failures", 2, 8 * time.Second},
		{"three failures", 3, 16 * time.Second},
		{"four failures capped", 4, 30 * time.Second}, // Would be 32s, capped to 30s
		{"many failures capped", 10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.failures, baseInterval)
			if got != tt.want {
				t.Errorf("calculateBackoff(%d, %v) = %v, want %v", tt.failures, baseInterval, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_MaxCap(t *testing.T) {
	// Verify that backoff never exceeds maxBackoff regardless of input
	baseInterval := 2 * time.Second
	for failures := 0; failures <= 20; failures++ {
		got := calculateBackoff(failures, baseInterval)
		if got > maxBackoff {
			t.Errorf("calculateBackoff(%d, %v) = %v, exceeds maxBackoff %v", failures, baseInterval, got, maxBackoff)
		}
	}
}

type scriptedResyncer struct {
	mu    sync.Mutex
	errs  []error
	calls int
	ran   chan struct{}
}

func (s *scriptedResyncer) Resync(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	select {
	case s.ran <- struct{}{}:
	default:
	}
	return err == nil, err
}

func TestStartPoller_RecordsResultsAndStops(t *testing.T) {
	r := &scriptedResyncer{
		errs: []error{errors.New("offline"), errors.New("offline")},
		ran:  make(chan struct{}, 8),
	}
	store := &state.Store{}
	ctx, cancel := context.WithCancel(context.Background())

	// The interval caps the failure backoff, so every pass is 10ms apart.
	done := StartPoller(ctx, store, r, 10*time.Millisecond, nil, nil)

	for i := 0; i < 3; i++ {
		select {
		case <-r.ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("resync %d never ran", i+1)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.Snapshot().LastResync.IsZero() || store.Snapshot().ConsecutiveFailures != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("snapshot never recovered: %#v", store.Snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}

func TestStartPoller_WakeRunsEarlyPass(t *testing.T) {
	r := &scriptedResyncer{ran: make(chan struct{}, 8)}
	store := &state.Store{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wake := make(chan struct{}, 1)
	done := StartPoller(ctx, store, r, time.Hour, wake, nil)

	select {
	case <-r.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("initial resync never ran")
	}

	wake <- struct{}{}
	select {
	case <-r.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("wake did not trigger a resync")
	}

	cancel()
	<-done
}

func TestReopenNotifier_SignalsOnlyAfterFirstOpen(t *testing.T) {
	var states []events.State
	reopened := make(chan struct{}, 1)
	notify := reopenNotifier(func(s events.State, _ error) { states = append(states, s) }, reopened)

	notify(events.StateConnecting, nil)
	notify(events.StateOpen, nil)
	select {
	case <-reopened:
		t.Fatal("first open signalled a reopen")
	default:
	}

	notify(events.StateClosedWillRetry, errors.New("reset"))
	notify(events.StateOpen, nil)
	select {
	case <-reopened:
	default:
		t.Fatal("second open did not signal")
	}

	if len(states) != 4 {
		t.Fatalf("forwarded %d states, want 4", len(states))
	}
}

func TestResync_CountsFailures(t *testing.T) {
	r := &scriptedResyncer{errs: []error{errors.New("a"), errors.New("b")}, ran: make(chan struct{}, 8)}
	store := &state.Store{}
	ctx := context.Background()

	if got := resync(ctx, store, r, zap.NewNop()); got != 1 {
		t.Fatalf("first failure count = %d, want 1", got)
	}
	if got := resync(ctx, store, r, zap.NewNop()); got != 2 {
		t.Fatalf("second failure count = %d, want 2", got)
	}
	if !store.Snapshot().IsOffline() {
		t.Fatal("IsOffline() = false after two failures")
	}
	if got := resync(ctx, store, r, zap.NewNop()); got != 0 {
		t.Fatalf("success count = %d, want 0", got)
	}
}
