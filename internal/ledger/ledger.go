// Package ledger performs optimistic article writes.
//
// Perform applies a patch to the cache at once, remembers the prior field
// values and runs the remote call in the background. A failed or timed-out
// call restores the prior values in every collection; a successful one
// leaves the optimistic values in place.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/five82/flowreader/internal/cache"
)

// DefaultTimeout bounds a remote call when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned by a mutation whose remote call outlived the timeout.
var ErrTimeout = errors.New("mutation timed out")

// Status is the lifecycle position of a mutation.
type Status int

const (
	StatusPending Status = iota
	StatusCommitted
	StatusRolledBack
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCommitted:
		return "committed"
	case StatusRolledBack:
		return "rolled-back"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Store is the slice of the collection cache the ledger writes through.
type Store interface {
	ApplyPatch(id string, patch cache.Patch) (prior cache.Patch, found bool)
	UpdateItem(id string, patch cache.Patch) []cache.Key
}

// RemoteCall performs the server side of a mutation.
type RemoteCall func(ctx context.Context) error

// PendingMutation is one optimistic write. Prior holds the values the patch
// replaced, captured when the mutation was performed.
type PendingMutation struct {
	ID        uuid.UUID
	ArticleID string
	Patch     cache.Patch
	Prior     cache.Patch
	Found     bool
	CreatedAt time.Time

	mu     sync.Mutex
	status Status
	err    error
	done   chan struct{}
}

// Status returns the current lifecycle position.
func (m *PendingMutation) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Err returns the failure that rolled the mutation back, if any.
func (m *PendingMutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Done is closed once the mutation is terminal.
func (m *PendingMutation) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the mutation is terminal or ctx ends and returns the
// mutation's error.
func (m *PendingMutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *PendingMutation) resolve(status Status, err error) {
	m.mu.Lock()
	m.status = status
	m.err = err
	m.mu.Unlock()
}

// Options configures a Ledger.
type Options struct {
	Timeout    time.Duration
	OnCommit   func(*PendingMutation)
	OnRollback func(*PendingMutation)
	Logger     *zap.Logger
}

// Ledger applies optimistic writes to the cache and reverts them when the
// server rejects them.
type Ledger struct {
	store      Store
	timeout    time.Duration
	onCommit   func(*PendingMutation)
	onRollback func(*PendingMutation)
	logger     *zap.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]*PendingMutation
	wg      sync.WaitGroup
}

// New returns a ledger writing through store.
func New(store Store, opts Options) *Ledger {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:      store,
		timeout:    timeout,
		onCommit:   opts.OnCommit,
		onRollback: opts.OnRollback,
		logger:     logger.Named("ledger"),
		pending:    make(map[uuid.UUID]*PendingMutation),
	}
}

// Perform applies patch to every cached copy of id right away and runs remote
// in the background. A failed or timed out remote call reapplies the values
// the patch replaced.
func (l *Ledger) Perform(ctx context.Context, id string, patch cache.Patch, remote RemoteCall) *PendingMutation {
	m := &PendingMutation{
		ID:        uuid.New(),
		ArticleID: id,
		Patch:     patch,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
	m.Prior, m.Found = l.store.ApplyPatch(id, patch)

	l.mu.Lock()
	l.pending[m.ID] = m
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.settle(m, l.call(ctx, remote))
	}()
	return m
}

// Pending lists the mutations still awaiting the server, oldest first.
func (l *Ledger) Pending() []*PendingMutation {
	l.mu.Lock()
	out := make([]*PendingMutation, 0, len(l.pending))
	for _, m := range l.pending {
		out = append(out, m)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Wait blocks until every mutation started so far is terminal.
func (l *Ledger) Wait() {
	l.wg.Wait()
}

func (l *Ledger) call(ctx context.Context, remote RemoteCall) error {
	if remote == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- remote(ctx) }()

	select {
	case err := <-result:
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

// settle runs the hooks before closing Done so waiters observe their effects.
func (l *Ledger) settle(m *PendingMutation, err error) {
	defer close(m.done)

	l.mu.Lock()
	delete(l.pending, m.ID)
	l.mu.Unlock()

	if err == nil {
		m.resolve(StatusCommitted, nil)
		l.logger.Debug("mutation committed",
			zap.String("mutation", m.ID.String()),
			zap.String("article", m.ArticleID),
			zap.Strings("fields", m.Patch.Fields()))
		if l.onCommit != nil {
			l.onCommit(m)
		}
		return
	}

	if m.Found {
		l.store.UpdateItem(m.ArticleID, m.Prior)
	}
	m.resolve(StatusRolledBack, err)
	l.logger.Warn("mutation rolled back",
		zap.String("mutation", m.ID.String()),
		zap.String("article", m.ArticleID),
		zap.Strings("fields", m.Patch.Fields()),
		zap.Error(err))
	if l.onRollback != nil {
		l.onRollback(m)
	}
}
