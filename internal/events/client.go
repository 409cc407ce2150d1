// Package events maintains the websocket notification stream from the reader
// server and decodes its messages. The connection is redialed after a fixed
// delay whenever it drops, until Stop is called.
package events

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the connection state of a Client.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosedWillRetry
	StateClosedPermanent
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedWillRetry:
		return "closed-will-retry"
	case StateClosedPermanent:
		return "closed-permanent"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handler receives every successfully decoded notification in arrival order.
// It runs on the read goroutine and must not block.
type Handler func(Notification)

// Dialer opens websocket connections. *websocket.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Options configure a Client.
type Options struct {
	URL string
	// Header is called before every dial so a refreshed session is picked up.
	Header         func() http.Header
	ReconnectDelay time.Duration
	Dialer         Dialer
	Logger         *zap.Logger
	// OnState observes state transitions. err is the close cause, if any.
	OnState func(State, error)
	// After schedules the reconnect; defaults to time.After.
	After func(time.Duration) <-chan time.Time
}

// DefaultReconnectDelay is the fixed pause between a close and the next dial.
const DefaultReconnectDelay = 5 * time.Second

const maxMessageSize = 1 << 20

// ErrAlreadyStarted is returned by Start on a running client.
var ErrAlreadyStarted = errors.New("event stream already started")

// Client keeps one websocket to the notification endpoint open, redialing
// after a fixed delay for as long as it runs.
type Client struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	state   State
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewClient builds a stopped Client.
func NewClient(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if opts.After == nil {
		opts.After = time.After
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		opts:  opts,
		log:   logger.Named("events"),
		state: StateClosedPermanent,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins connecting in the background and returns immediately.
func (c *Client) Start(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler is nil")
	}
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.run(ctx, handler, done)
	return nil
}

// Stop closes the connection, cancels any scheduled reconnect and waits for the
// background goroutine to exit. It is a no-op when the client is not running.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
}

func (c *Client) run(ctx context.Context, handler Handler, done chan struct{}) {
	defer close(done)
	for {
		c.setState(StateConnecting, nil)
		err := c.connect(ctx, handler)
		if ctx.Err() != nil {
			c.setState(StateClosedPermanent, nil)
			return
		}
		c.setState(StateClosedWillRetry, err)
		c.log.Warn("event stream closed, retrying",
			zap.Error(err),
			zap.Duration("delay", c.opts.ReconnectDelay))

		select {
		case <-ctx.Done():
			c.setState(StateClosedPermanent, nil)
			return
		case <-c.opts.After(c.opts.ReconnectDelay):
		}
	}
}

// connect dials once and reads until the connection fails or ctx ends.
func (c *Client) connect(ctx context.Context, handler Handler) error {
	var header http.Header
	if c.opts.Header != nil {
		header = c.opts.Header()
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	})
	defer stop()

	conn.SetReadLimit(maxMessageSize)
	c.setState(StateOpen, nil)
	c.log.Info("event stream connected", zap.String("url", c.opts.URL))

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		notes, errs := DecodeFrame(frame)
		for _, decodeErr := range errs {
			c.log.Warn("dropping malformed notification", zap.Error(decodeErr))
		}
		for _, n := range notes {
			handler(n)
		}
	}
}

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.opts.OnState != nil {
		c.opts.OnState(s, err)
	}
}
