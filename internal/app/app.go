package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/five82/flowreader/internal/cache"
	"github.com/five82/flowreader/internal/config"
	"github.com/five82/flowreader/internal/events"
	"github.com/five82/flowreader/internal/flowapi"
	"github.com/five82/flowreader/internal/ledger"
	"github.com/five82/flowreader/internal/logging"
	"github.com/five82/flowreader/internal/prefs"
	"github.com/five82/flowreader/internal/state"
	"github.com/five82/flowreader/internal/syncer"
	"github.com/five82/flowreader/internal/ui"
)

// Options configure the flowreader application. Non-empty fields override the
// config file.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/flowreader/prefs.toml
	Server     string
	Session    string
	LogFile    string
	LogLevel   string
}

// Runtime is the wired sync stack shared by the TUI and the watch command.
type Runtime struct {
	Config      config.Config
	Logger      *zap.Logger
	Client      *flowapi.Client
	Store       *state.Store
	Coordinator *syncer.Coordinator

	// reopened is signalled when the stream opens again after a drop.
	reopened chan struct{}
	closeLog func() error
}

// LoadConfig reads the config file and applies the overrides in opts.
func LoadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if v := strings.TrimSpace(opts.Server); v != "" {
		cfg.Server = v
	}
	if v := strings.TrimSpace(opts.Session); v != "" {
		cfg.Session = v
	}
	if v := strings.TrimSpace(opts.LogFile); v != "" {
		cfg.LogFile = v
	}
	if v := strings.TrimSpace(opts.LogLevel); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// NewClient builds a REST client from the resolved config.
func NewClient(cfg config.Config) (*flowapi.Client, error) {
	client, err := flowapi.NewClient(cfg.Server, flowapi.Options{
		Session: cfg.Session,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}
	return client, nil
}

// Setup wires config, logging, the REST client, the cache, the event stream
// and the coordinator. observe, if set, sees every notification. The stream is
// not started.
func Setup(opts Options, observe func(events.Notification)) (*Runtime, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	client, err := NewClient(cfg)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	store := &state.Store{}
	reopened := make(chan struct{}, 1)
	stream := events.NewClient(events.Options{
		URL:            client.StreamURL(),
		Header:         client.AuthHeader,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
		OnState:        reopenNotifier(store.SetStream, reopened),
	})

	coord, err := syncer.New(syncer.Options{
		Cache:           cache.New(cfg.PageSize),
		API:             client,
		Stream:          stream,
		RequestTimeout:  cfg.RequestTimeout,
		MutationTimeout: cfg.RequestTimeout,
		OnRollback:      func(m *ledger.PendingMutation) { store.RecordRollback(m.Err()) },
		Observe: func(n events.Notification) {
			store.RecordNotification(n)
			if observe != nil {
				observe(n)
			}
		},
		Logger: logger,
	})
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("init sync: %w", err)
	}

	logger.Info("flowreader configured",
		zap.String("server", client.BaseURL().String()),
		zap.Bool("session", cfg.Session != ""),
		zap.Int("page_size", cfg.PageSize),
		zap.Duration("reconnect_delay", cfg.ReconnectDelay))

	return &Runtime{
		Config:      cfg,
		Logger:      logger,
		Client:      client,
		Store:       store,
		Coordinator: coord,
		reopened:    reopened,
		closeLog:    closeLog,
	}, nil
}

// reopenNotifier forwards stream states to next and signals reopened on every
// open after the first one. Notifications missed while the stream was down
// are only recovered by a resync.
func reopenNotifier(next func(events.State, error), reopened chan<- struct{}) func(events.State, error) {
	var opened atomic.Bool
	return func(s events.State, err error) {
		next(s, err)
		if s != events.StateOpen {
			return
		}
		if opened.Swap(true) {
			select {
			case reopened <- struct{}{}:
			default:
			}
		}
	}
}

// Start opens the event stream and launches the resync poller.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.Coordinator.Start(); err != nil {
		return err
	}
	StartPoller(ctx, r.Store, r.Coordinator, r.Config.ResyncInterval, r.reopened, r.Logger)
	return nil
}

// Close stops the stream, waits for pending writes and flushes the log.
func (r *Runtime) Close() error {
	r.Coordinator.Stop()
	if r.closeLog != nil {
		return r.closeLog()
	}
	return nil
}

// Run boots the flowreader TUI until the user quits or the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	rt, err := Setup(opts, nil)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	userPrefs, _ := prefs.Load(opts.PrefsPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := rt.Start(ctx); err != nil {
		return err
	}

	return ui.Run(ui.Options{
		Context:     ctx,
		Coordinator: rt.Coordinator,
		Store:       rt.Store,
		Prefs:       userPrefs,
		PrefsPath:   opts.PrefsPath,
		Logger:      rt.Logger,
	})
}
