// Package orchestrator is the long-lived pastewire process. It owns the
// preset cache and the menu lifecycle, and routes menu clicks either to the
// capture flow or to tab resolution and delivery.
//
// The pipeline of one preset click:
//
//	click → preset lookup (cache) → selection check → tabs.Resolve → delivery.Deliver
//
// Usage:
//
//	b, err := orchestrator.StartBrowser(ctx, cfg.Browser, logger)
//	defer b.Close()
//	o, err := orchestrator.New(cfg, b, logger)
//	defer o.Close()
//	o.RegisterMCP(mcpServer)
//	o.RegisterConnectivity(router)
//	if err := o.Start(ctx); err != nil { ... }
//	go o.Run(ctx)
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/pastewire/orchestrator/internal/browser"
	"github.com/hazyhaar/pastewire/orchestrator/internal/delivery"
	"github.com/hazyhaar/pastewire/orchestrator/internal/menu"
	"github.com/hazyhaar/pastewire/orchestrator/internal/preset"
	"github.com/hazyhaar/pastewire/orchestrator/internal/store"
	"github.com/hazyhaar/pastewire/orchestrator/internal/syncer"
	"github.com/hazyhaar/pastewire/orchestrator/internal/tabs"
	"github.com/hazyhaar/pastewire/orchestrator/internal/wire"
)

// User-facing failures of a click.
var (
	ErrNoSelection = errors.New("no-selection")
	ErrNoEditable  = errors.New("no-editable")
	ErrNoPage      = errors.New("no-page")
)

// Page is what the orchestrator needs from an open browser page.
type Page interface {
	ID() string
	URL(ctx context.Context) (string, error)
	Has(ctx context.Context, selector string) (bool, error)
	Activate(ctx context.Context) error
	SetValue(ctx context.Context, msg wire.SetValue) error
	EnsureProbe(ctx context.Context) error
	ContextState(ctx context.Context) (wire.ContextState, error)
	ElementInfo(ctx context.Context) (wire.ElementInfo, error)
	SelectionText(ctx context.Context) (string, error)
	Notify(ctx context.Context, message string) error
	Prompt(ctx context.Context, message, def string) (string, bool, error)
}

// Browser is the page source the orchestrator drives.
type Browser interface {
	Page(id string) (Page, bool)
	Pages(ctx context.Context) ([]Page, error)
	Open(ctx context.Context, url string) (Page, error)
	Events() <-chan browser.Event
}

// Orchestrator coordinates presets, menu, synchronizer and delivery.
type Orchestrator struct {
	cfg     *Config
	logger  *slog.Logger
	store   *store.Store
	cache   *preset.Cache
	reg     *menu.Registry
	state   *menu.State
	machine *menu.Machine
	sync    *syncer.Synchronizer
	tabs    *tabs.Resolver
	engine  *delivery.Engine
	browser Browser

	// mu makes the cache single-writer: mutate, persist, rebuild.
	mu sync.Mutex

	life context.Context
	stop context.CancelFunc
}

// Option customises an Orchestrator.
type Option func(*options)

type options struct {
	clock delivery.Clock
	ids   func() string
}

// WithClock sets the delivery clock.
func WithClock(c delivery.Clock) Option { return func(o *options) { o.clock = c } }

// WithIDGenerator sets the preset id generator.
func WithIDGenerator(gen func() string) Option { return func(o *options) { o.ids = gen } }

// New opens the store, loads the preset cache and wires the components.
// Call Start to build the menu.
func New(cfg *Config, b Browser, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	var op options
	for _, fn := range opts {
		fn(&op)
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	list, err := s.LoadPresets(context.Background())
	if err != nil {
		s.Close()
		return nil, err
	}

	var cacheOpts []preset.CacheOption
	if op.ids != nil {
		cacheOpts = append(cacheOpts, preset.WithIDGenerator(op.ids))
	}
	cache := preset.NewCache(nil, cacheOpts...)
	cache.Replace(list)

	life, stop := context.WithCancel(context.Background())

	o := &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		store:   s,
		cache:   cache,
		reg:     menu.NewRegistry(),
		state:   menu.NewState(),
		browser: b,
		life:    life,
		stop:    stop,
	}
	o.machine = menu.NewMachine(o.reg, o.state, menu.Config{
		Title:  cfg.Menu.Title,
		Settle: cfg.Menu.Settle,
		Logger: logger,
	})
	o.sync = syncer.New(o.state, o.machine, syncer.PullerFunc(o.pull), cfg.Sync.PullTimeout, logger)
	o.tabs = tabs.NewResolver(tabsBrowser{b}, logger)
	o.engine = delivery.New(life, delivery.Config{
		Clock:           op.clock,
		AttemptTimeout:  cfg.Delivery.AttemptTimeout,
		SubmitSelectors: cfg.Delivery.SubmitSelectors,
		Logger:          logger,
	})
	return o, nil
}

// Start performs the first resumption: reload the cache and build the menu.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.Resume(ctx); err != nil {
		return err
	}
	o.logger.Info("orchestrator: started", "db", o.cfg.DBPath, "presets", o.cache.Len())
	return nil
}

// Run processes probe pushes and watches the persisted record until ctx is
// cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o.eventLoop(ctx)
		return nil
	})
	if !o.store.InMemory() {
		g.Go(func() error {
			return o.store.Watch(ctx, store.WatchOptions{
				Interval: o.cfg.Watch.Interval,
				Debounce: o.cfg.Watch.Debounce,
				Logger:   o.logger,
			}, o.onStoreChange)
		})
	}
	return g.Wait()
}

// Resume reloads the cache from the persisted record in full and rebuilds
// the menu.
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	list, err := o.store.LoadPresets(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: resume: %w", err)
	}
	o.cache.Replace(list)
	o.store.LogEvent(ctx, store.Event{Kind: store.EventResumed, Detail: fmt.Sprintf("%d presets", len(list)), Success: true})
	return o.rebuildLocked(ctx)
}

func (o *Orchestrator) onStoreChange(ctx context.Context) error {
	list, err := o.store.LoadPresets(ctx)
	if err != nil {
		return err
	}
	if o.cache.Equal(list) {
		return nil
	}
	o.logger.Info("orchestrator: preset record changed externally, resuming")
	return o.Resume(ctx)
}

// rebuildLocked rebuilds the menu from the cache and pulls the active page.
// Callers hold o.mu.
func (o *Orchestrator) rebuildLocked(ctx context.Context) error {
	list := o.cache.List()
	if err := o.machine.Rebuild(ctx, list); err != nil {
		o.logger.Error("orchestrator: menu rebuild failed", "error", err)
		o.store.LogEvent(ctx, store.Event{Kind: store.EventMenuRebuilt, Detail: err.Error()})
		return err
	}
	o.store.LogEvent(ctx, store.Event{Kind: store.EventMenuRebuilt, Detail: fmt.Sprintf("%d presets", len(list)), Success: true})
	o.sync.Refresh(ctx)
	return nil
}

// pull asks a page's probe for its context state.
func (o *Orchestrator) pull(ctx context.Context, pageID string) (wire.ContextState, error) {
	p, ok := o.browser.Page(pageID)
	if !ok {
		return wire.ContextState{}, fmt.Errorf("orchestrator: %w: %s", ErrNoPage, pageID)
	}
	return p.ContextState(ctx)
}

// Close stops pending deliveries and closes the database.
func (o *Orchestrator) Close() error {
	o.stop()
	return o.store.Close()
}

// Presets returns the cached presets in order.
func (o *Orchestrator) Presets() []preset.Preset { return o.cache.List() }

// Menu returns the current menu items.
func (o *Orchestrator) Menu() []menu.Item { return o.reg.Snapshot() }

// Events returns recent audit events, newest first.
func (o *Orchestrator) Events(ctx context.Context, limit int) ([]store.Event, error) {
	return o.store.RecentEvents(ctx, limit)
}

// Stats holds runtime counters.
type Stats struct {
	Presets  int            `json:"presets"`
	Rebuilds int64          `json:"rebuilds"`
	Active   string         `json:"active_page,omitempty"`
	Sync     syncer.Stats   `json:"sync"`
	Delivery delivery.Stats `json:"delivery"`
}

// Stats returns current counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Presets:  o.cache.Len(),
		Rebuilds: o.machine.Rebuilds(),
		Active:   o.state.Active(),
		Sync:     o.sync.Stats(),
		Delivery: o.engine.Stats(),
	}
}
