// Package browser manages the Chrome instance pastewire drives: launch or
// connect, track open pages, attach a probe to each, and open new pages
// with a one-shot load wait.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/pastewire/orchestrator/internal/probe"
	"github.com/hazyhaar/pastewire/orchestrator/internal/wire"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools URL of a running Chrome (ws:// or the
	// http:// debugging endpoint). Empty launches a local Chrome.
	RemoteURL string `yaml:"remote"`

	// Headless launches Chrome without a window. Ignored with RemoteURL.
	Headless bool `yaml:"headless"`

	// Stealth applies go-rod/stealth evasions to pages pastewire opens.
	Stealth bool `yaml:"stealth"`

	// Bin overrides the Chrome binary.
	Bin string `yaml:"bin"`

	// LoadTimeout bounds the load wait of new pages. Default: 30s.
	LoadTimeout time.Duration `yaml:"load_timeout"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Event is a probe push tagged with the page it came from.
type Event struct {
	PageID string
	Push   wire.Push
}

// Manager owns the Chrome connection and the probe sessions of its pages.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	ctx     context.Context
	cancel  context.CancelFunc
	pages   map[string]*tracked
	events  chan Event
	closed  bool
}

// tracked is an attached page. stop ends its push listener.
type tracked struct {
	session *probe.Session
	stop    context.CancelFunc
}

// NewManager creates a Manager. Call Start to launch or connect.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{
		cfg:    cfg,
		pages:  make(map[string]*tracked),
		events: make(chan Event, 256),
	}
}

// Events returns the channel of probe pushes from every page.
func (m *Manager) Events() <-chan Event { return m.events }

// Start connects to Chrome, attaches probes to open pages and follows
// page creation and destruction.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("browser: manager is closed")
	}
	b, err := m.launch()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.browser = b
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		m.cfg.Logger.Warn("browser: target discovery", "error", err)
	}
	go m.followTargets()

	pages, err := b.Pages()
	if err != nil {
		return fmt.Errorf("browser: list pages: %w", err)
	}
	for _, p := range pages {
		m.attach(p)
	}
	m.cfg.Logger.Info("browser: started", "pages", len(pages))
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		u, err := launcher.ResolveURL(m.cfg.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("browser: resolve %s: %w", m.cfg.RemoteURL, err)
		}
		wsURL = u
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(m.cfg.Headless)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headless", m.cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) followTargets() {
	m.mu.RLock()
	b, ctx := m.browser, m.ctx
	m.mu.RUnlock()

	b.Context(ctx).EachEvent(
		func(e *proto.TargetTargetCreated) {
			if e.TargetInfo == nil || e.TargetInfo.Type != proto.TargetTargetInfoTypePage {
				return
			}
			go func() {
				p, err := b.PageFromTarget(e.TargetInfo.TargetID)
				if err != nil {
					m.cfg.Logger.Debug("browser: attach target", "target", e.TargetInfo.TargetID, "error", err)
					return
				}
				m.attach(p)
			}()
		},
		func(e *proto.TargetTargetDestroyed) {
			m.forget(string(e.TargetID))
		},
	)()
}

// attach installs a probe on p once and starts forwarding its pushes.
func (m *Manager) attach(p *rod.Page) *probe.Session {
	id := string(p.TargetID)
	s, ctx, fresh := m.track(id, func() *probe.Session { return probe.New(p, id, m.cfg.Logger) })
	if !fresh {
		return s
	}

	go s.Listen(ctx, func(push wire.Push) {
		select {
		case m.events <- Event{PageID: id, Push: push}:
		default:
			m.cfg.Logger.Warn("browser: event channel full, push dropped", "page", id)
		}
	})

	ictx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.Install(ictx); err != nil {
		m.cfg.Logger.Debug("browser: probe install", "page", id, "error", err)
	}
	return s
}

// track registers the session of page id unless one exists, and reports
// whether it is new. The returned context ends when the page is forgotten
// or the manager closes.
func (m *Manager) track(id string, newSession func() *probe.Session) (*probe.Session, context.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.pages[id]; ok {
		return t.session, nil, false
	}
	ctx, stop := context.WithCancel(m.ctx)
	t := &tracked{session: newSession(), stop: stop}
	m.pages[id] = t
	return t.session, ctx, true
}

// forget drops a destroyed page and stops its listener.
func (m *Manager) forget(id string) {
	m.mu.Lock()
	t, ok := m.pages[id]
	delete(m.pages, id)
	m.mu.Unlock()
	if ok {
		t.stop()
	}
}

// Session returns the probe session of a page.
func (m *Manager) Session(id string) (*probe.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.pages[id]
	if !ok {
		return nil, false
	}
	return t.session, true
}

// Pages returns the sessions of all open pages in browser order.
func (m *Manager) Pages(ctx context.Context) ([]*probe.Session, error) {
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}
	pages, err := b.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}
	out := make([]*probe.Session, 0, len(pages))
	for _, p := range pages {
		out = append(out, m.attach(p))
	}
	return out, nil
}

// Open creates a page at url and returns once its load event fired or the
// load timeout passed.
func (m *Manager) Open(ctx context.Context, url string) (*probe.Session, error) {
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	var page *rod.Page
	var err error
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	s := m.attach(page)

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.LoadTimeout)
	defer cancel()

	wait := page.Context(navCtx).WaitEvent(&proto.PageLoadEventFired{})
	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	wait()
	if navCtx.Err() != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", navCtx.Err())
	}
	return s, nil
}

// Close shuts down Chrome (if launched) and stops page tracking.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
	}
	if m.browser != nil {
		if m.lnch != nil {
			m.browser.Close()
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return nil
}
