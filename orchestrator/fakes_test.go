package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/pastewire/orchestrator/internal/browser"
	"github.com/hazyhaar/pastewire/orchestrator/internal/wire"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var errGone = errors.New("page gone")

type fakePage struct {
	id  string
	url string

	mu        sync.Mutex
	has       map[string]bool
	selection string
	state     wire.ContextState
	stateErr  error
	info      wire.ElementInfo
	infoErr   error
	answer    string
	answerOK  bool
	promptErr error
	prompts   []string
	notes     []string
	values    []wire.SetValue
	activated int
	ensured   int
}

func (p *fakePage) ID() string { return p.id }

func (p *fakePage) URL(ctx context.Context) (string, error) { return p.url, nil }

func (p *fakePage) Has(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.has[selector], nil
}

func (p *fakePage) Activate(ctx context.Context) error {
	p.mu.Lock()
	p.activated++
	p.mu.Unlock()
	return nil
}

func (p *fakePage) SetValue(ctx context.Context, msg wire.SetValue) error {
	p.mu.Lock()
	p.values = append(p.values, msg)
	p.mu.Unlock()
	return nil
}

func (p *fakePage) EnsureProbe(ctx context.Context) error {
	p.mu.Lock()
	p.ensured++
	p.mu.Unlock()
	return nil
}

func (p *fakePage) ContextState(ctx context.Context) (wire.ContextState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.stateErr
}

func (p *fakePage) ElementInfo(ctx context.Context) (wire.ElementInfo, error) {
	return p.info, p.infoErr
}

func (p *fakePage) SelectionText(ctx context.Context) (string, error) {
	return p.selection, nil
}

func (p *fakePage) Notify(ctx context.Context, message string) error {
	p.mu.Lock()
	p.notes = append(p.notes, message)
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Prompt(ctx context.Context, message, def string) (string, bool, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, def)
	p.mu.Unlock()
	return p.answer, p.answerOK, p.promptErr
}

func (p *fakePage) lastNote() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.notes) == 0 {
		return ""
	}
	return p.notes[len(p.notes)-1]
}

func (p *fakePage) sent() []wire.SetValue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]wire.SetValue(nil), p.values...)
}

type fakeBrowser struct {
	mu     sync.Mutex
	pages  []*fakePage
	opened []string
	events chan browser.Event
}

func newFakeBrowser(pages ...*fakePage) *fakeBrowser {
	return &fakeBrowser{pages: pages, events: make(chan browser.Event, 16)}
}

func (b *fakeBrowser) Page(id string) (Page, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.pages {
		if p.id == id {
			return p, true
		}
	}
	return nil, false
}

func (b *fakeBrowser) Pages(ctx context.Context) ([]Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Page, len(b.pages))
	for i, p := range b.pages {
		out[i] = p
	}
	return out, nil
}

func (b *fakeBrowser) Open(ctx context.Context, url string) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &fakePage{id: fmt.Sprintf("new-%d", len(b.opened)+1), url: url}
	b.opened = append(b.opened, url)
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBrowser) Events() <-chan browser.Event { return b.events }

func (b *fakeBrowser) openedURLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.opened...)
}

func (b *fakeBrowser) page(id string) *fakePage {
	p, _ := b.Page(id)
	fp, _ := p.(*fakePage)
	return fp
}

type timerEntry struct {
	d time.Duration
	f func()
}

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	queue []timerEntry
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) {
	c.mu.Lock()
	c.queue = append(c.queue, timerEntry{d, f})
	c.mu.Unlock()
}

func (c *fakeClock) offsets() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.queue))
	for i, e := range c.queue {
		out[i] = e.d
	}
	return out
}

// fireAll runs queued functions in offset order.
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	q := c.queue
	c.queue = nil
	c.mu.Unlock()
	sort.SliceStable(q, func(i, j int) bool { return q[i].d < q[j].d })
	for _, e := range q {
		e.f()
	}
}

func testConfig(dbPath string) *Config {
	cfg := &Config{DBPath: dbPath}
	cfg.Menu.Settle = time.Millisecond
	return cfg
}

// newTestOrchestrator starts an Orchestrator over an in-memory store.
func newTestOrchestrator(t *testing.T, b Browser) (*Orchestrator, *fakeClock) {
	t.Helper()
	return newTestOrchestratorAt(t, b, ":memory:")
}

func newTestOrchestratorAt(t *testing.T, b Browser, dbPath string) (*Orchestrator, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	o, err := New(testConfig(dbPath), b, quiet, WithClock(clock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { o.Close() })
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return o, clock
}
