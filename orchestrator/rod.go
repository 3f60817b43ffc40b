package orchestrator

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/pastewire/orchestrator/internal/browser"
	"github.com/hazyhaar/pastewire/orchestrator/internal/tabs"
)

// RodBrowser adapts a browser.Manager to Browser.
type RodBrowser struct {
	m *browser.Manager
}

// StartBrowser launches or connects to Chrome as cfg says and attaches a
// probe to every page. Close it after the Orchestrator.
func StartBrowser(ctx context.Context, cfg browser.Config, logger *slog.Logger) (*RodBrowser, error) {
	if logger != nil {
		cfg.Logger = logger
	}
	m := browser.NewManager(cfg)
	if err := m.Start(ctx); err != nil {
		m.Close()
		return nil, err
	}
	return &RodBrowser{m: m}, nil
}

// Close shuts the browser connection down.
func (b *RodBrowser) Close() error { return b.m.Close() }

func (b *RodBrowser) Page(id string) (Page, bool) {
	s, ok := b.m.Session(id)
	if !ok {
		return nil, false
	}
	return s, true
}

func (b *RodBrowser) Pages(ctx context.Context) ([]Page, error) {
	sessions, err := b.m.Pages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Page, len(sessions))
	for i, s := range sessions {
		out[i] = s
	}
	return out, nil
}

func (b *RodBrowser) Open(ctx context.Context, url string) (Page, error) {
	s, err := b.m.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *RodBrowser) Events() <-chan browser.Event { return b.m.Events() }

// tabsBrowser narrows a Browser to what the tab resolver needs. The pages it
// hands out are the Browser's own, so results convert back to Page.
type tabsBrowser struct {
	b Browser
}

func (t tabsBrowser) Pages(ctx context.Context) ([]tabs.Page, error) {
	pages, err := t.b.Pages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tabs.Page, len(pages))
	for i, p := range pages {
		out[i] = p
	}
	return out, nil
}

func (t tabsBrowser) Open(ctx context.Context, url string) (tabs.Page, error) {
	p, err := t.b.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	return p, nil
}
