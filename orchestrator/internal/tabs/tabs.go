// Package tabs resolves the page a delivery goes to: an open page of the
// right origin that already contains the target element, or a new page.
package tabs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/pastewire/orchestrator/internal/preset"
)

// Page is an open browser page.
type Page interface {
	ID() string
	URL(ctx context.Context) (string, error)
	// Has reports whether selector matches an element in any frame.
	Has(ctx context.Context, selector string) (bool, error)
	Activate(ctx context.Context) error
}

// Browser enumerates and opens pages.
type Browser interface {
	Pages(ctx context.Context) ([]Page, error)
	// Open creates a page at url and returns once it has loaded.
	Open(ctx context.Context, url string) (Page, error)
}

// Result is a resolved page and whether it was reused.
type Result struct {
	Page   Page
	Reused bool
}

// Resolver implements tab resolution over a Browser.
type Resolver struct {
	browser Browser
	logger  *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(b Browser, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{browser: b, logger: logger}
}

// Resolve returns the page to deliver to. With reuse, open pages of the
// same origin as targetURL are probed for selector in enumeration order and
// the first hit wins; probe failures count as misses. Without reuse, or
// when nothing matches, a new page is opened at targetURL.
func (r *Resolver) Resolve(ctx context.Context, targetURL, selector string, reuse bool) (Result, error) {
	if reuse {
		if p, ok := r.findReusable(ctx, targetURL, selector); ok {
			return Result{Page: p, Reused: true}, nil
		}
	}
	p, err := r.browser.Open(ctx, targetURL)
	if err != nil {
		return Result{}, fmt.Errorf("tabs: open %s: %w", targetURL, err)
	}
	return Result{Page: p}, nil
}

func (r *Resolver) findReusable(ctx context.Context, targetURL, selector string) (Page, bool) {
	origin, err := preset.Origin(targetURL)
	if err != nil {
		r.logger.Warn("tabs: target has no origin", "url", targetURL, "error", err)
		return nil, false
	}
	pages, err := r.browser.Pages(ctx)
	if err != nil {
		r.logger.Warn("tabs: enumerate pages", "error", err)
		return nil, false
	}
	for _, p := range pages {
		u, err := p.URL(ctx)
		if err != nil {
			r.logger.Debug("tabs: page url", "page", p.ID(), "error", err)
			continue
		}
		if o, err := preset.Origin(u); err != nil || o != origin {
			continue
		}
		ok, err := p.Has(ctx, selector)
		if err != nil {
			r.logger.Debug("tabs: presence probe failed", "page", p.ID(), "error", err)
			continue
		}
		if ok {
			r.logger.Debug("tabs: reusing page", "page", p.ID(), "origin", origin)
			return p, true
		}
	}
	return nil, false
}
