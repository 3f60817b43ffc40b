// Package menu implements the menu state machine: a root, three fixed
// actions and one entry per preset, each enabled or disabled from the
// trusted context state.
package menu

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/pastewire/orchestrator/internal/preset"
	"github.com/hazyhaar/pastewire/orchestrator/internal/wire"
)

// Fixed item ids, stable across rebuilds.
const (
	RootID      = "pastewire"
	CaptureID   = "add_paste_target"
	RefreshID   = "refresh_status"
	ConfigureID = "configure"
)

// Kind classifies an item for click routing and enablement.
type Kind string

const (
	KindRoot      Kind = "root"
	KindCapture   Kind = "capture"
	KindPreset    Kind = "preset"
	KindRefresh   Kind = "refresh"
	KindConfigure Kind = "configure"
)

// Item is one menu entry. Preset entries carry the preset id as ID.
type Item struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	Title    string `json:"title"`
	Kind     Kind   `json:"kind"`
	Enabled  bool   `json:"enabled"`
}

// FixedKind returns the kind of a fixed item id, or KindPreset for
// anything else.
func FixedKind(id string) Kind {
	switch id {
	case RootID:
		return KindRoot
	case CaptureID:
		return KindCapture
	case RefreshID:
		return KindRefresh
	case ConfigureID:
		return KindConfigure
	}
	return KindPreset
}

// Config tunes a Machine.
type Config struct {
	Title  string
	Settle time.Duration
	Logger *slog.Logger
}

// Machine owns the menu tree on a Host. Rebuild and Apply are serialised
// by one lock; host calls happen under it so a rebuild is atomic to
// callers.
type Machine struct {
	mu     sync.Mutex
	host   Host
	state  *State
	title  string
	settle time.Duration
	logger *slog.Logger

	presets []string
	built   bool

	rebuilds atomic.Int64
}

// NewMachine creates a Machine driving host and guarded by state.
func NewMachine(host Host, state *State, cfg Config) *Machine {
	if cfg.Title == "" {
		cfg.Title = "PasteWire"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Machine{
		host:   host,
		state:  state,
		title:  cfg.Title,
		settle: cfg.Settle,
		logger: cfg.Logger,
	}
}

// Rebuild replaces the whole tree: root, capture, presets in order, refresh,
// configure, everything enabled. On failure the tree is removed so it is
// never left partially built. The rebuilding guard stays up for the
// settle window after the host calls complete.
func (m *Machine) Rebuild(ctx context.Context, list []preset.Preset) error {
	if len(list) > preset.MaxPresets {
		return fmt.Errorf("menu: rebuild: %d presets exceeds cap %d", len(list), preset.MaxPresets)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.beginRebuild()
	defer m.state.endRebuild()

	err := m.build(ctx, list)
	if err != nil {
		if rmErr := m.host.RemoveAll(context.WithoutCancel(ctx)); rmErr != nil {
			m.logger.Error("menu: teardown after failed rebuild", "error", rmErr)
		}
		m.built = false
		m.presets = nil
	}

	if m.settle > 0 {
		t := time.NewTimer(m.settle)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}

	if err != nil {
		return fmt.Errorf("menu: rebuild: %w", err)
	}
	m.rebuilds.Add(1)
	m.logger.Debug("menu: rebuilt", "presets", len(list))
	return nil
}

func (m *Machine) build(ctx context.Context, list []preset.Preset) error {
	if err := m.host.RemoveAll(ctx); err != nil {
		return err
	}
	items := Layout(m.title, list)
	for _, it := range items {
		if err := m.host.Create(ctx, it); err != nil {
			return fmt.Errorf("create %s: %w", it.ID, err)
		}
	}
	m.presets = m.presets[:0]
	for _, p := range list {
		m.presets = append(m.presets, p.ID)
	}
	m.built = true
	return nil
}

// Layout returns the items a rebuild creates, in creation order.
func Layout(title string, list []preset.Preset) []Item {
	items := make([]Item, 0, len(list)+4)
	items = append(items,
		Item{ID: RootID, Title: title, Kind: KindRoot, Enabled: true},
		Item{ID: CaptureID, ParentID: RootID, Title: "Add as Paste Target", Kind: KindCapture, Enabled: true},
	)
	for _, p := range list {
		items = append(items, Item{ID: p.ID, ParentID: RootID, Title: p.Name, Kind: KindPreset, Enabled: true})
	}
	items = append(items,
		Item{ID: RefreshID, ParentID: RootID, Title: "Refresh", Kind: KindRefresh, Enabled: true},
		Item{ID: ConfigureID, ParentID: RootID, Title: "Configure", Kind: KindConfigure, Enabled: true},
	)
	return items
}

// Apply projects cs onto the tree if ticket is still current. It reports
// whether the state was applied.
func (m *Machine) Apply(ctx context.Context, ticket Ticket, cs wire.ContextState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.built || !m.state.Valid(ticket) {
		return false, nil
	}
	if err := m.host.Update(ctx, CaptureID, cs.IsEditable); err != nil {
		return false, fmt.Errorf("menu: update capture: %w", err)
	}
	for _, id := range m.presets {
		if err := m.host.Update(ctx, id, cs.HasSelection); err != nil {
			return false, fmt.Errorf("menu: update %s: %w", id, err)
		}
	}
	return true, nil
}

// ResetEnabled puts every item back to the enabled default if ticket is
// still current. It reports whether the reset was applied.
func (m *Machine) ResetEnabled(ctx context.Context, ticket Ticket) (bool, error) {
	return m.Apply(ctx, ticket, wire.ContextState{IsEditable: true, HasSelection: true})
}

// Rebuilds returns the number of successful rebuilds.
func (m *Machine) Rebuilds() int64 { return m.rebuilds.Load() }
