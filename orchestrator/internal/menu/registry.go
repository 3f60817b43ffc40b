package menu

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Host is the native menu API. It has no reorder primitive, which is why
// Machine.Rebuild tears the tree down and recreates it.
type Host interface {
	RemoveAll(ctx context.Context) error
	Create(ctx context.Context, item Item) error
	Update(ctx context.Context, id string, enabled bool) error
}

// Registry is the in-process menu host. External surfaces (HTTP, MCP, CLI)
// read it through Snapshot.
type Registry struct {
	mu    sync.RWMutex
	items []Item
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) RemoveAll(ctx context.Context) error {
	r.mu.Lock()
	r.items = nil
	r.mu.Unlock()
	return nil
}

func (r *Registry) Create(ctx context.Context, item Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID == item.ID {
			return fmt.Errorf("menu: duplicate item id %q", item.ID)
		}
	}
	if item.ParentID != "" && !slices.ContainsFunc(r.items, func(it Item) bool { return it.ID == item.ParentID }) {
		return fmt.Errorf("menu: unknown parent %q", item.ParentID)
	}
	r.items = append(r.items, item)
	return nil
}

func (r *Registry) Update(ctx context.Context, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == id {
			r.items[i].Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("menu: no item %q", id)
}

// Snapshot returns the current items in creation order.
func (r *Registry) Snapshot() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.items)
}

// Lookup returns the item with the given id.
func (r *Registry) Lookup(id string) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, it := range r.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}
