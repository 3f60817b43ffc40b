package preset

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Patch carries the editable fields of a preset. Nil fields are left alone.
type Patch struct {
	Name       *string `json:"name,omitempty"`
	AutoSubmit *bool   `json:"autoSubmit,omitempty"`
	ReuseTab   *bool   `json:"reuseTab,omitempty"`
}

// Cache is the ordered, bounded preset list. Every mutation is rejected
// before it touches the list when it would break the cap or create a
// duplicate.
type Cache struct {
	mu    sync.RWMutex
	items []Preset
	newID func() string
}

// CacheOption customises a Cache.
type CacheOption func(*Cache)

// WithIDGenerator overrides the preset id generator.
func WithIDGenerator(gen func() string) CacheOption {
	return func(c *Cache) { c.newID = gen }
}

// NewCache creates a cache seeded with list (typically the persisted record).
func NewCache(list []Preset, opts ...CacheOption) *Cache {
	c := &Cache{newID: NewID}
	for _, o := range opts {
		o(c)
	}
	c.items = slices.Clone(list)
	return c
}

// List returns a copy of the presets in order.
func (c *Cache) List() []Preset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

// Len returns the number of presets.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Get looks a preset up by id.
func (c *Cache) Get(id string) (Preset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.items {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// IsDuplicate reports whether a preset with the same selector already
// targets the same host as rawURL.
func (c *Cache) IsDuplicate(selector, rawURL string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.duplicateLocked(selector, rawURL)
}

func (c *Cache) duplicateLocked(selector, rawURL string) bool {
	host := Preset{URL: rawURL}.Hostname()
	for _, p := range c.items {
		if p.Selector == selector && strings.EqualFold(p.Hostname(), host) {
			return true
		}
	}
	return false
}

// Add appends p, assigning a fresh id. The cap is checked first, then
// validity, then duplicates.
func (c *Cache) Add(p Preset) (Preset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= MaxPresets {
		return Preset{}, ErrCapExceeded
	}
	p.Name = CleanName(p.Name)
	p.Selector = strings.TrimSpace(p.Selector)
	if err := p.Validate(); err != nil {
		return Preset{}, err
	}
	if c.duplicateLocked(p.Selector, p.URL) {
		return Preset{}, ErrDuplicate
	}
	p.ID = c.newID()
	c.items = append(c.items, p)
	return p, nil
}

// Update applies patch to the preset with the given id.
func (c *Cache) Update(id string, patch Patch) (Preset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return Preset{}, ErrNotFound
	}
	p := c.items[i]
	if patch.Name != nil {
		name := CleanName(*patch.Name)
		if name == "" {
			return Preset{}, fmt.Errorf("%w: name is required", ErrInvalid)
		}
		p.Name = name
	}
	if patch.AutoSubmit != nil {
		p.AutoSubmit = *patch.AutoSubmit
	}
	if patch.ReuseTab != nil {
		p.ReuseTab = *patch.ReuseTab
	}
	c.items[i] = p
	return p, nil
}

// Delete removes the preset with the given id.
func (c *Cache) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	c.items = slices.Delete(c.items, i, i+1)
	return nil
}

// Replace swaps the whole list, as done on resumption. Entries past the
// cap are dropped.
func (c *Cache) Replace(list []Preset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(list) > MaxPresets {
		list = list[:MaxPresets]
	}
	c.items = slices.Clone(list)
}

// Equal reports whether the cache currently holds exactly list.
func (c *Cache) Equal(list []Preset) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Equal(c.items, list)
}

func (c *Cache) indexLocked(id string) int {
	return slices.IndexFunc(c.items, func(p Preset) bool { return p.ID == id })
}
