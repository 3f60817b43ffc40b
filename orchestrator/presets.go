package orchestrator

import (
	"context"

	"github.com/hazyhaar/pastewire/orchestrator/internal/preset"
	"github.com/hazyhaar/pastewire/orchestrator/internal/store"
)

// AddPreset appends p to the cache, persists the list and rebuilds the
// menu. The cap and duplicate checks run before any mutation.
func (o *Orchestrator) AddPreset(ctx context.Context, p preset.Preset) (preset.Preset, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	added, err := o.cache.Add(p)
	if err != nil {
		o.logger.Info("orchestrator: preset rejected", "selector", p.Selector, "url", p.URL, "reason", err)
		o.store.LogEvent(ctx, store.Event{Kind: store.EventCaptureReject, Detail: err.Error()})
		return preset.Preset{}, err
	}
	o.logger.Info("orchestrator: preset added", "id", added.ID, "name", added.Name, "url", added.URL)
	o.store.LogEvent(ctx, store.Event{Kind: store.EventPresetAdded, PresetID: added.ID, Detail: added.Name, Success: true})
	o.commitLocked(ctx)
	return added, nil
}

// UpdatePreset edits the name, autoSubmit or reuseTab of a preset.
func (o *Orchestrator) UpdatePreset(ctx context.Context, id string, patch preset.Patch) (preset.Preset, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	updated, err := o.cache.Update(id, patch)
	if err != nil {
		return preset.Preset{}, err
	}
	o.store.LogEvent(ctx, store.Event{Kind: store.EventPresetUpdated, PresetID: id, Detail: updated.Name, Success: true})
	o.commitLocked(ctx)
	return updated, nil
}

// DeletePreset removes a preset.
func (o *Orchestrator) DeletePreset(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.cache.Delete(id); err != nil {
		return err
	}
	o.store.LogEvent(ctx, store.Event{Kind: store.EventPresetDeleted, PresetID: id, Success: true})
	o.commitLocked(ctx)
	return nil
}

// RequestMenuRebuild rebuilds the menu from the cache.
func (o *Orchestrator) RequestMenuRebuild(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rebuildLocked(ctx)
}

// commitLocked persists the cache and rebuilds the menu after a mutation.
// The cache stays authoritative when either step fails; both are logged.
func (o *Orchestrator) commitLocked(ctx context.Context) {
	if err := o.store.SavePresets(ctx, o.cache.List()); err != nil {
		o.logger.Error("orchestrator: persist presets", "error", err)
	}
	_ = o.rebuildLocked(ctx)
}
