package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/pastewire/orchestrator/internal/delivery"
	"github.com/hazyhaar/pastewire/orchestrator/internal/menu"
	"github.com/hazyhaar/pastewire/orchestrator/internal/preset"
	"github.com/hazyhaar/pastewire/orchestrator/internal/store"
)

// Messages shown in the page.
const (
	msgCapReached   = "Maximum of 10 preset targets reached. Please delete one first."
	msgNotTextField = `Please click inside a text input field first, then right-click and select "Add as Paste Target".`
	msgNamePrompt   = "Name for new paste target:"
	msgDuplicate    = "A preset for this element already exists on this domain."
	msgNoSelection  = "Please select some text first, then right-click on the selection and choose a paste target."
	msgRefreshed    = "PasteWire refreshed! You may need to reload this page for full functionality."
)

// Click is a menu click. PageID is the page the menu was opened on; empty
// means the active page. SelectionText is the selection at click time when
// the caller knows it.
type Click struct {
	ItemID        string `json:"itemId"`
	PageID        string `json:"pageId,omitempty"`
	SelectionText string `json:"selectionText,omitempty"`
}

// HandleClick routes a menu click to the fixed-action flows or to preset
// delivery.
//
// The enabled flags of the menu are advisory and do not gate clicks: a
// caller may supply the selection itself, and each flow checks its own
// precondition (a non-blank selection, a text-like focused element).
func (o *Orchestrator) HandleClick(ctx context.Context, c Click) error {
	pageID := c.PageID
	if pageID == "" {
		pageID = o.state.Active()
	}
	var src Page
	if pageID != "" {
		src, _ = o.browser.Page(pageID)
	}

	switch menu.FixedKind(c.ItemID) {
	case menu.KindRoot:
		return nil
	case menu.KindConfigure:
		return o.configure(ctx)
	case menu.KindRefresh:
		if src == nil {
			return fmt.Errorf("orchestrator: refresh: %w", ErrNoPage)
		}
		return o.refresh(ctx, src)
	case menu.KindCapture:
		if src == nil {
			return fmt.Errorf("orchestrator: capture: %w", ErrNoPage)
		}
		return o.capture(ctx, src)
	}
	return o.firePreset(ctx, c.ItemID, c.SelectionText, src)
}

func (o *Orchestrator) configure(ctx context.Context) error {
	if _, err := o.browser.Open(ctx, o.cfg.ConfigURL); err != nil {
		o.logger.Warn("orchestrator: open configuration page", "url", o.cfg.ConfigURL, "error", err)
		return fmt.Errorf("orchestrator: configure: %w", err)
	}
	return nil
}

func (o *Orchestrator) refresh(ctx context.Context, p Page) error {
	if err := p.EnsureProbe(ctx); err != nil {
		o.logger.Warn("orchestrator: refresh", "page", p.ID(), "error", err)
		return fmt.Errorf("orchestrator: refresh: %w", err)
	}
	o.sync.ActivePageChanged(ctx, p.ID())
	o.notify(ctx, p, msgRefreshed)
	return nil
}

// capture turns the focused element of p into a preset. Cancelling the
// name prompt ends the flow silently.
func (o *Orchestrator) capture(ctx context.Context, p Page) error {
	if o.cache.Len() >= preset.MaxPresets {
		o.rejectCapture(ctx, p, msgCapReached, preset.ErrCapExceeded)
		return preset.ErrCapExceeded
	}

	info, err := p.ElementInfo(ctx)
	if err != nil {
		o.logger.Warn("orchestrator: element info", "page", p.ID(), "error", err)
	}
	if err != nil || !info.TextLike() {
		o.rejectCapture(ctx, p, msgNotTextField, ErrNoEditable)
		return ErrNoEditable
	}

	def := "Paste to " + preset.Preset{URL: info.URL}.Hostname()
	pctx, cancel := context.WithTimeout(ctx, o.cfg.Capture.PromptTimeout)
	name, ok, err := p.Prompt(pctx, msgNamePrompt, def)
	cancel()
	if err != nil {
		o.logger.Warn("orchestrator: name prompt", "page", p.ID(), "error", err)
		return fmt.Errorf("orchestrator: capture: %w", err)
	}
	if !ok || strings.TrimSpace(name) == "" {
		o.logger.Debug("orchestrator: capture cancelled", "page", p.ID())
		return nil
	}

	added, err := o.AddPreset(ctx, preset.Preset{
		Name:       name,
		URL:        info.URL,
		Selector:   info.Selector,
		AutoSubmit: true,
	})
	switch {
	case errors.Is(err, preset.ErrDuplicate):
		o.notify(ctx, p, msgDuplicate)
		return err
	case errors.Is(err, preset.ErrCapExceeded):
		o.notify(ctx, p, msgCapReached)
		return err
	case err != nil:
		o.notify(ctx, p, "Could not add paste target: "+err.Error())
		return err
	}
	o.notify(ctx, p, fmt.Sprintf("Preset %q added successfully!", added.Name))
	return nil
}

func (o *Orchestrator) rejectCapture(ctx context.Context, p Page, message string, reason error) {
	o.logger.Info("orchestrator: capture rejected", "page", p.ID(), "reason", reason)
	o.store.LogEvent(ctx, store.Event{Kind: store.EventCaptureReject, Detail: reason.Error()})
	o.notify(ctx, p, message)
}

// firePreset delivers the selection to the preset's target. An unknown id
// is a stale menu entry and is ignored.
func (o *Orchestrator) firePreset(ctx context.Context, id, selection string, src Page) error {
	p, ok := o.cache.Get(id)
	if !ok {
		o.logger.Debug("orchestrator: click on unknown preset", "item", id)
		return nil
	}

	if selection == "" && src != nil {
		text, err := src.SelectionText(ctx)
		if err != nil {
			o.logger.Debug("orchestrator: read selection", "page", src.ID(), "error", err)
		}
		selection = text
	}
	if strings.TrimSpace(selection) == "" {
		if src != nil {
			o.notify(ctx, src, msgNoSelection)
		}
		return ErrNoSelection
	}

	res, err := o.tabs.Resolve(ctx, p.URL, p.Selector, p.ReuseTab)
	if err != nil {
		o.logger.Warn("orchestrator: resolve tab", "preset", p.ID, "url", p.URL, "error", err)
		o.store.LogEvent(ctx, store.Event{Kind: store.EventDelivery, PresetID: p.ID, Detail: err.Error()})
		return err
	}
	target, ok := res.Page.(delivery.Target)
	if !ok {
		return fmt.Errorf("orchestrator: page %s cannot receive values", res.Page.ID())
	}

	tasks := o.engine.Deliver(target, p.Selector, selection, p.AutoSubmit)
	if res.Reused {
		if err := res.Page.Activate(ctx); err != nil {
			o.logger.Warn("orchestrator: activate tab", "page", res.Page.ID(), "error", err)
		}
	}
	o.sync.SetActive(ctx, res.Page.ID())

	o.logger.Info("orchestrator: delivery scheduled",
		"preset", p.ID, "page", res.Page.ID(), "reused", res.Reused, "attempts", len(tasks))
	o.store.LogEvent(ctx, store.Event{
		Kind:     store.EventDelivery,
		PresetID: p.ID,
		Detail:   fmt.Sprintf("page=%s reused=%t attempts=%d", res.Page.ID(), res.Reused, len(tasks)),
		Success:  true,
	})
	return nil
}

// notify shows message in p. Failures are logged only.
func (o *Orchestrator) notify(ctx context.Context, p Page, message string) {
	if err := p.Notify(ctx, message); err != nil {
		o.logger.Warn("orchestrator: notify", "page", p.ID(), "error", err)
	}
}
