package orchestrator

import (
	"context"

	"github.com/hazyhaar/pastewire/orchestrator/internal/browser"
	"github.com/hazyhaar/pastewire/orchestrator/internal/wire"
)

// eventLoop feeds probe pushes to the synchronizer, one at a time.
func (o *Orchestrator) eventLoop(ctx context.Context) {
	events := o.browser.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			o.handlePush(ctx, ev)
		}
	}
}

func (o *Orchestrator) handlePush(ctx context.Context, ev browser.Event) {
	switch ev.Push.Kind {
	case wire.PushFocus:
		// A page took focus: it becomes the trusted source and is pulled.
		o.sync.ActivePageChanged(ctx, ev.PageID)
	case wire.PushContext:
		o.sync.Report(ctx, wire.ContextState{
			IsEditable:   ev.Push.IsEditable,
			HasSelection: ev.Push.HasSelection,
			SourceID:     ev.PageID,
		})
	default:
		o.logger.Debug("orchestrator: unknown push", "page", ev.PageID, "kind", ev.Push.Kind)
	}
}
