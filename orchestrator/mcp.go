package orchestrator

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pastewire/kit"
	"github.com/hazyhaar/pastewire/orchestrator/internal/preset"
)

// RegisterMCP registers the pastewire tools on an MCP server.
func (o *Orchestrator) RegisterMCP(srv *mcp.Server) {
	o.registerMenuTool(srv)
	o.registerClickTool(srv)
	o.registerListPresetsTool(srv)
	o.registerAddPresetTool(srv)
	o.registerUpdatePresetTool(srv)
	o.registerDeletePresetTool(srv)
	o.registerRebuildTool(srv)
	o.registerEventsTool(srv)
	o.registerStatsTool(srv)
}

// registerTool registers endpoint as an MCP tool, logged under the tool
// name.
func (o *Orchestrator) registerTool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Chain(kit.Logging(o.logger, tool.Name))(endpoint), decode)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

type empty struct{}

// --- menu ---

func (o *Orchestrator) registerMenuTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pastewire_menu",
		Description: "Show the PasteWire menu: capture action, one entry per preset, refresh and configure, each with its enabled state.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return o.Menu(), nil
	}
	o.registerTool(srv, tool, endpoint, kit.DecodeJSON[empty]())
}

// --- click ---

func (o *Orchestrator) registerClickTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pastewire_click",
		Description: "Click a menu item. Preset items paste the selection into the preset's target field; fixed items run capture, refresh or configure.",
		InputSchema: inputSchema(map[string]any{
			"itemId":        map[string]any{"type": "string", "description": "Menu item id (preset id or add_paste_target, refresh_status, configure)"},
			"pageId":        map[string]any{"type": "string", "description": "Page the menu was opened on (default: active page)"},
			"selectionText": map[string]any{"type": "string", "description": "Text to paste (default: the page's current selection)"},
		}, []string{"itemId"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		if err := o.HandleClick(ctx, *req.(*Click)); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil
	}
	o.registerTool(srv, tool, endpoint, kit.DecodeJSON[Click]())
}

// --- presets ---

func (o *Orchestrator) registerListPresetsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pastewire_list_presets",
		Description: "List saved paste targets in menu order.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return o.Presets(), nil
	}
	o.registerTool(srv, tool, endpoint, kit.DecodeJSON[empty]())
}

func (o *Orchestrator) registerAddPresetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pastewire_add_preset",
		Description: "Add a paste target. At most 10 presets; a selector already saved for the same host is rejected.",
		InputSchema: inputSchema(map[string]any{
			"name":       map[string]any{"type": "string", "description": "Menu title"},
			"url":        map[string]any{"type": "string", "description": "Page URL to open or reuse"},
			"selector":   map[string]any{"type": "string", "description": "CSS selector of the target input"},
			"autoSubmit": map[string]any{"type": "boolean", "description": "Submit the form after writing"},
			"reuseTab":   map[string]any{"type": "boolean", "description": "Reuse an open tab of the same origin"},
		}, []string{"name", "url", "selector"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*AddPresetRequest)
		return o.AddPreset(ctx, preset.Preset{
			Name:       r.Name,
			URL:        r.URL,
			Selector:   r.Selector,
			AutoSubmit: r.AutoSubmit,
			ReuseTab:   r.ReuseTab,
		})
	}
	o.registerTool(srv, tool, endpoint, kit.DecodeJSON[AddPresetRequest]())
}

func (o *Orchestrator) registerUpdatePresetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pastewire_update_preset",
		Description: "Edit a preset's name, autoSubmit or reuseTab. URL and selector cannot change.",
		InputSchema: inputSchema(map[string]any{
			"id":         map[string]any{"type": "string", "description": "Preset id"},
			"name":       map[string]any{"type": "string", "description": "New menu title"},
			"autoSubmit": map[string]any{"type": "boolean", "description": "Submit the form after writing"},
			"reuseTab":   map[string]any{"type": "boolean", "description": "Reuse an open tab of the same origin"},
		}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*UpdatePresetRequest)
		return o.UpdatePreset(ctx, r.ID, preset.Patch{
			Name:       r.Name,
			AutoSubmit: r.AutoSubmit,
			ReuseTab:   r.ReuseTab,
		})
	}
	o.registerTool(srv, tool, endpoint, kit.DecodeJSON[UpdatePresetRequest]())
}

func (o *Orchestrator) registerDeletePresetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pastewire_delete_preset",
		Description: "Delete a preset by id.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Preset id"},
		}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		id := req.(*idRequest).ID
		if err := o.DeletePreset(ctx, id); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": id}, nil
	}
	o.registerTool(srv, tool, endpoint, kit.DecodeJSON[idRequest]())
}

// --- maintenance ---

func (o *Orchestrator) registerRebuildTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pastewire_rebuild_menu",
		Description: "Rebuild the menu from the saved presets.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		if err := o.RequestMenuRebuild(ctx); err != nil {
			return nil, err
		}
		return o.Menu(), nil
	}
	o.registerTool(srv, tool, endpoint, kit.DecodeJSON[empty]())
}

type eventsRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (o *Orchestrator) registerEventsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pastewire_events",
		Description: "Recent audit events (preset changes, capture rejections, deliveries), newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max events (default 50)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return o.Events(ctx, req.(*eventsRequest).Limit)
	}
	o.registerTool(srv, tool, endpoint, kit.DecodeJSON[eventsRequest]())
}

func (o *Orchestrator) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pastewire_stats",
		Description: "Runtime counters: presets, rebuilds, applied and dropped context reports, delivery attempts.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return o.Stats(), nil
	}
	o.registerTool(srv, tool, endpoint, kit.DecodeJSON[empty]())
}
