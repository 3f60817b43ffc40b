package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/hazyhaar/pastewire/connectivity"
	"github.com/hazyhaar/pastewire/orchestrator/internal/preset"
	"github.com/hazyhaar/pastewire/orchestrator/internal/probe"
	"github.com/hazyhaar/pastewire/orchestrator/internal/wire"
)

// RegisterConnectivity registers the orchestrator message handlers on a
// connectivity Router. Every handler answers with a wire.Reply; domain
// failures are carried in the reply, not as call errors.
//
// Registered services:
//
//	orchestrator.requestMenuRebuild : rebuild the menu from the cache
//	orchestrator.addPreset          : add a preset (fields minus id)
//	orchestrator.updatePreset       : edit name, autoSubmit or reuseTab
//	orchestrator.deletePreset       : remove a preset
//	orchestrator.listPresets        : the ordered preset list
//	orchestrator.menu               : current menu items
//	orchestrator.click              : route a menu click
func (o *Orchestrator) RegisterConnectivity(router *connectivity.Router) {
	router.RegisterLocal(wire.MsgRequestMenuRebuild, o.handleRebuild)
	router.RegisterLocal(wire.MsgAddPreset, o.handleAddPreset)
	router.RegisterLocal(wire.MsgUpdatePreset, o.handleUpdatePreset)
	router.RegisterLocal(wire.MsgDeletePreset, o.handleDeletePreset)
	router.RegisterLocal(wire.MsgListPresets, o.handleListPresets)
	router.RegisterLocal(wire.MsgMenu, o.handleMenu)
	router.RegisterLocal(wire.MsgClick, o.handleClick)
}

// Service names registered by RegisterConnectivity.
const (
	ServiceRequestMenuRebuild = wire.MsgRequestMenuRebuild
	ServiceAddPreset          = wire.MsgAddPreset
	ServiceUpdatePreset       = wire.MsgUpdatePreset
	ServiceDeletePreset       = wire.MsgDeletePreset
	ServiceListPresets        = wire.MsgListPresets
	ServiceMenu               = wire.MsgMenu
	ServiceClick              = wire.MsgClick
)

var services = []string{
	ServiceRequestMenuRebuild,
	ServiceAddPreset,
	ServiceUpdatePreset,
	ServiceDeletePreset,
	ServiceListPresets,
	ServiceMenu,
	ServiceClick,
}

// RemoteRouter returns a Router whose services reach a running daemon at
// baseURL through its /api/rpc bridge.
func RemoteRouter(baseURL string, timeout time.Duration, opts ...connectivity.Option) *connectivity.Router {
	router := connectivity.New(opts...)
	base := strings.TrimRight(baseURL, "/") + "/api/rpc/"
	for _, svc := range services {
		router.RegisterRemote(svc, connectivity.HTTPHandler(base+svc, timeout))
	}
	return router
}

// AddPresetRequest is the payload of orchestrator.addPreset.
type AddPresetRequest struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Selector   string `json:"selector"`
	AutoSubmit bool   `json:"autoSubmit"`
	ReuseTab   bool   `json:"reuseTab"`
}

// UpdatePresetRequest is the payload of orchestrator.updatePreset.
type UpdatePresetRequest struct {
	ID         string  `json:"id"`
	Name       *string `json:"name,omitempty"`
	AutoSubmit *bool   `json:"autoSubmit,omitempty"`
	ReuseTab   *bool   `json:"reuseTab,omitempty"`
}

type idRequest struct {
	ID string `json:"id"`
}

func (o *Orchestrator) handleRebuild(ctx context.Context, _ []byte) ([]byte, error) {
	return reply(nil, o.RequestMenuRebuild(ctx))
}

func (o *Orchestrator) handleAddPreset(ctx context.Context, payload []byte) ([]byte, error) {
	var req AddPresetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return json.Marshal(wire.Fail(preset.ErrInvalid.Error()))
	}
	added, err := o.AddPreset(ctx, preset.Preset{
		Name:       req.Name,
		URL:        req.URL,
		Selector:   req.Selector,
		AutoSubmit: req.AutoSubmit,
		ReuseTab:   req.ReuseTab,
	})
	return reply(added, err)
}

func (o *Orchestrator) handleUpdatePreset(ctx context.Context, payload []byte) ([]byte, error) {
	var req UpdatePresetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return json.Marshal(wire.Fail(preset.ErrInvalid.Error()))
	}
	updated, err := o.UpdatePreset(ctx, req.ID, preset.Patch{
		Name:       req.Name,
		AutoSubmit: req.AutoSubmit,
		ReuseTab:   req.ReuseTab,
	})
	return reply(updated, err)
}

func (o *Orchestrator) handleDeletePreset(ctx context.Context, payload []byte) ([]byte, error) {
	var req idRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return json.Marshal(wire.Fail(preset.ErrInvalid.Error()))
	}
	return reply(nil, o.DeletePreset(ctx, req.ID))
}

func (o *Orchestrator) handleListPresets(_ context.Context, _ []byte) ([]byte, error) {
	return reply(o.Presets(), nil)
}

func (o *Orchestrator) handleMenu(_ context.Context, _ []byte) ([]byte, error) {
	return reply(o.Menu(), nil)
}

func (o *Orchestrator) handleClick(ctx context.Context, payload []byte) ([]byte, error) {
	var c Click
	if err := json.Unmarshal(payload, &c); err != nil {
		return json.Marshal(wire.Fail(preset.ErrInvalid.Error()))
	}
	return reply(nil, o.HandleClick(ctx, c))
}

func reply(data any, err error) ([]byte, error) {
	if err != nil {
		return json.Marshal(wire.Fail(ErrorCode(err)))
	}
	return json.Marshal(wire.OK(data))
}

// ErrorCode maps an error to the short code carried in replies.
func ErrorCode(err error) string {
	for _, sentinel := range []error{
		preset.ErrCapExceeded,
		preset.ErrDuplicate,
		preset.ErrNotFound,
		preset.ErrInvalid,
		ErrNoSelection,
		ErrNoEditable,
		ErrNoPage,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	if errors.Is(err, probe.ErrNoProbe) {
		return "no-probe"
	}
	return err.Error()
}
