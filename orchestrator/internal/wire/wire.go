// Package wire holds the message contract spoken between the orchestrator,
// the per-page probes and external surfaces. Every payload is JSON.
package wire

import "strings"

// Probe-bound messages.
const (
	MsgGetElementInfo  = "probe.getElementInfo"
	MsgGetContextState = "probe.getContextState"
	MsgContextPushed   = "probe.contextStatePushed"
	MsgSetValue        = "probe.setValue"
	MsgPing            = "probe.ping"
	MsgGetSelection    = "probe.getSelection"
	MsgNotify          = "probe.notify"
	MsgPrompt          = "probe.prompt"
)

// Orchestrator-bound messages from external surfaces.
const (
	MsgRequestMenuRebuild = "orchestrator.requestMenuRebuild"
	MsgAddPreset          = "orchestrator.addPreset"
	MsgUpdatePreset       = "orchestrator.updatePreset"
	MsgDeletePreset       = "orchestrator.deletePreset"
	MsgListPresets        = "orchestrator.listPresets"
	MsgMenu               = "orchestrator.menu"
	MsgClick              = "orchestrator.click"
)

// ContextState is what a probe observes locally. SourceID is stamped by the
// receiving side from the page the report came from, never by the probe.
type ContextState struct {
	IsEditable   bool   `json:"isEditable"`
	HasSelection bool   `json:"hasSelection"`
	SourceID     string `json:"sourceId,omitempty"`
}

// ElementInfo is the probe's reply to MsgGetElementInfo.
type ElementInfo struct {
	Success  bool   `json:"success"`
	Selector string `json:"selector,omitempty"`
	URL      string `json:"url,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Error    string `json:"error,omitempty"`
}

// TextLike reports whether the element is one a preset can target.
func (e ElementInfo) TextLike() bool {
	if !e.Success || e.Selector == "" || e.URL == "" {
		return false
	}
	switch strings.ToUpper(e.Tag) {
	case "INPUT", "TEXTAREA":
		return true
	}
	return false
}

// SetValue is broadcast to every frame of a page on each delivery attempt.
type SetValue struct {
	Selector      string   `json:"selector"`
	Payload       string   `json:"payload"`
	AutoSubmit    bool     `json:"autoSubmit"`
	AttemptNumber int      `json:"attemptNumber"`
	SubmitButtons []string `json:"submitButtons,omitempty"`
}

// ShouldSubmit reports whether this attempt is allowed to submit. The first
// attempt only writes; later ones submit when the preset asks for it.
func (s SetValue) ShouldSubmit() bool {
	return s.AutoSubmit && s.AttemptNumber > 1
}

// Push is the envelope a probe sends through its binding.
type Push struct {
	Kind         string `json:"kind"` // "context" | "focus"
	IsEditable   bool   `json:"isEditable"`
	HasSelection bool   `json:"hasSelection"`
}

// Push kinds.
const (
	PushContext = "context"
	PushFocus   = "focus"
)

// Reply is the generic {success, error} answer of orchestrator.* messages.
type Reply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// OK builds a successful reply.
func OK(data any) Reply { return Reply{Success: true, Data: data} }

// Fail builds a failed reply carrying a short error code.
func Fail(code string) Reply { return Reply{Success: false, Error: code} }
