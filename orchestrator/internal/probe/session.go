// Package probe installs and talks to the per-page probe.
//
// The probe script runs in the main world of every frame, installed for
// future documents and evaluated once in the current one. It pushes context
// changes through a Runtime binding. Commands from the orchestrator run in
// an isolated world per frame so page scripts cannot interfere with them;
// the DOM they act on is shared.
package probe

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/pastewire/orchestrator/internal/wire"
)

//go:embed probe.js
var probeJS string

// BindingName is the Runtime binding the probe pushes through.
const BindingName = "__pastewire_push"

const worldName = "pastewire"

// ErrNoProbe means no probe answered on the page: a non-content page, an
// unloaded page or a page that was closed.
var ErrNoProbe = errors.New("probe: no probe on page")

// Session is the orchestrator's handle on one page's probe.
type Session struct {
	page   *rod.Page
	id     string
	logger *slog.Logger

	mu       sync.Mutex
	scriptID proto.PageScriptIdentifier
	worlds   map[proto.PageFrameID]proto.RuntimeExecutionContextID
}

// New wraps page. id is the page identifier used as report source.
func New(page *rod.Page, id string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		page:   page,
		id:     id,
		logger: logger,
		worlds: make(map[proto.PageFrameID]proto.RuntimeExecutionContextID),
	}
}

// ID returns the page id.
func (s *Session) ID() string { return s.id }

// Page returns the underlying rod page.
func (s *Session) Page() *rod.Page { return s.page }

// URL returns the page's current URL.
func (s *Session) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("probe: page info: %w", err)
	}
	return info.URL, nil
}

// Activate brings the page to the front.
func (s *Session) Activate(ctx context.Context) error {
	if _, err := s.page.Context(ctx).Activate(); err != nil {
		return fmt.Errorf("probe: activate: %w", err)
	}
	return nil
}

// Install adds the push binding, registers the probe for new documents and
// evaluates it in the current one. Safe to call again.
func (s *Session) Install(ctx context.Context) error {
	p := s.page.Context(ctx)

	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(p); err != nil {
		s.logger.Warn("probe: addBinding failed (may already exist)", "page", s.id, "error", err)
	}

	s.mu.Lock()
	registered := s.scriptID != ""
	s.mu.Unlock()
	if !registered {
		res, err := proto.PageAddScriptToEvaluateOnNewDocument{Source: "(" + probeJS + ")()"}.Call(p)
		if err != nil {
			return fmt.Errorf("probe: register script: %w", err)
		}
		s.mu.Lock()
		s.scriptID = res.Identifier
		s.mu.Unlock()
	}

	return s.inject(ctx)
}

func (s *Session) inject(ctx context.Context) error {
	if _, err := s.page.Context(ctx).Eval(probeJS); err != nil {
		return fmt.Errorf("probe: inject: %w", err)
	}
	return nil
}

// Listen delivers probe pushes to fn until ctx is cancelled. It also drops
// cached isolated worlds whose frame navigated.
func (s *Session) Listen(ctx context.Context, fn func(wire.Push)) {
	s.page.Context(ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != BindingName {
				return
			}
			var push wire.Push
			if err := json.Unmarshal([]byte(e.Payload), &push); err != nil {
				s.logger.Warn("probe: parse push payload", "page", s.id, "error", err)
				return
			}
			fn(push)
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame != nil {
				s.forgetFrame(e.Frame.ID)
			}
		},
		func(e *proto.RuntimeExecutionContextsCleared) {
			s.forgetAllWorlds()
		},
	)()
}

// Ping reports whether a probe is present in the main frame.
func (s *Session) Ping(ctx context.Context) error {
	res, err := s.page.Context(ctx).Eval(pingJS)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoProbe, err)
	}
	var ok bool
	if err := json.Unmarshal([]byte(res.Value.Str()), &ok); err != nil || !ok {
		return ErrNoProbe
	}
	return nil
}

// EnsureProbe pings and re-injects the probe when it is missing.
func (s *Session) EnsureProbe(ctx context.Context) error {
	if err := s.Ping(ctx); err == nil {
		return nil
	}
	if err := s.Install(ctx); err != nil {
		return err
	}
	return s.Ping(ctx)
}

// ContextState pulls the context state, folded over every frame: editable
// if the focused frame's active element is, selected if any frame has a
// selection.
func (s *Session) ContextState(ctx context.Context) (wire.ContextState, error) {
	if err := s.Ping(ctx); err != nil {
		return wire.ContextState{}, err
	}
	var out wire.ContextState
	err := s.eachFrame(ctx, func(world proto.RuntimeExecutionContextID) bool {
		var cs wire.ContextState
		if err := s.call(ctx, world, contextStateJS, &cs); err != nil {
			return false
		}
		out.IsEditable = out.IsEditable || cs.IsEditable
		out.HasSelection = out.HasSelection || cs.HasSelection
		return false
	})
	if err != nil {
		return wire.ContextState{}, err
	}
	out.SourceID = s.id
	return out, nil
}

// ElementInfo describes the focused element. The frame holding focus wins;
// without one the top frame's answer is returned.
func (s *Session) ElementInfo(ctx context.Context) (wire.ElementInfo, error) {
	if err := s.Ping(ctx); err != nil {
		return wire.ElementInfo{}, err
	}
	var top, hit *frameInfo
	err := s.eachFrame(ctx, func(world proto.RuntimeExecutionContextID) bool {
		var fi frameInfo
		if err := s.call(ctx, world, elementInfoJS, &fi); err != nil {
			return false
		}
		if top == nil {
			top = &fi
		}
		if fi.Focused && fi.Success {
			hit = &fi
			return true
		}
		return false
	})
	if err != nil {
		return wire.ElementInfo{}, err
	}
	switch {
	case hit != nil:
		return hit.ElementInfo, nil
	case top != nil:
		return top.ElementInfo, nil
	}
	return wire.ElementInfo{Success: false, Error: "No active editable element"}, nil
}

type frameInfo struct {
	wire.ElementInfo
	Focused bool `json:"focused"`
}

type setValueResult struct {
	Found     bool   `json:"found"`
	Submitted bool   `json:"submitted"`
	Via       string `json:"via"`
}

// SetValue broadcasts msg to every frame. Frames without the element do
// nothing; per-frame failures are not errors.
func (s *Session) SetValue(ctx context.Context, msg wire.SetValue) error {
	return s.eachFrame(ctx, func(world proto.RuntimeExecutionContextID) bool {
		var r setValueResult
		if err := s.call(ctx, world, setValueJS, &r, msg); err != nil {
			s.logger.Debug("probe: setValue frame failed", "page", s.id, "attempt", msg.AttemptNumber, "error", err)
			return false
		}
		if r.Found {
			s.logger.Debug("probe: value written", "page", s.id, "attempt", msg.AttemptNumber,
				"submitted", r.Submitted, "via", r.Via)
		}
		return false
	})
}

// Has reports whether selector matches an element in any frame, stopping at
// the first match.
func (s *Session) Has(ctx context.Context, selector string) (bool, error) {
	found := false
	err := s.eachFrame(ctx, func(world proto.RuntimeExecutionContextID) bool {
		var ok bool
		if err := s.call(ctx, world, hasJS, &ok, selector); err != nil {
			return false
		}
		found = ok
		return ok
	})
	return found, err
}

// SelectionText returns the first non-empty selection across frames.
func (s *Session) SelectionText(ctx context.Context) (string, error) {
	var text string
	err := s.eachFrame(ctx, func(world proto.RuntimeExecutionContextID) bool {
		var t string
		if err := s.call(ctx, world, selectionJS, &t); err != nil {
			return false
		}
		if strings.TrimSpace(t) != "" {
			text = t
			return true
		}
		return false
	})
	return text, err
}

// Notify shows a non-blocking toast in the page.
func (s *Session) Notify(ctx context.Context, message string) error {
	if _, err := s.page.Context(ctx).Eval(notifyJS, message); err != nil {
		return fmt.Errorf("probe: notify: %w", err)
	}
	return nil
}

// Prompt asks the user for a value in the page. ok is false when the user
// cancels. The dialog is removed if ctx ends first.
func (s *Session) Prompt(ctx context.Context, message, def string) (value string, ok bool, err error) {
	res, err := s.page.Context(ctx).Eval(promptJS, message, def)
	if err != nil {
		if _, derr := s.page.Context(context.WithoutCancel(ctx)).Eval(dismissPromptJS); derr != nil {
			s.logger.Debug("probe: dismiss prompt", "page", s.id, "error", derr)
		}
		return "", false, fmt.Errorf("probe: prompt: %w", err)
	}
	var answer struct {
		OK    bool   `json:"ok"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &answer); err != nil {
		return "", false, fmt.Errorf("probe: decode prompt answer: %w", err)
	}
	return answer.Value, answer.OK, nil
}

// eachFrame runs fn in an isolated world of every frame, top frame first,
// until fn returns true. Frames whose world cannot be created (detached,
// out-of-process) are skipped.
func (s *Session) eachFrame(ctx context.Context, fn func(world proto.RuntimeExecutionContextID) bool) error {
	p := s.page.Context(ctx)
	tree, err := proto.PageGetFrameTree{}.Call(p)
	if err != nil {
		return fmt.Errorf("probe: frame tree: %w", err)
	}
	for _, fid := range flatten(tree.FrameTree) {
		world, err := s.world(fid, func() (proto.RuntimeExecutionContextID, error) {
			res, err := proto.PageCreateIsolatedWorld{FrameID: fid, WorldName: worldName}.Call(p)
			if err != nil {
				return 0, err
			}
			return res.ExecutionContextID, nil
		})
		if err != nil {
			s.logger.Debug("probe: isolated world", "page", s.id, "frame", fid, "error", err)
			continue
		}
		if fn(world) {
			return nil
		}
	}
	return nil
}

// world returns the isolated world of frame fid, creating it on first use.
func (s *Session) world(fid proto.PageFrameID, create func() (proto.RuntimeExecutionContextID, error)) (proto.RuntimeExecutionContextID, error) {
	s.mu.Lock()
	id, ok := s.worlds[fid]
	s.mu.Unlock()
	if ok {
		return id, nil
	}
	id, err := create()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.worlds[fid] = id
	s.mu.Unlock()
	return id, nil
}

func (s *Session) forgetFrame(fid proto.PageFrameID) {
	s.mu.Lock()
	delete(s.worlds, fid)
	s.mu.Unlock()
}

// forgetWorld drops a world an evaluation failed in; the next use of its
// frame creates a new one.
func (s *Session) forgetWorld(world proto.RuntimeExecutionContextID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fid, id := range s.worlds {
		if id == world {
			delete(s.worlds, fid)
		}
	}
}

func (s *Session) forgetAllWorlds() {
	s.mu.Lock()
	clear(s.worlds)
	s.mu.Unlock()
}

func flatten(t *proto.PageFrameTree) []proto.PageFrameID {
	if t == nil || t.Frame == nil {
		return nil
	}
	out := []proto.PageFrameID{t.Frame.ID}
	for _, c := range t.ChildFrames {
		out = append(out, flatten(c)...)
	}
	return out
}

// call evaluates fn(args...) in world and decodes its JSON string result
// into dst.
func (s *Session) call(ctx context.Context, world proto.RuntimeExecutionContextID, fn string, dst any, args ...any) error {
	expr, err := callExpr(fn, args...)
	if err != nil {
		return err
	}
	res, err := proto.RuntimeEvaluate{
		Expression:    expr,
		ContextID:     world,
		ReturnByValue: true,
		AwaitPromise:  true,
	}.Call(s.page.Context(ctx))
	if err != nil {
		s.forgetWorld(world)
		return err
	}
	if res.ExceptionDetails != nil {
		return fmt.Errorf("probe: script exception: %s", res.ExceptionDetails.Text)
	}
	if res.Result == nil {
		return fmt.Errorf("probe: empty result")
	}
	return json.Unmarshal([]byte(res.Result.Value.Str()), dst)
}

// callExpr renders "(fn)(arg1,arg2)" with JSON-encoded arguments.
func callExpr(fn string, args ...any) (string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("probe: encode arg: %w", err)
		}
		parts[i] = string(b)
	}
	return "(" + fn + ")(" + strings.Join(parts, ",") + ")", nil
}
