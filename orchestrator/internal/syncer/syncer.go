// Package syncer reconciles context-state reports from page probes with
// the menu state machine.
//
// Reports arrive two ways: pushed by a probe on focus/selection change, or
// pulled by the synchronizer after a rebuild or an active-page change. Both
// go through the same gate: a report is applied only when no rebuild is in
// flight and it comes from the active source. A failed pull leaves the
// menu at its enabled default.
package syncer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/pastewire/orchestrator/internal/menu"
	"github.com/hazyhaar/pastewire/orchestrator/internal/wire"
)

// Puller asks the probe of a page for its current context state.
type Puller interface {
	ContextState(ctx context.Context, pageID string) (wire.ContextState, error)
}

// PullerFunc adapts a function to Puller.
type PullerFunc func(ctx context.Context, pageID string) (wire.ContextState, error)

func (f PullerFunc) ContextState(ctx context.Context, pageID string) (wire.ContextState, error) {
	return f(ctx, pageID)
}

// Synchronizer applies trusted reports to a menu.Machine.
type Synchronizer struct {
	state   *menu.State
	machine *menu.Machine
	puller  Puller
	timeout time.Duration
	logger  *slog.Logger

	applied atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Applied     int64 `json:"applied"`
	Dropped     int64 `json:"dropped"`
	PullsFailed int64 `json:"pulls_failed"`
}

// New creates a Synchronizer. timeout bounds each pull; 0 means 1s.
func New(state *menu.State, machine *menu.Machine, puller Puller, timeout time.Duration, logger *slog.Logger) *Synchronizer {
	if timeout <= 0 {
		timeout = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		state:   state,
		machine: machine,
		puller:  puller,
		timeout: timeout,
		logger:  logger,
	}
}

// Report handles a pushed report. The caller stamps cs.SourceID with the
// page the report came from.
func (s *Synchronizer) Report(ctx context.Context, cs wire.ContextState) bool {
	ticket, ok := s.state.Admit(cs.SourceID)
	if !ok {
		s.dropped.Add(1)
		s.logger.Debug("syncer: report dropped", "source", cs.SourceID,
			"active", s.state.Active(), "rebuilding", s.state.Rebuilding())
		return false
	}
	applied, err := s.machine.Apply(ctx, ticket, cs)
	if err != nil {
		s.logger.Warn("syncer: apply failed", "source", cs.SourceID, "error", err)
		return false
	}
	if !applied {
		// Lost a race with a rebuild or a source change after admission.
		s.dropped.Add(1)
		s.logger.Debug("syncer: report stale", "source", cs.SourceID)
		return false
	}
	s.applied.Add(1)
	return true
}

// ActivePageChanged records pageID as the trusted source and pulls its
// state.
func (s *Synchronizer) ActivePageChanged(ctx context.Context, pageID string) bool {
	s.SetActive(ctx, pageID)
	return s.pull(ctx, pageID)
}

// SetActive records pageID as the trusted source without pulling. When the
// source changes the menu goes back to its enabled default, so a page that
// never reports is not held to the previous page's state.
func (s *Synchronizer) SetActive(ctx context.Context, pageID string) {
	if !s.state.SetActive(pageID) {
		return
	}
	ticket, ok := s.state.Admit(pageID)
	if !ok {
		return
	}
	if _, err := s.machine.ResetEnabled(ctx, ticket); err != nil {
		s.logger.Warn("syncer: reset on source change", "source", pageID, "error", err)
	}
}

// Refresh pulls the active page again, typically after a rebuild.
func (s *Synchronizer) Refresh(ctx context.Context) bool {
	active := s.state.Active()
	if active == "" {
		return false
	}
	return s.pull(ctx, active)
}

func (s *Synchronizer) pull(ctx context.Context, pageID string) bool {
	if pageID == "" {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cs, err := s.puller.ContextState(pctx, pageID)
	if err != nil {
		s.failed.Add(1)
		s.logger.Debug("syncer: pull failed, keeping defaults", "page", pageID, "error", err)
		return false
	}
	cs.SourceID = pageID
	return s.Report(ctx, cs)
}

// Stats returns the current counters.
func (s *Synchronizer) Stats() Stats {
	return Stats{
		Applied:     s.applied.Load(),
		Dropped:     s.dropped.Load(),
		PullsFailed: s.failed.Load(),
	}
}
