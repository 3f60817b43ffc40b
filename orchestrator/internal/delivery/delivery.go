// Package delivery writes a payload into a target element with a fixed,
// escalating retry schedule.
//
// Every attempt is broadcast to all frames of the page; frames where the
// selector matches nothing do nothing. All attempts are submitted to the
// clock when Deliver is called, so a slow attempt never shifts a later
// one. Only attempts after the first may submit.
package delivery

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/pastewire/orchestrator/internal/wire"
)

// Attempt is one slot of the schedule.
type Attempt struct {
	Number int
	Offset time.Duration
}

// Schedule is the fixed delivery schedule.
var Schedule = []Attempt{
	{Number: 1, Offset: 0},
	{Number: 2, Offset: 1500 * time.Millisecond},
	{Number: 3, Offset: 3000 * time.Millisecond},
}

// DefaultSubmitSelectors are the submit-button heuristics tried in order
// when a form cannot be submitted natively.
var DefaultSubmitSelectors = []string{
	`button[type="submit"]`,
	`input[type="submit"]`,
	`button[aria-label*="search" i]`,
	`[role="button"][aria-label*="search" i]`,
	`button[data-test-id*="search" i]`,
	`button[data-testid*="search" i]`,
}

// Target is the page an attempt is broadcast to.
type Target interface {
	ID() string
	SetValue(ctx context.Context, msg wire.SetValue) error
}

// Clock schedules functions. The real clock is time.AfterFunc.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func())
}

type realClock struct{}

func (realClock) Now() time.Time                      { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Task is a scheduled attempt.
type Task struct {
	Attempt
	Deadline time.Time
	PageID   string
	Msg      wire.SetValue
}

// Config tunes an Engine.
type Config struct {
	Clock           Clock
	AttemptTimeout  time.Duration
	SubmitSelectors []string
	Logger          *slog.Logger
}

// Engine runs deliveries. Tasks run with the engine's context, not the
// caller's: a delivery outlives the click that started it.
type Engine struct {
	ctx     context.Context
	clock   Clock
	timeout time.Duration
	submit  []string
	logger  *slog.Logger

	wg        sync.WaitGroup
	attempts  atomic.Int64
	failures  atomic.Int64
	scheduled atomic.Int64
}

// New creates an Engine bound to ctx.
func New(ctx context.Context, cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 2 * time.Second
	}
	if len(cfg.SubmitSelectors) == 0 {
		cfg.SubmitSelectors = DefaultSubmitSelectors
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		ctx:     ctx,
		clock:   cfg.Clock,
		timeout: cfg.AttemptTimeout,
		submit:  cfg.SubmitSelectors,
		logger:  cfg.Logger,
	}
}

// Plan returns the tasks a delivery consists of, without scheduling them.
func (e *Engine) Plan(target Target, selector, payload string, autoSubmit bool) []Task {
	start := e.clock.Now()
	tasks := make([]Task, 0, len(Schedule))
	for _, a := range Schedule {
		tasks = append(tasks, Task{
			Attempt:  a,
			Deadline: start.Add(a.Offset),
			PageID:   target.ID(),
			Msg: wire.SetValue{
				Selector:      selector,
				Payload:       payload,
				AutoSubmit:    autoSubmit,
				AttemptNumber: a.Number,
				SubmitButtons: e.submit,
			},
		})
	}
	return tasks
}

// Deliver schedules every attempt and returns immediately.
func (e *Engine) Deliver(target Target, selector, payload string, autoSubmit bool) []Task {
	tasks := e.Plan(target, selector, payload, autoSubmit)
	e.wg.Add(len(tasks))
	for _, t := range tasks {
		e.clock.AfterFunc(t.Offset, func() { e.run(target, t) })
	}
	e.scheduled.Add(1)
	e.logger.Debug("delivery: scheduled", "page", target.ID(), "selector", selector,
		"auto_submit", autoSubmit, "attempts", len(tasks))
	return tasks
}

func (e *Engine) run(target Target, t Task) {
	defer e.wg.Done()
	if e.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	defer cancel()

	e.attempts.Add(1)
	if err := target.SetValue(ctx, t.Msg); err != nil {
		// Page gone or navigated: the attempt fails silently.
		e.failures.Add(1)
		e.logger.Debug("delivery: attempt failed", "page", t.PageID, "attempt", t.Number, "error", err)
		return
	}
	e.logger.Debug("delivery: attempt sent", "page", t.PageID, "attempt", t.Number, "submit", t.Msg.ShouldSubmit())
}

// Wait blocks until every scheduled attempt has run.
func (e *Engine) Wait() { e.wg.Wait() }

// Stats are point-in-time counters.
type Stats struct {
	Deliveries int64 `json:"deliveries"`
	Attempts   int64 `json:"attempts"`
	Failures   int64 `json:"failures"`
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Deliveries: e.scheduled.Load(),
		Attempts:   e.attempts.Load(),
		Failures:   e.failures.Load(),
	}
}
