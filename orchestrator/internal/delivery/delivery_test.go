package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hazyhaar/pastewire/orchestrator/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scheduled struct {
	d time.Duration
	f func()
}

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	queue []scheduled
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) {
	c.mu.Lock()
	c.queue = append(c.queue, scheduled{d, f})
	c.mu.Unlock()
}

// fireAll runs queued functions in offset order.
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	q := c.queue
	c.queue = nil
	c.mu.Unlock()
	for _, s := range q {
		s.f()
	}
}

type recordingTarget struct {
	mu   sync.Mutex
	msgs []wire.SetValue
	err  error
}

func (r *recordingTarget) ID() string { return "tab-1" }

func (r *recordingTarget) SetValue(ctx context.Context, msg wire.SetValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestDeliver_SchedulesThreeAttemptsUpFront(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	e := New(context.Background(), Config{Clock: clock})
	target := &recordingTarget{}

	tasks := e.Deliver(target, "#q", "hello", true)

	clock.mu.Lock()
	queued := len(clock.queue)
	offsets := []time.Duration{}
	for _, s := range clock.queue {
		offsets = append(offsets, s.d)
	}
	clock.mu.Unlock()

	if queued != 3 {
		t.Fatalf("queued: got %d, want 3", queued)
	}
	want := []time.Duration{0, 1500 * time.Millisecond, 3000 * time.Millisecond}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("offset %d: got %v, want %v", i, offsets[i], want[i])
		}
		if tasks[i].Deadline != clock.now.Add(want[i]) {
			t.Errorf("deadline %d: got %v", i, tasks[i].Deadline)
		}
	}
	if len(target.msgs) != 0 {
		t.Fatal("attempt ran before the clock fired")
	}

	clock.fireAll()
	e.Wait()

	if len(target.msgs) != 3 {
		t.Fatalf("attempts: got %d, want 3", len(target.msgs))
	}
	for i, m := range target.msgs {
		if m.AttemptNumber != i+1 {
			t.Errorf("attempt %d: number %d", i, m.AttemptNumber)
		}
		if m.Selector != "#q" || m.Payload != "hello" {
			t.Errorf("attempt %d: got %+v", i, m)
		}
	}
	if target.msgs[0].ShouldSubmit() {
		t.Error("attempt 1 submits")
	}
	if !target.msgs[1].ShouldSubmit() || !target.msgs[2].ShouldSubmit() {
		t.Error("attempts 2-3 do not submit")
	}
	if s := e.Stats(); s.Deliveries != 1 || s.Attempts != 3 || s.Failures != 0 {
		t.Errorf("stats: %+v", s)
	}
}

func TestDeliver_NoAutoSubmitNeverSubmits(t *testing.T) {
	clock := &fakeClock{}
	e := New(context.Background(), Config{Clock: clock})
	target := &recordingTarget{}

	e.Deliver(target, "#q", "x", false)
	clock.fireAll()
	e.Wait()

	for _, m := range target.msgs {
		if m.ShouldSubmit() {
			t.Errorf("attempt %d submits without autoSubmit", m.AttemptNumber)
		}
	}
}

func TestDeliver_FailuresAreSilent(t *testing.T) {
	clock := &fakeClock{}
	e := New(context.Background(), Config{Clock: clock})
	target := &recordingTarget{err: errors.New("target closed")}

	e.Deliver(target, "#q", "x", true)
	clock.fireAll()
	e.Wait()

	if len(target.msgs) != 3 {
		t.Fatalf("attempts: got %d, want 3 (failures must not stop later attempts)", len(target.msgs))
	}
	if e.Stats().Failures != 3 {
		t.Errorf("failures: got %d, want 3", e.Stats().Failures)
	}
}

func TestDeliver_EngineContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{}
	e := New(ctx, Config{Clock: clock})
	target := &recordingTarget{}

	e.Deliver(target, "#q", "x", true)
	cancel()
	clock.fireAll()
	e.Wait()

	if len(target.msgs) != 0 {
		t.Errorf("attempts after shutdown: %d", len(target.msgs))
	}
}

func TestDeliver_SubmitSelectors(t *testing.T) {
	e := New(context.Background(), Config{Clock: &fakeClock{}})
	tasks := e.Plan(&recordingTarget{}, "#q", "x", true)
	got := tasks[0].Msg.SubmitButtons
	if len(got) != len(DefaultSubmitSelectors) || got[0] != `button[type="submit"]` {
		t.Errorf("submit selectors: got %v", got)
	}

	custom := New(context.Background(), Config{Clock: &fakeClock{}, SubmitSelectors: []string{"#go"}})
	if sel := custom.Plan(&recordingTarget{}, "#q", "x", true)[2].Msg.SubmitButtons; len(sel) != 1 || sel[0] != "#go" {
		t.Errorf("custom selectors: got %v", sel)
	}
}

func TestDeliver_RealClock(t *testing.T) {
	e := New(context.Background(), Config{})
	target := &recordingTarget{}

	start := time.Now()
	e.Deliver(target, "#q", "x", true)
	e.Wait()
	elapsed := time.Since(start)

	if len(target.msgs) != 3 {
		t.Fatalf("attempts: got %d, want 3", len(target.msgs))
	}
	if elapsed < 3*time.Second {
		t.Errorf("finished after %v, before the last offset", elapsed)
	}
}
