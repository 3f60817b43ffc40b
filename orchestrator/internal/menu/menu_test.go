package menu

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/hazyhaar/pastewire/orchestrator/internal/preset"
	"github.com/hazyhaar/pastewire/orchestrator/internal/wire"
)

func presets(n int) []preset.Preset {
	out := make([]preset.Preset, n)
	for i := range out {
		out[i] = preset.Preset{
			ID:       fmt.Sprintf("p%d", i),
			Name:     fmt.Sprintf("Target %d", i),
			URL:      fmt.Sprintf("https://h%d.test", i),
			Selector: "#q",
		}
	}
	return out
}

func newMachine(t *testing.T) (*Machine, *Registry, *State) {
	t.Helper()
	reg := NewRegistry()
	st := NewState()
	return NewMachine(reg, st, Config{}), reg, st
}

func children(items []Item) []Item {
	var out []Item
	for _, it := range items {
		if it.ParentID == RootID {
			out = append(out, it)
		}
	}
	return out
}

func TestRebuild_Layout(t *testing.T) {
	m, reg, st := newMachine(t)
	if err := m.Rebuild(context.Background(), presets(2)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	got := reg.Snapshot()
	wantIDs := []string{RootID, CaptureID, "p0", "p1", RefreshID, ConfigureID}
	if len(got) != len(wantIDs) {
		t.Fatalf("items: got %d, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("item %d: got %q, want %q", i, got[i].ID, id)
		}
		if !got[i].Enabled {
			t.Errorf("item %s: disabled after rebuild", id)
		}
	}
	if got[0].Title != "PasteWire" {
		t.Errorf("root title: got %q", got[0].Title)
	}
	if st.Rebuilding() {
		t.Error("rebuilding still set after Rebuild returned")
	}
	if m.Rebuilds() != 1 {
		t.Errorf("Rebuilds: got %d, want 1", m.Rebuilds())
	}
}

func TestRebuild_SizeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, preset.MaxPresets).Draw(t, "n")
		reg := NewRegistry()
		m := NewMachine(reg, NewState(), Config{})
		if err := m.Rebuild(context.Background(), presets(n)); err != nil {
			t.Fatalf("rebuild: %v", err)
		}
		kids := children(reg.Snapshot())
		if len(kids) != n+3 {
			t.Fatalf("children: got %d, want %d", len(kids), n+3)
		}
		seen := map[string]bool{}
		for _, it := range kids {
			if seen[it.ID] {
				t.Fatalf("id collision %q", it.ID)
			}
			seen[it.ID] = true
		}
	})
}

func TestRebuild_OverCap(t *testing.T) {
	m, reg, _ := newMachine(t)
	if err := m.Rebuild(context.Background(), presets(preset.MaxPresets+1)); err == nil {
		t.Fatal("expected error over cap")
	}
	if len(reg.Snapshot()) != 0 {
		t.Fatal("tree created over cap")
	}
}

type failingHost struct {
	*Registry
	failOn string
}

func (h *failingHost) Create(ctx context.Context, it Item) error {
	if it.ID == h.failOn {
		return errors.New("boom")
	}
	return h.Registry.Create(ctx, it)
}

func TestRebuild_FailureLeavesNoTree(t *testing.T) {
	host := &failingHost{Registry: NewRegistry(), failOn: "p1"}
	st := NewState()
	m := NewMachine(host, st, Config{})

	if err := m.Rebuild(context.Background(), presets(3)); err == nil {
		t.Fatal("expected rebuild error")
	}
	if n := len(host.Snapshot()); n != 0 {
		t.Fatalf("partial tree: %d items left", n)
	}

	// Reports are not applied to an absent tree.
	st.SetActive("tab-1")
	ticket, ok := st.Admit("tab-1")
	if !ok {
		t.Fatal("admit after failed rebuild")
	}
	applied, err := m.Apply(context.Background(), ticket, wire.ContextState{})
	if err != nil || applied {
		t.Fatalf("apply on absent tree: applied=%v err=%v", applied, err)
	}
}

func TestApply_ProjectsState(t *testing.T) {
	m, reg, st := newMachine(t)
	ctx := context.Background()
	if err := m.Rebuild(ctx, presets(2)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	st.SetActive("tab-1")

	ticket, ok := st.Admit("tab-1")
	if !ok {
		t.Fatal("admit refused")
	}
	applied, err := m.Apply(ctx, ticket, wire.ContextState{IsEditable: true, HasSelection: false})
	if err != nil || !applied {
		t.Fatalf("apply: applied=%v err=%v", applied, err)
	}

	for _, it := range reg.Snapshot() {
		want := true
		if it.Kind == KindPreset {
			want = false
		}
		if it.Enabled != want {
			t.Errorf("%s: enabled=%v, want %v", it.ID, it.Enabled, want)
		}
	}

	ticket, _ = st.Admit("tab-1")
	m.Apply(ctx, ticket, wire.ContextState{IsEditable: false, HasSelection: true})
	capture, _ := reg.Lookup(CaptureID)
	p0, _ := reg.Lookup("p0")
	if capture.Enabled || !p0.Enabled {
		t.Errorf("second apply: capture=%v p0=%v", capture.Enabled, p0.Enabled)
	}

	// Rebuild resets to the optimistic default.
	if err := m.Rebuild(ctx, presets(2)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	capture, _ = reg.Lookup(CaptureID)
	if !capture.Enabled {
		t.Error("capture disabled after rebuild")
	}
}

// A report from a non-active source never changes the tree.
func TestApply_ForeignSourceIsIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := NewRegistry()
		st := NewState()
		m := NewMachine(reg, st, Config{})
		ctx := context.Background()
		if err := m.Rebuild(ctx, presets(rapid.IntRange(0, 10).Draw(t, "n"))); err != nil {
			t.Fatalf("rebuild: %v", err)
		}
		st.SetActive("active")
		before := reg.Snapshot()

		source := rapid.StringMatching(`[a-z]{1,8}`).Filter(func(s string) bool { return s != "active" }).Draw(t, "source")
		cs := wire.ContextState{IsEditable: rapid.Bool().Draw(t, "ed"), HasSelection: rapid.Bool().Draw(t, "sel")}

		if _, ok := st.Admit(source); ok {
			t.Fatalf("admitted foreign source %q", source)
		}
		// Even a forged ticket for the foreign source is rejected.
		applied, _ := m.Apply(ctx, Ticket{Source: source}, cs)
		if applied {
			t.Fatal("foreign report applied")
		}
		after := reg.Snapshot()
		for i := range before {
			if before[i] != after[i] {
				t.Fatalf("item %s changed", before[i].ID)
			}
		}
	})
}

func TestAdmit_DroppedWhileRebuilding(t *testing.T) {
	reg := NewRegistry()
	st := NewState()
	m := NewMachine(reg, st, Config{Settle: 100 * time.Millisecond})
	ctx := context.Background()
	st.SetActive("tab-1")

	done := make(chan error, 1)
	go func() { done <- m.Rebuild(ctx, presets(1)) }()

	deadline := time.Now().Add(2 * time.Second)
	for !st.Rebuilding() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !st.Rebuilding() {
		t.Fatal("rebuild never started")
	}
	if _, ok := st.Admit("tab-1"); ok {
		t.Error("report admitted during rebuild")
	}
	if err := <-done; err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if _, ok := st.Admit("tab-1"); !ok {
		t.Error("report refused after rebuild")
	}
}

// A ticket admitted before a rebuild is stale after it.
func TestApply_StaleTicketAfterRebuild(t *testing.T) {
	m, reg, st := newMachine(t)
	ctx := context.Background()
	if err := m.Rebuild(ctx, presets(1)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	st.SetActive("tab-1")
	ticket, ok := st.Admit("tab-1")
	if !ok {
		t.Fatal("admit refused")
	}
	if err := m.Rebuild(ctx, presets(1)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	applied, err := m.Apply(ctx, ticket, wire.ContextState{})
	if err != nil || applied {
		t.Fatalf("stale ticket: applied=%v err=%v", applied, err)
	}
	for _, it := range reg.Snapshot() {
		if !it.Enabled {
			t.Errorf("%s disabled by stale report", it.ID)
		}
	}
}

func TestResetEnabled(t *testing.T) {
	m, reg, st := newMachine(t)
	ctx := context.Background()
	if err := m.Rebuild(ctx, presets(1)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !st.SetActive("tab-1") {
		t.Fatal("SetActive: source change not reported")
	}
	if st.SetActive("tab-1") {
		t.Error("SetActive: same source reported as a change")
	}
	ticket, _ := st.Admit("tab-1")
	m.Apply(ctx, ticket, wire.ContextState{})

	st.SetActive("tab-2")
	if applied, _ := m.ResetEnabled(ctx, ticket); applied {
		t.Fatal("reset applied with a ticket of the previous source")
	}
	ticket, _ = st.Admit("tab-2")
	applied, err := m.ResetEnabled(ctx, ticket)
	if err != nil || !applied {
		t.Fatalf("reset: applied=%v err=%v", applied, err)
	}
	for _, it := range reg.Snapshot() {
		if !it.Enabled {
			t.Errorf("%s disabled after reset", it.ID)
		}
	}
}

func TestFixedKind(t *testing.T) {
	cases := map[string]Kind{
		RootID: KindRoot, CaptureID: KindCapture, RefreshID: KindRefresh,
		ConfigureID: KindConfigure, "0190c5d2-aaaa": KindPreset,
	}
	for id, want := range cases {
		if got := FixedKind(id); got != want {
			t.Errorf("FixedKind(%q): got %q, want %q", id, got, want)
		}
	}
}
