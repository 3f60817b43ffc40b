package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/pastewire/orchestrator/internal/wire"
)

func TestCallExpr(t *testing.T) {
	got, err := callExpr("(a, b) => a + b", "x\"y", wire.SetValue{Selector: "#q", AttemptNumber: 2})
	if err != nil {
		t.Fatalf("callExpr: %v", err)
	}
	want := `((a, b) => a + b)("x\"y",{"selector":"#q","payload":"","autoSubmit":false,"attemptNumber":2})`
	if got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}

	got, _ = callExpr("() => 1")
	if got != "(() => 1)()" {
		t.Errorf("no args: got %s", got)
	}
}

func TestWorldCache(t *testing.T) {
	s := New(nil, "page-1", nil)
	created := 0
	next := proto.RuntimeExecutionContextID(10)
	create := func() (proto.RuntimeExecutionContextID, error) {
		created++
		next++
		return next, nil
	}

	top, _ := s.world("top", create)
	child, _ := s.world("child", create)
	if again, _ := s.world("top", create); again != top || created != 2 {
		t.Fatalf("top frame world recreated: got %d (created %d), want %d", again, created, top)
	}

	s.forgetFrame("top")
	if fresh, _ := s.world("top", create); fresh == top || created != 3 {
		t.Errorf("navigated frame kept its world: got %d (created %d)", fresh, created)
	}

	s.forgetWorld(child)
	if fresh, _ := s.world("child", create); fresh == child || created != 4 {
		t.Errorf("failed world kept: got %d (created %d)", fresh, created)
	}

	s.forgetAllWorlds()
	s.world("top", create)
	s.world("child", create)
	if created != 6 {
		t.Errorf("after contexts cleared: created %d, want 6", created)
	}

	if _, err := s.world("broken", func() (proto.RuntimeExecutionContextID, error) {
		return 0, errors.New("detached")
	}); err == nil {
		t.Error("create error swallowed")
	}
	if _, ok := s.worlds["broken"]; ok {
		t.Error("failed create cached")
	}
}

func TestFlatten(t *testing.T) {
	tree := &proto.PageFrameTree{
		Frame: &proto.PageFrame{ID: "top"},
		ChildFrames: []*proto.PageFrameTree{
			{Frame: &proto.PageFrame{ID: "a"}, ChildFrames: []*proto.PageFrameTree{{Frame: &proto.PageFrame{ID: "a1"}}}},
			{Frame: &proto.PageFrame{ID: "b"}},
		},
	}
	got := flatten(tree)
	want := []proto.PageFrameID{"top", "a", "a1", "b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: got %s, want %s", i, got[i], want[i])
		}
	}
	if flatten(nil) != nil {
		t.Error("nil tree")
	}
}

func TestProbeScriptShape(t *testing.T) {
	if !strings.HasPrefix(strings.TrimSpace(probeJS), "() =>") {
		t.Error("probe.js must be a function expression")
	}
	if !strings.Contains(probeJS, BindingName) {
		t.Error("probe.js does not push through the binding")
	}
}

// Browser tests need a local Chrome and PASTEWIRE_BROWSER_TESTS=1.
func testPage(t *testing.T, html string) (*Session, *rod.Page) {
	t.Helper()
	if os.Getenv("PASTEWIRE_BROWSER_TESTS") == "" {
		t.Skip("PASTEWIRE_BROWSER_TESTS not set")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no chrome found")
	}
	u, err := launcher.New().Bin(bin).Headless(true).Launch()
	if err != nil {
		t.Skipf("launch chrome: %v", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(html))
	}))
	t.Cleanup(srv.Close)

	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	s := New(page, string(page.TargetID), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Install(ctx); err != nil {
		// about:blank has no probe; install still registers the script.
		t.Logf("install on blank: %v", err)
	}
	if err := page.Context(ctx).Navigate(srv.URL); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		t.Fatalf("wait load: %v", err)
	}
	return s, page
}

func TestBrowser_SetValueAndSubmit(t *testing.T) {
	s, page := testPage(t, `<form onsubmit="document.title='sent:'+document.getElementById('q').value;return false">
<input id="q" type="text"></form>`)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	has, err := s.Has(ctx, "#q")
	if err != nil || !has {
		t.Fatalf("has #q: %v %v", has, err)
	}

	if err := s.SetValue(ctx, wire.SetValue{Selector: "#q", Payload: "hello", AutoSubmit: true, AttemptNumber: 1}); err != nil {
		t.Fatalf("attempt 1: %v", err)
	}
	info, _ := page.Info()
	if strings.HasPrefix(info.Title, "sent:") {
		t.Fatal("attempt 1 submitted")
	}

	if err := s.SetValue(ctx, wire.SetValue{Selector: "#q", Payload: "hello", AutoSubmit: true, AttemptNumber: 2}); err != nil {
		t.Fatalf("attempt 2: %v", err)
	}
	info, _ = page.Info()
	if info.Title != "sent:hello" {
		t.Errorf("title: got %q, want sent:hello", info.Title)
	}
}

func TestBrowser_ElementInfo(t *testing.T) {
	s, page := testPage(t, `<input name="q" type="search" autofocus>`)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := page.Context(ctx).Eval(`() => document.querySelector("input").focus()`); err != nil {
		t.Fatalf("focus: %v", err)
	}
	info, err := s.ElementInfo(ctx)
	if err != nil {
		t.Fatalf("element info: %v", err)
	}
	if info.Tag != "INPUT" || info.Selector != "input[name='q']" {
		t.Errorf("got %+v", info)
	}
}
