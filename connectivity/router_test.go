package connectivity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRegisterLocal_and_Call(t *testing.T) {
	r := New()
	called := false
	r.RegisterLocal("echo", func(ctx context.Context, payload []byte) ([]byte, error) {
		called = true
		return payload, nil
	})

	resp, err := r.Call(context.Background(), "echo", []byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("local handler not called")
	}
	if string(resp) != "hello" {
		t.Fatalf("got %q, want %q", resp, "hello")
	}
}

func TestCall_ServiceNotFound(t *testing.T) {
	r := New()
	_, err := r.Call(context.Background(), "nonexistent", nil)
	var snf *ErrServiceNotFound
	if !errors.As(err, &snf) {
		t.Fatalf("expected ErrServiceNotFound, got %T: %v", err, err)
	}
	if snf.Service != "nonexistent" {
		t.Fatalf("got service %q, want %q", snf.Service, "nonexistent")
	}
}

func TestCall_LocalWinsOverRemote(t *testing.T) {
	r := New()
	r.RegisterRemote("svc", func(ctx context.Context, p []byte) ([]byte, error) { return []byte("remote"), nil })
	r.RegisterRemote("only-remote", func(ctx context.Context, p []byte) ([]byte, error) { return []byte("remote"), nil })
	r.RegisterLocal("svc", func(ctx context.Context, p []byte) ([]byte, error) { return []byte("local"), nil })

	resp, _ := r.Call(context.Background(), "svc", nil)
	if string(resp) != "local" {
		t.Errorf("svc: got %q, want local", resp)
	}
	resp, _ = r.Call(context.Background(), "only-remote", nil)
	if string(resp) != "remote" {
		t.Errorf("only-remote: got %q, want remote", resp)
	}

	got := r.Services()
	if len(got) != 2 || got[0] != "only-remote" || got[1] != "svc" {
		t.Errorf("Services: got %v", got)
	}
}

func TestRecovery(t *testing.T) {
	r := New(WithMiddleware(Recovery(quiet)))
	r.RegisterLocal("boom", func(ctx context.Context, p []byte) ([]byte, error) {
		panic("kaboom")
	})

	_, err := r.Call(context.Background(), "boom", nil)
	var pe *ErrPanic
	if !errors.As(err, &pe) {
		t.Fatalf("expected ErrPanic, got %T: %v", err, err)
	}
	if pe.Value != "kaboom" {
		t.Errorf("panic value: got %v", pe.Value)
	}
}

func TestTimeout(t *testing.T) {
	h := Timeout(20 * time.Millisecond)(func(ctx context.Context, p []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := h(context.Background(), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) HandlerMiddleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, p []byte) ([]byte, error) {
				order = append(order, name)
				return next(ctx, p)
			}
		}
	}
	h := Chain(mw("outer"), mw("inner"), Logging(quiet))(func(ctx context.Context, p []byte) ([]byte, error) {
		order = append(order, "handler")
		return nil, nil
	})
	h(context.Background(), nil)

	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestHTTPHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type: %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) == "fail" {
			http.Error(w, "nope", http.StatusBadRequest)
			return
		}
		w.Write(append([]byte("echo:"), body...))
	}))
	defer srv.Close()

	h := HTTPHandler(srv.URL, time.Second)
	resp, err := h(context.Background(), []byte("hi"))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(resp) != "echo:hi" {
		t.Errorf("got %q", resp)
	}

	_, err = h(context.Background(), []byte("fail"))
	var rs *ErrRemoteStatus
	if !errors.As(err, &rs) || rs.Status != http.StatusBadRequest {
		t.Fatalf("got %v, want ErrRemoteStatus 400", err)
	}
}
