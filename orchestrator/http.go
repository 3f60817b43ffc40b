package orchestrator

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pastewire/connectivity"
	"github.com/hazyhaar/pastewire/kit"
	"github.com/hazyhaar/pastewire/orchestrator/internal/preset"
	"github.com/hazyhaar/pastewire/orchestrator/internal/wire"
)

//go:embed web/config.html
var webFS embed.FS

var configPage = template.Must(template.ParseFS(webFS, "web/config.html"))

const maxRequestBody = 1 << 20

// Handler returns the HTTP surface of the daemon: the REST API, the RPC
// bridge onto router, the configuration page and, when srv is non-nil,
// MCP over streamable HTTP.
func (o *Orchestrator) Handler(router *connectivity.Router, srv *mcp.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(o.requestContext)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/config", o.serveConfigPage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/menu", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, wire.OK(o.Menu()))
		})
		r.Post("/menu/click", func(w http.ResponseWriter, r *http.Request) {
			var c Click
			if !decodeBody(w, r, &c) {
				return
			}
			writeReply(w, nil, o.HandleClick(r.Context(), c))
		})
		r.Post("/menu/rebuild", func(w http.ResponseWriter, r *http.Request) {
			err := o.RequestMenuRebuild(r.Context())
			writeReply(w, o.Menu(), err)
		})

		r.Get("/presets", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, wire.OK(o.Presets()))
		})
		r.Post("/presets", func(w http.ResponseWriter, r *http.Request) {
			var req AddPresetRequest
			if !decodeBody(w, r, &req) {
				return
			}
			added, err := o.AddPreset(r.Context(), preset.Preset{
				Name:       req.Name,
				URL:        req.URL,
				Selector:   req.Selector,
				AutoSubmit: req.AutoSubmit,
				ReuseTab:   req.ReuseTab,
			})
			writeReply(w, added, err)
		})
		r.Patch("/presets/{id}", func(w http.ResponseWriter, r *http.Request) {
			var req UpdatePresetRequest
			if !decodeBody(w, r, &req) {
				return
			}
			updated, err := o.UpdatePreset(r.Context(), chi.URLParam(r, "id"), preset.Patch{
				Name:       req.Name,
				AutoSubmit: req.AutoSubmit,
				ReuseTab:   req.ReuseTab,
			})
			writeReply(w, updated, err)
		})
		r.Delete("/presets/{id}", func(w http.ResponseWriter, r *http.Request) {
			writeReply(w, nil, o.DeletePreset(r.Context(), chi.URLParam(r, "id")))
		})

		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			events, err := o.Events(r.Context(), queryInt(r, "limit", 50))
			writeReply(w, events, err)
		})
		r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, wire.OK(o.Stats()))
		})

		if router != nil {
			r.Post("/rpc/{service}", rpcHandler(router))
		}
	})

	if srv != nil {
		h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
		r.Handle("/mcp", h)
		r.Handle("/mcp/*", h)
	}
	return r
}

// requestContext tags the request context with its transport and chi
// request id, and logs the request.
func (o *Orchestrator) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := kit.WithTransport(r.Context(), "http")
		ctx = kit.WithRequestID(ctx, middleware.GetReqID(r.Context()))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		o.logger.Debug("http: request",
			"method", r.Method,
			"path", r.URL.Path,
			"transport", kit.GetTransport(ctx),
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", kit.GetRequestID(ctx))
	})
}

// rpcHandler bridges POST /api/rpc/{service} onto a connectivity Router so
// remote routers can reach the daemon's local handlers.
func rpcHandler(router *connectivity.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ctx := kit.WithTransport(r.Context(), "rpc")
		resp, err := router.Call(ctx, chi.URLParam(r, "service"), payload)
		if err != nil {
			var snf *connectivity.ErrServiceNotFound
			if errors.As(err, &snf) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(resp)
	}
}

type configView struct {
	Title   string
	Max     int
	Presets []preset.Preset
}

func (o *Orchestrator) serveConfigPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := configPage.Execute(w, configView{
		Title:   o.cfg.Menu.Title,
		Max:     preset.MaxPresets,
		Presets: o.Presets(),
	})
	if err != nil {
		o.logger.Error("http: render config page", "error", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, wire.Fail(preset.ErrInvalid.Error()))
		return false
	}
	return true
}

// writeReply writes a wire.Reply with a status matching the error code.
func writeReply(w http.ResponseWriter, data any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, wire.OK(data))
		return
	}
	code := ErrorCode(err)
	writeJSON(w, statusFor(code), wire.Fail(code))
}

func statusFor(code string) int {
	switch code {
	case preset.ErrCapExceeded.Error(), preset.ErrDuplicate.Error():
		return http.StatusConflict
	case preset.ErrNotFound.Error():
		return http.StatusNotFound
	case preset.ErrInvalid.Error():
		return http.StatusBadRequest
	case ErrNoSelection.Error(), ErrNoEditable.Error(), ErrNoPage.Error(), "no-probe":
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// Serve runs the HTTP surface on cfg.Listen until ctx is cancelled.
func (o *Orchestrator) Serve(ctx context.Context, h http.Handler) error {
	srv := &http.Server{
		Addr:              o.cfg.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		o.logger.Info("http: listening", "addr", o.cfg.Listen)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}
