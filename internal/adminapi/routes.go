// ABOUTME: HTTP routes for health, metrics, state, history, and blacklist administration
// ABOUTME: Read routes need a read-scoped token; mutations need admin scope

package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/2389/coven-handoff/internal/auth"
	"github.com/2389/coven-handoff/internal/broker"
	"github.com/2389/coven-handoff/internal/store"
)

// Broker is the broker surface exposed over HTTP.
type Broker interface {
	Snapshot() broker.Snapshot
	Blacklist(ctx context.Context, agent, user string) broker.Result
	Unblacklist(ctx context.Context, agent, user string) broker.Result
	EndConversation(ctx context.Context, endedBy string) broker.Result
}

// Ledger is the event history store.
type Ledger interface {
	Ping(ctx context.Context) error
	ListEvents(ctx context.Context, f store.EventFilter) ([]store.EventRecord, error)
	CountByType(ctx context.Context, since time.Time) (map[broker.EventType]int, error)
}

// Options configures the router.
type Options struct {
	Broker Broker
	// Ledger is optional; history routes answer 404 without it.
	Ledger Ledger
	// Verifier is optional; the /api routes are not mounted without it.
	Verifier    auth.TokenVerifier
	Metrics     http.Handler
	MetricsPath string
	Logger      *slog.Logger
}

type handlers struct {
	broker Broker
	ledger Ledger
	logger *slog.Logger
}

// NewRouter builds the admin HTTP handler.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &handlers{broker: opts.Broker, ledger: opts.Ledger, logger: opts.Logger.With("component", "adminapi")}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", h.health)
	r.Get("/health/ready", h.ready)
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, opts.Metrics)
	}

	if opts.Verifier == nil {
		h.logger.Warn("no jwt secret configured, admin API disabled")
		return r
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(opts.Verifier, auth.ScopeRead))
			r.Get("/state", h.state)
			r.Get("/events", h.events)
			r.Get("/events/counts", h.counts)
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(opts.Verifier, auth.ScopeAdmin))
			r.Post("/blacklist", h.block)
			r.Delete("/blacklist", h.unblock)
			r.Post("/conversations/end", h.endConversation)
		})
	})
	return r
}

// requestLogger logs each request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", chiMiddleware.GetReqID(r.Context()),
			)
		})
	}
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "checks": map[string]string{}}
	code := http.StatusOK
	checks := status["checks"].(map[string]string)
	if h.ledger == nil {
		checks["ledger"] = "disabled"
	} else if err := h.ledger.Ping(r.Context()); err != nil {
		h.logger.Warn("ledger ping failed", "error", err)
		checks["ledger"] = "unreachable"
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	} else {
		checks["ledger"] = "ok"
	}
	writeJSON(w, code, status)
}

func (h *handlers) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.broker.Snapshot())
}

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, http.StatusNotFound, "event ledger disabled")
		return
	}
	f, err := parseEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := h.ledger.ListEvents(r.Context(), f)
	if err != nil {
		h.logger.Error("listing events failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing events failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *handlers) counts(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, http.StatusNotFound, "event ledger disabled")
		return
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = t
	}
	counts, err := h.ledger.CountByType(r.Context(), since)
	if err != nil {
		h.logger.Error("counting events failed", "error", err)
		writeError(w, http.StatusInternalServerError, "counting events failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

func parseEventFilter(r *http.Request) (store.EventFilter, error) {
	q := r.URL.Query()
	var f store.EventFilter
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New(p.key + " must be RFC3339")
		}
		*p.dst = &t
	}
	if v := q.Get("user"); v != "" {
		f.UserID = &v
	}
	if v := q.Get("agent"); v != "" {
		f.AgentID = &v
	}
	if v := q.Get("type"); v != "" {
		t := broker.EventType(v)
		f.Type = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

type blacklistRequest struct {
	Agent string `json:"agent"`
	User  string `json:"user"`
}

func (h *handlers) block(w http.ResponseWriter, r *http.Request) {
	h.blacklistChange(w, r, h.broker.Blacklist)
}

func (h *handlers) unblock(w http.ResponseWriter, r *http.Request) {
	h.blacklistChange(w, r, h.broker.Unblacklist)
}

func (h *handlers) blacklistChange(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, agent, user string) broker.Result) {
	var req blacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res := op(r.Context(), req.Agent, req.User)
	h.audit(r, "blacklist change", res, "agent", req.Agent, "user", req.User, "method", r.Method)
	writeResult(w, res)
}

type endRequest struct {
	User string `json:"user"`
}

func (h *handlers) endConversation(w http.ResponseWriter, r *http.Request) {
	var req endRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	res := h.broker.EndConversation(r.Context(), req.User)
	h.audit(r, "conversation end", res, "user", req.User)
	writeResult(w, res)
}

func (h *handlers) audit(r *http.Request, action string, res broker.Result, args ...any) {
	subject := ""
	if c, ok := auth.FromContext(r.Context()); ok {
		subject = c.Subject
	}
	args = append(args, "subject", subject, "ok", res.OK)
	if res.Err != nil {
		args = append(args, "reason", res.Err)
	}
	h.logger.Info(action, args...)
}

type resultBody struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func writeResult(w http.ResponseWriter, res broker.Result) {
	writeJSON(w, resultStatus(res), resultBody{OK: res.OK, Message: res.Message})
}

// resultStatus maps a broker denial to an HTTP status.
func resultStatus(res broker.Result) int {
	switch {
	case res.OK:
		return http.StatusOK
	case errors.Is(res.Err, broker.ErrNotAgent),
		errors.Is(res.Err, broker.ErrMissingUser),
		errors.Is(res.Err, broker.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(res.Err, broker.ErrNotBlacklisted),
		errors.Is(res.Err, broker.ErrNoConversation):
		return http.StatusNotFound
	default:
		return http.StatusConflict
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
