package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/calld/internal/calllog"
	"github.com/ent0n29/calld/internal/config"
	"github.com/ent0n29/calld/internal/execution"
	"github.com/ent0n29/calld/internal/notify"
	"github.com/ent0n29/calld/internal/observability"
)

// Executor runs one call string.
type Executor interface {
	Execute(ctx context.Context, callString string) execution.Envelope
}

type Server struct {
	cfg        config.Config
	dispatcher Executor
	store      *calllog.Store
	modules    notify.Lister
	hub        *notify.Hub
	metrics    *observability.Metrics
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, dispatcher Executor, store *calllog.Store, modules notify.Lister, hub *notify.Hub, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = calllog.DefaultRecentLimit
	}
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		store:      store,
		modules:    modules,
		hub:        hub,
		metrics:    metrics,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the same origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Post("/execute", s.handleExecute)
	r.Get("/history", s.handleHistory)
	r.Get("/modules", s.handleModules)
	r.Get("/ws", s.handleWS)

	r.Route("/api/db", func(r chi.Router) {
		r.Get("/recent", s.handleRecent)
		r.Get("/count", s.handleCount)
		r.Get("/search", s.handleSearch)
		r.Get("/calls/{id}", s.handleCallByID)
		r.Post("/query", s.handleQuery)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	backend := "none"
	if s.store != nil {
		backend = s.store.Backend()
	}
	listeners := 0
	if s.hub != nil {
		listeners = s.hub.Count()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"store_backend": backend,
		"listeners":     listeners,
	})
}

type executeRequest struct {
	CallString string `json:"callString"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.CallString) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "callString is required")
		return
	}
	env := s.dispatcher.Execute(r.Context(), req.CallString)
	respondJSON(w, http.StatusOK, env)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	recs, err := s.store.Recent(r.Context(), s.cfg.HistoryLimit)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, recs)
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	mods, err := s.modules.ListAll(r.Context())
	if err != nil {
		s.logger.Error("list modules failed", "error", err)
		respondError(w, http.StatusInternalServerError, "modules_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"modules": mods})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
