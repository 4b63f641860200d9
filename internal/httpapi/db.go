package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/calld/internal/calllog"
	"github.com/ent0n29/calld/internal/policy"
)

type resultsResponse struct {
	Results any `json:"results"`
}

type queryRequest struct {
	SQL string `json:"sql"`
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit := calllog.DefaultRecentLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resultsResponse{Results: recs})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	n, err := s.store.Count(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resultsResponse{Results: n})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		respondError(w, http.StatusBadRequest, "missing_term", "query parameter term is required")
		return
	}
	recs, err := s.store.Search(r.Context(), term)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resultsResponse{Results: recs})
}

func (s *Server) handleCallByID(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "id must be an integer")
		return
	}
	rec, err := s.store.ByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resultsResponse{Results: rec})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	rows, err := s.store.Query(r.Context(), req.SQL)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resultsResponse{Results: rows})
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", "call store not configured")
		return false
	}
	return true
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, policy.ErrQueryForbidden):
		respondError(w, http.StatusForbidden, "query_forbidden", err.Error())
	case errors.Is(err, calllog.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		s.logger.Error("call store request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
	}
}
