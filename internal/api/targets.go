// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/capd/internal/log"
)

// GET /api/v1/targets
func (s *Server) handleListTargets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"targets": s.targets.List()})
}

// POST /api/v1/targets/{target}/acquire
func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	t, err := s.targets.Get(chi.URLParam(r, "target"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	who := log.WhoFromContext(r.Context())
	if err := t.Acquire(who); err != nil {
		writeError(w, r, err)
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().Str(log.FieldEvent, "target.acquire").Str(log.FieldTarget, t.ID()).Msg("target acquired")
	writeJSON(w, http.StatusOK, t.Info())
}

// POST /api/v1/targets/{target}/release?force=
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	t, err := s.targets.Get(chi.URLParam(r, "target"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		force, err = strconv.ParseBool(v)
		if err != nil {
			writeProblem(w, r, http.StatusBadRequest, "bad_request", "force must be a boolean")
			return
		}
	}
	if err := t.Release(r.Context(), log.WhoFromContext(r.Context()), force); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t.Info())
}
