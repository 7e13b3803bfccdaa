// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes targets and capture operations over HTTP.
package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/capd/internal/api/middleware"
	"github.com/ManuGH/capd/internal/capture"
	"github.com/ManuGH/capd/internal/health"
	"github.com/ManuGH/capd/internal/target"
)

// Config holds the HTTP surface settings.
type Config struct {
	// DataDir holds the per-user output directories under users/.
	DataDir string
	// Tokens maps bearer tokens to user names. When empty the caller names
	// itself with the X-Capture-User header.
	Tokens map[string]string
	Stack  middleware.StackConfig
	// Health backs /healthz and /readyz. Nil serves probes without checks.
	Health *health.Manager
}

// Server serves the capd API.
type Server struct {
	cfg        Config
	targets    *target.Manager
	registries map[string]*capture.Registry
	router     chi.Router
}

// New builds a server. registries is keyed by target id and must hold one
// registry per target known to targets.
func New(cfg Config, targets *target.Manager, registries map[string]*capture.Registry) (*Server, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("api: data dir is required")
	}
	for _, info := range targets.List() {
		if _, ok := registries[info.ID]; !ok {
			return nil, fmt.Errorf("api: no capture registry for target %s", info.ID)
		}
	}
	if cfg.Health == nil {
		cfg.Health = health.NewManager("")
	}
	s := &Server{cfg: cfg, targets: targets, registries: registries}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(s.cfg.Stack)

	r.Get("/healthz", s.cfg.Health.ServeHealth)
	r.Get("/readyz", s.cfg.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identify)
		r.Get("/targets", s.handleListTargets)
		r.Route("/targets/{target}", func(r chi.Router) {
			r.Post("/acquire", s.handleAcquire)
			r.Post("/release", s.handleRelease)
			r.Get("/capture/list", s.handleList)
			r.Get("/capture/inventory", s.handleInventory)
			// POST is kept for clients of the older post_* verbs.
			r.Put("/capture/start", s.handleStart)
			r.Post("/capture/start", s.handleStart)
			r.Put("/capture/stop_and_get", s.handleStopAndGet)
			r.Post("/capture/stop_and_get", s.handleStopAndGet)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func (s *Server) lookup(id string) (*target.Target, *capture.Registry, error) {
	t, err := s.targets.Get(id)
	if err != nil {
		return nil, nil, err
	}
	return t, s.registries[id], nil
}
