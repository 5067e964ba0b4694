// Package server exposes the L2 gateway pipeline over the §6.1
// client-facing HTTP surface: chi routing and middleware, matching the
// teacher's router setup, now dispatching into internal/pipeline instead
// of a single hardcoded provider map.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/llmgw/llmgateway/internal/canon"
	"github.com/llmgw/llmgateway/internal/pipeline"
	"github.com/llmgw/llmgateway/internal/registry"
)

// Server holds the HTTP router and the pipeline every route dispatches
// into.
type Server struct {
	router   chi.Router
	pipeline *pipeline.Pipeline
	registry *registry.Registry
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler.
func New(p *pipeline.Pipeline, reg *registry.Registry) *Server {
	s := &Server{pipeline: p, registry: reg}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/v1/models", s.handleModels)
	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Post("/v1/messages", s.handleMessages)
	r.Post("/v1/responses", s.handleResponses)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleModels serves GET /v1/models: an OpenAI-compatible model listing
// drawn straight from the registry.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	type modelEntry struct {
		ID     string `json:"id"`
		Object string `json:"object"`
	}
	models := s.registry.Models()
	data := make([]modelEntry, 0, len(models))
	for _, m := range models {
		data = append(data, modelEntry{ID: m, Object: "model"})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	s.pipeline.Handle(w, r, canon.FamilyOpenAI)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.pipeline.Handle(w, r, canon.FamilyAnthropic)
}

func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	s.pipeline.Handle(w, r, canon.FamilyResponses)
}
