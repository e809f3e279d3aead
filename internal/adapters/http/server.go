// Package http exposes the batch pipeline as a JSON API: start, inspect,
// cancel, force-complete, approve, plus a Prometheus metrics endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/austencloud/tka-desktop-sub001/internal/runtime"
	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

// Orchestrator defines the slice of the batch facade the API needs.
// batchgen.Orchestrator satisfies it.
type Orchestrator interface {
	StartBatch(ctx context.Context, params domain.GenerationParams, count int) (string, error)
	Batches() []string
	State(batchID string) (runtime.State, error)
	Progress(batchID string) (done, total int, err error)
	CancelBatch(batchID string) error
	ForceComplete(batchID string) error
	ClearBatch(batchID string) error
	Artifacts(batchID string) ([]*domain.Artifact, error)
	Approve(batchID, jobID string) (*domain.Artifact, error)
}

// Server implements the JSON handlers over an Orchestrator.
type Server struct {
	orch Orchestrator
}

// NewHandler builds the router. The registry, when non-nil, is served at
// /metrics.
func NewHandler(orch Orchestrator, reg *prometheus.Registry) http.Handler {
	s := &Server{orch: orch}
	r := chi.NewRouter()

	r.Route("/batches", func(r chi.Router) {
		r.Post("/", s.startBatch)
		r.Get("/", s.listBatches)
		r.Route("/{batchID}", func(r chi.Router) {
			r.Get("/", s.getBatch)
			r.Delete("/", s.clearBatch)
			r.Post("/cancel", s.cancelBatch)
			r.Post("/force-complete", s.forceComplete)
			r.Get("/artifacts", s.listArtifacts)
			r.Post("/jobs/{jobID}/approve", s.approveJob)
		})
	})
	if reg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return r
}

type startRequest struct {
	Count  int                      `json:"count"`
	Params *domain.GenerationParams `json:"params,omitempty"`
}

type startResponse struct {
	BatchID string `json:"batch_id"`
}

type batchResponse struct {
	BatchID string `json:"batch_id"`
	State   string `json:"state"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
}

type artifactResponse struct {
	ID       string `json:"id"`
	Word     string `json:"word"`
	Length   int    `json:"length"`
	Fallback bool   `json:"fallback"`
	Approved bool   `json:"approved"`
}

func (s *Server) startBatch(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	params := domain.DefaultParams()
	if body.Params != nil {
		params = *body.Params
	}
	if body.Count <= 0 {
		body.Count = 1
	}

	batchID, err := s.orch.StartBatch(r.Context(), params, body.Count)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{BatchID: batchID})
}

func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	out := []batchResponse{}
	for _, id := range s.orch.Batches() {
		if resp, err := s.batchResponse(id); err == nil {
			out = append(out, resp)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) batchResponse(batchID string) (batchResponse, error) {
	state, err := s.orch.State(batchID)
	if err != nil {
		return batchResponse{}, err
	}
	done, total, err := s.orch.Progress(batchID)
	if err != nil {
		return batchResponse{}, err
	}
	return batchResponse{BatchID: batchID, State: string(state), Done: done, Total: total}, nil
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	resp, err := s.batchResponse(chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cancelBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.CancelBatch(chi.URLParam(r, "batchID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) forceComplete(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ForceComplete(chi.URLParam(r, "batchID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ClearBatch(chi.URLParam(r, "batchID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listArtifacts(w http.ResponseWriter, r *http.Request) {
	artifacts, err := s.orch.Artifacts(chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]artifactResponse, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, toArtifactResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) approveJob(w http.ResponseWriter, r *http.Request) {
	a, err := s.orch.Approve(chi.URLParam(r, "batchID"), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArtifactResponse(a))
}

func toArtifactResponse(a *domain.Artifact) artifactResponse {
	return artifactResponse{
		ID:       a.ID,
		Word:     a.Word,
		Length:   len(domain.ContentBeats(a.Beats)),
		Fallback: a.Fallback,
		Approved: a.Approved,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBatchNotFound), errors.Is(err, domain.ErrJobNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrBatchActive):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
