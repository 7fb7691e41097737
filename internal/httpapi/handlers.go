package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"spotter/internal/auth"
	"spotter/internal/config"
	"spotter/internal/model"
	"spotter/internal/pipeline"
	"spotter/internal/version"
)

// Extractor is the pipeline surface the handlers call into.
type Extractor interface {
	Extract(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
	ExtractBatch(ctx context.Context, texts []string, entities []string, threshold *float64, flat *bool) ([]pipeline.Result, error)
}

type Handler struct {
	cfg       *config.Config
	extractor Extractor
	gate      *auth.Gate
	backend   string
}

func NewHandler(cfg *config.Config, ex Extractor, gate *auth.Gate, backendKind string) *Handler {
	return &Handler{cfg: cfg, extractor: ex, gate: gate, backend: backendKind}
}

type invokeRequest struct {
	Text      string   `json:"text"`
	Entities  []string `json:"entities,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Flat      *bool    `json:"flat,omitempty"`
}

type batchRequest struct {
	Texts     []string `json:"texts"`
	Entities  []string `json:"entities,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Flat      *bool    `json:"flat,omitempty"`
}

type invokeResponse struct {
	Entities []model.Span `json:"entities"`
}

type batchResponse struct {
	Results [][]model.Span `json:"results"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

type infoResponse struct {
	ModelID          string   `json:"model_id"`
	Backend          string   `json:"backend"`
	DefaultEntities  []string `json:"default_entities"`
	DefaultThreshold float64  `json:"default_threshold"`
	APIKeyRequired   bool     `json:"api_key_required"`
	UseCase          string   `json:"use_case"`
	Version          string   `json:"version"`
}

func (h *Handler) Invoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation", Detail: "invalid request body"})
		return
	}
	res, err := h.extractor.Extract(r.Context(), pipeline.Request{
		Text:      req.Text,
		Entities:  req.Entities,
		Threshold: req.Threshold,
		Flat:      req.Flat,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Entities == nil {
		res.Entities = []model.Span{}
	}
	writeJSON(w, http.StatusOK, invokeResponse{Entities: res.Entities})
}

func (h *Handler) InvokeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation", Detail: "invalid request body"})
		return
	}
	results, err := h.extractor.ExtractBatch(r.Context(), req.Texts, req.Entities, req.Threshold, req.Flat)
	if err != nil {
		writeError(w, err)
		return
	}
	out := batchResponse{Results: make([][]model.Span, len(results))}
	for i, res := range results {
		if res.Entities == nil {
			res.Entities = []model.Span{}
		}
		out.Results[i] = res.Entities
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		ModelID:          h.cfg.ModelID,
		Backend:          h.backend,
		DefaultEntities:  h.cfg.DefaultEntities,
		DefaultThreshold: h.cfg.DefaultThreshold,
		APIKeyRequired:   h.gate.Required(),
		UseCase:          h.cfg.UseCase,
		Version:          version.Version,
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// writeError maps pipeline errors onto transport responses. Validation and
// inference failures carry a category and a human-readable reason; internal
// detail stays out of the wire format.
func writeError(w http.ResponseWriter, err error) {
	var verr *pipeline.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation", Detail: verr.Reason})
		return
	}
	var ierr *pipeline.InferenceError
	if errors.As(err, &ierr) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "inference", Detail: "model inference failed"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Detail: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
