package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/openfroyo/guardrails/pkg/engine"
	"github.com/openfroyo/guardrails/pkg/guardrails"
	"github.com/openfroyo/guardrails/pkg/policy"
)

type handler struct {
	svc     Service
	health  HealthChecker
	maxBody int64
}

// RemediationRequest optionally names the violations to remediate.
type RemediationRequest struct {
	ViolationIDs []string `json:"violationIds,omitempty"`
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.HealthCheck(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Health check failed")
			writeJSON(w, r, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req guardrails.Request
	if err := decodeJSON(w, r, h.maxBody, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.svc.Evaluate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/evaluations/"+result.ID)
	writeJSON(w, r, http.StatusCreated, result)
}

func (h *handler) listEvaluations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, engine.NewValidationError("limit must be a non-negative integer", err))
			return
		}
		limit = n
	}

	results, err := h.svc.GetEvaluations(r.Context(), r.URL.Query().Get("blueprintId"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []*engine.EvaluationResult{}
	}
	writeJSON(w, r, http.StatusOK, results)
}

func (h *handler) getEvaluation(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetEvaluation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (h *handler) remediate(w http.ResponseWriter, r *http.Request) {
	var req RemediationRequest
	if err := decodeJSON(w, r, h.maxBody, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	suggestions, err := h.svc.AutoRemediate(r.Context(), chi.URLParam(r, "id"), req.ViolationIDs...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if suggestions == nil {
		suggestions = []engine.RemediationSuggestion{}
	}
	writeJSON(w, r, http.StatusOK, suggestions)
}

func (h *handler) listPolicies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := policy.Filter{
		Category: policy.Category(q.Get("category")),
		Severity: policy.Severity(q.Get("severity")),
	}
	if raw := q.Get("enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, engine.NewValidationError("enabled must be a boolean", err))
			return
		}
		filter.Enabled = &enabled
	}

	policies := h.svc.GetPolicies(filter)
	if policies == nil {
		policies = []policy.Policy{}
	}
	writeJSON(w, r, http.StatusOK, policies)
}

func (h *handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.svc.GetPolicy(id)
	if !ok {
		writeError(w, r, engine.NewNotFoundError("policy", id))
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func (h *handler) complianceScore(w http.ResponseWriter, r *http.Request) {
	score, err := h.svc.GetComplianceScore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, score)
}

func (h *handler) predictions(w http.ResponseWriter, r *http.Request) {
	predictions, err := h.svc.Predict(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if predictions == nil {
		predictions = []engine.Prediction{}
	}
	writeJSON(w, r, http.StatusOK, predictions)
}

func (h *handler) detectDrift(w http.ResponseWriter, r *http.Request) {
	var state map[string]interface{}
	if err := decodeJSON(w, r, h.maxBody, &state, false); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.svc.DetectDrift(r.Context(), chi.URLParam(r, "resourceId"), state)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (h *handler) rebaseline(w http.ResponseWriter, r *http.Request) {
	var state map[string]interface{}
	if err := decodeJSON(w, r, h.maxBody, &state, false); err != nil {
		writeError(w, r, err)
		return
	}

	baseline, err := h.svc.Rebaseline(r.Context(), chi.URLParam(r, "resourceId"), state)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, baseline)
}
