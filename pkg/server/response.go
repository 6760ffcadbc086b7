package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/openfroyo/guardrails/pkg/engine"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message,omitempty"`
	Resource string `json:"resource,omitempty"`
}

// writeJSON writes data with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode response")
	}
}

// StatusFor maps an error to its HTTP status: not-found to 404, invalid
// requests to 400 and everything else to 500.
func StatusFor(err error) int {
	switch {
	case engine.IsNotFound(err):
		return http.StatusNotFound
	case engine.IsInvalidRequest(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as an ErrorResponse. Internal error details are
// logged, not returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{Error: engine.ErrCodeInternal, Message: http.StatusText(status)}

	var ee *engine.EngineError
	if status != http.StatusInternalServerError && errors.As(err, &ee) {
		resp.Error = ee.Code
		resp.Message = ee.Message
		resp.Resource = ee.Resource
		if ee.Err != nil {
			resp.Message += ": " + ee.Err.Error()
		}
	}

	log := zerolog.Ctx(r.Context())
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}

	writeJSON(w, r, status, resp)
}

// decodeJSON decodes a JSON body into v, rejecting unknown fields. An empty
// body is allowed only when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}, optional bool) error {
	body := r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return engine.NewValidationError("invalid request body", err)
	}
	return nil
}
