package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const maxQueryBodySize = 1 << 20 // 1MB

// QueryRequest is the inbound body for POST /query.
type QueryRequest struct {
	Query string `json:"query"`
}

// NewHandler builds the gateway's HTTP surface around an Orchestrator.
func NewHandler(o *Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Post("/query", handleQuery(o))
	r.Get("/health", handleHealth)
	return r
}

func handleQuery(o *Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxQueryBodySize)
		defer r.Body.Close()

		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		result, err := o.Handle(r.Context(), req.Query)
		switch {
		case errors.Is(err, ErrTimeout):
			httpError(w, http.StatusGatewayTimeout, "timeout_error", "job timed out before completion")
			return
		case errors.Is(err, ErrDispatch):
			httpError(w, http.StatusServiceUnavailable, "dispatch_error", "failed to dispatch job: %v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "query failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
