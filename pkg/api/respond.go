package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/waypointgames/waypoint/pkg/session"
)

// Error codes carried in error bodies. Clients branch on these, not on
// the message.
const (
	codeNotFound          = "not_found"
	codeSessionCompleted  = "session_completed"
	codeSessionSuperseded = "session_superseded"
	codeInvalidRequest    = "invalid_request"
	codeInternal          = "internal"
)

// maxBodyBytes caps request bodies; page batches are the largest.
const maxBodyBytes = 4 << 20

type errorResponse struct {
	Error  string       `json:"error"`
	Code   string       `json:"code"`
	Fields []fieldError `json:"fields,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeStoreError maps session store errors to responses. Unknown errors
// are logged and reported as 500 without detail.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "session not found")
	case errors.Is(err, session.ErrCompleted):
		writeError(w, http.StatusConflict, codeSessionCompleted, "session is completed")
	case errors.Is(err, session.ErrSuperseded):
		writeError(w, http.StatusConflict, codeSessionSuperseded, "session was replaced by a replay")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

// decodeJSON reads and validates a request body into v. On failure it
// writes the 400 response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "validation failed",
			Code:   codeInvalidRequest,
			Fields: formatValidationErrors(err),
		})
		return false
	}
	return true
}
