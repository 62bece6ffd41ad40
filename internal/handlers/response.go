package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
)

const maxBodyBytes = 1 << 16

type errorResponse struct {
	Error  string            `json:"error"`
	Kind   auth.ErrorKind    `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeAuthError answers with the taxonomy's own message, never the
// wrapped provider detail.
func writeAuthError(w http.ResponseWriter, err error) {
	kind := auth.Classify(err)

	switch kind {
	case auth.KindInvalidCredential:
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: auth.ErrInvalidCredential.Error(), Kind: kind})
	case auth.KindDuplicateAccount:
		writeJSON(w, http.StatusConflict, errorResponse{Error: auth.ErrDuplicateAccount.Error(), Kind: kind})
	default:
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: auth.ErrServiceUnavailable.Error(), Kind: auth.KindServiceUnavailable})
	}
}

// decodeBody reads a JSON body into dst and validates it, answering the
// request itself when either step fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v *Validator, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}

	if fields := v.Struct(dst); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: fields})
		return false
	}

	return true
}
