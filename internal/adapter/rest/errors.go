package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/etfolio/etfolio-backend/internal/domain"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// writeDomainError maps domain errors onto the JSON error envelope. Unknown
// errors become an opaque 500 so internals never leak to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	var insufficientErr *domain.InsufficientQuantityError
	if errors.As(err, &insufficientErr) {
		writeError(w, http.StatusBadRequest, domain.CodeInsufficientQuantity, insufficientErr.Error(), map[string]any{
			"available": insufficientErr.Available.String(),
			"requested": insufficientErr.Requested.String(),
		})
		return
	}

	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		writeError(w, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
		return
	}

	writeError(w, http.StatusInternalServerError, domain.CodeInternal, "internal error", nil)
}
