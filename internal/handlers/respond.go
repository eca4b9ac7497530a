package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fondfamilial/backend/internal/models"
	"github.com/fondfamilial/backend/internal/services"
)

const maxBodyBytes = 1_048_576

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendDomainError maps a domain error to its HTTP status and stable code.
// Unknown errors become an opaque 500 so storage details never leak.
func sendDomainError(w http.ResponseWriter, err error) {
	code := models.ErrorCode(err)
	if code == "" {
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}

	status := http.StatusBadRequest
	switch {
	case errors.Is(err, models.ErrUnknownMember),
		errors.Is(err, models.ErrCreditNotFound),
		errors.Is(err, models.ErrMovementNotFound),
		errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrNoCassationYet):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrExcessRepayment),
		errors.Is(err, models.ErrSessionAlreadyActive),
		errors.Is(err, models.ErrSessionNotActive),
		errors.Is(err, models.ErrCannotDeleteActiveSession),
		errors.Is(err, models.ErrCassationAlreadyApplied),
		errors.Is(err, models.ErrNothingToDistribute),
		errors.Is(err, models.ErrMovementFrozen):
		status = http.StatusConflict
	}

	writeJSON(w, status, services.ErrorResponse{Error: err.Error(), Code: code})
}

// decodeBody enforces the request body discipline shared by every write
// endpoint: bounded size, unknown fields rejected, exactly one JSON object.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}
