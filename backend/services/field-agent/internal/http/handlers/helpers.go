package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"fieldservice/backend/services/field-agent/internal/session"
	"fieldservice/backend/services/field-agent/internal/stations"
	"fieldservice/backend/services/field-agent/internal/workspace"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func pathID(r *http.Request) (int, error) {
	return strconv.Atoi(r.PathValue("id"))
}

// writeEngineError maps engine errors to HTTP statuses. Anything unknown is
// treated as a backend failure.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrConfirmationRequired):
		writeError(w, http.StatusConflict, "confirmation_required", err.Error())
	case errors.Is(err, workspace.ErrModeConflict),
		errors.Is(err, session.ErrNotActive),
		errors.Is(err, session.ErrNothingToSubmit),
		errors.Is(err, session.ErrPendingSubmission),
		errors.Is(err, session.ErrSubmissionInFlight),
		errors.Is(err, session.ErrSessionCancelled):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, workspace.ErrNoMapSelected),
		errors.Is(err, stations.ErrNoMap),
		errors.Is(err, session.ErrMissingContext):
		writeError(w, http.StatusBadRequest, "missing_context", err.Error())
	case errors.Is(err, workspace.ErrUnknownCustomer),
		errors.Is(err, workspace.ErrUnknownMap),
		errors.Is(err, workspace.ErrUnknownStation):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		writeError(w, http.StatusBadGateway, "backend_failure", err.Error())
	}
}
