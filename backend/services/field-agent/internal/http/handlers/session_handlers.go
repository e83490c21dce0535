package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"fieldservice/backend/services/field-agent/internal/models"
	"fieldservice/backend/services/field-agent/internal/session"
	"fieldservice/backend/services/field-agent/internal/workspace"
)

type startRequest struct {
	TechnicianID string              `json:"technicianId"`
	Appointment  *models.Appointment `json:"appointment"`
}

type submitRequest struct {
	ConfirmEmpty bool `json:"confirmEmpty"`
}

type stationLogResponse struct {
	Entry     models.StationLogEntry `json:"entry"`
	SyncError string                 `json:"syncError,omitempty"`
}

// NewStartSessionHandler returns POST /session/start handler. The device's
// technician is used unless the request names one.
func NewStartSessionHandler(ws *workspace.Workspace, defaultTechnician string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "invalid body")
			return
		}
		technician := req.TechnicianID
		if technician == "" {
			technician = defaultTechnician
		}
		snap, err := ws.StartSession(technician, req.Appointment)
		if err != nil {
			logger.Info("start session rejected", zap.Error(err))
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// NewLogStationHandler returns POST /session/logs handler. A failed upload
// of a single entry is reported next to the recorded entry.
func NewLogStationHandler(ws *workspace.Workspace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in session.StationLogInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "invalid body")
			return
		}
		entry, err := ws.LogStation(r.Context(), in)
		if err != nil && !errors.Is(err, session.ErrStationSync) {
			writeEngineError(w, err)
			return
		}
		resp := stationLogResponse{Entry: entry}
		if err != nil {
			resp.SyncError = err.Error()
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

// NewFinishSessionHandler returns POST /session/finish handler.
func NewFinishSessionHandler(ws *workspace.Workspace, logger *zap.Logger) http.HandlerFunc {
	return submitHandler(logger, "finish", ws.FinishSession)
}

// NewSubmitSessionHandler returns POST /session/submit handler.
func NewSubmitSessionHandler(ws *workspace.Workspace, logger *zap.Logger) http.HandlerFunc {
	return submitHandler(logger, "submit", ws.SubmitSession)
}

// NewCancelSessionHandler returns POST /session/cancel handler.
func NewCancelSessionHandler(ws *workspace.Workspace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cancelled := ws.CancelSession(r.Context())
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
	}
}

type submitFunc func(ctx context.Context, opts session.SubmitOptions) (session.Result, error)

func submitHandler(logger *zap.Logger, action string, submit submitFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "invalid body")
			return
		}
		res, err := submit(r.Context(), session.SubmitOptions{ConfirmEmpty: req.ConfirmEmpty})
		if errors.Is(err, session.ErrConfirmationRequired) {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"code":    "confirmation_required",
				"error":   err.Error(),
				"summary": res.Summary,
			})
			return
		}
		if err != nil {
			logger.Warn("visit "+action+" failed", zap.String("visit_id", res.Summary.VisitID), zap.Error(err))
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
