package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"fieldservice/backend/services/field-agent/internal/models"
	"fieldservice/backend/services/field-agent/internal/session"
	"fieldservice/backend/services/field-agent/internal/workspace"
)

// StateResponse describes what the device screen currently shows.
type StateResponse struct {
	Mode     string           `json:"mode"`
	Map      *models.Map      `json:"map,omitempty"`
	Stations []models.Station `json:"stations"`
	Dirty    bool             `json:"dirty"`
	Session  session.Snapshot `json:"session"`
}

// NewHealthHandler returns GET /health handler.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// NewCustomersHandler returns GET /customers handler.
func NewCustomersHandler(ws *workspace.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customers, err := ws.Customers(r.Context())
		if err != nil {
			logger.Warn("load customers failed", zap.Error(err))
			writeEngineError(w, err)
			return
		}
		if customers == nil {
			customers = []models.Customer{}
		}
		writeJSON(w, http.StatusOK, customers)
	}
}

// NewStateHandler returns GET /session handler.
func NewStateHandler(ws *workspace.Workspace) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, currentState(ws))
	}
}

type selectRequest struct {
	CustomerID string `json:"customerId"`
	MapID      string `json:"mapId"`
}

// NewSelectMapHandler returns POST /workspace/select handler.
func NewSelectMapHandler(ws *workspace.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "invalid body")
			return
		}
		if req.CustomerID == "" || req.MapID == "" {
			writeError(w, http.StatusBadRequest, "invalid_body", "customerId and mapId are required")
			return
		}
		if _, err := ws.SelectMap(r.Context(), req.CustomerID, req.MapID); err != nil {
			logger.Info("select map rejected", zap.String("customer_id", req.CustomerID), zap.String("map_id", req.MapID), zap.Error(err))
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, currentState(ws))
	}
}

// NewBeginEditHandler returns POST /workspace/edit/begin handler.
func NewBeginEditHandler(ws *workspace.Workspace) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := ws.BeginEditing(); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, currentState(ws))
	}
}

// NewEndEditHandler returns POST /workspace/edit/end handler.
func NewEndEditHandler(ws *workspace.Workspace) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		ws.EndEditing()
		writeJSON(w, http.StatusOK, currentState(ws))
	}
}

func currentState(ws *workspace.Workspace) StateResponse {
	resp := StateResponse{
		Mode:     ws.Mode().Name(),
		Stations: ws.Registry().Stations(),
		Dirty:    ws.Registry().Dirty(),
		Session:  ws.Controller().Snapshot(),
	}
	if m, ok := ws.Registry().ActiveMap(); ok {
		resp.Map = &m
	}
	if resp.Stations == nil {
		resp.Stations = []models.Station{}
	}
	return resp
}
