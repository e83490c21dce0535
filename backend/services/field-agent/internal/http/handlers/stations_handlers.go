package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"fieldservice/backend/services/field-agent/internal/stations"
	"fieldservice/backend/services/field-agent/internal/workspace"
)

type addStationRequest struct {
	X                  float64 `json:"x"`
	Y                  float64 `json:"y"`
	ReferenceDimension float64 `json:"referenceDimension"`
}

type repositionRequest struct {
	X                  float64 `json:"x"`
	Y                  float64 `json:"y"`
	ReferenceDimension float64 `json:"referenceDimension"`
	OffsetX            float64 `json:"offsetX"`
	OffsetY            float64 `json:"offsetY"`
}

// NewAddStationHandler returns POST /stations handler. Taps that cannot be
// placed are answered with 422 and leave the layout unchanged.
func NewAddStationHandler(ws *workspace.Workspace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addStationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "invalid body")
			return
		}
		station, ok, err := ws.AddStation(req.X, req.Y, req.ReferenceDimension)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "not_placed", "station could not be placed")
			return
		}
		writeJSON(w, http.StatusCreated, station)
	}
}

// NewRemoveStationHandler returns DELETE /stations/{id} handler. Removing an
// id that is not on the map is a no-op and still answers 204.
func NewRemoveStationHandler(ws *workspace.Workspace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "invalid station id")
			return
		}
		if _, err := ws.RemoveStation(id); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// NewRepositionStationHandler returns PUT /stations/{id}/position handler.
// An unusable reference dimension is answered with 422; an unknown id moves
// nothing and answers 204.
func NewRepositionStationHandler(ws *workspace.Workspace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "invalid station id")
			return
		}
		var req repositionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "invalid body")
			return
		}
		station, moved, err := ws.RepositionStation(id, req.X, req.Y, req.ReferenceDimension, req.OffsetX, req.OffsetY)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if !moved {
			if !stations.UsableDimension(req.ReferenceDimension) {
				writeError(w, http.StatusUnprocessableEntity, "not_placed", "reference dimension must be positive and finite")
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, station)
	}
}

// NewCommitStationsHandler returns POST /stations/commit handler.
func NewCommitStationsHandler(ws *workspace.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customer, err := ws.CommitStations(r.Context())
		if err != nil {
			logger.Warn("commit stations failed", zap.Error(err))
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"customer": customer,
		})
	}
}
