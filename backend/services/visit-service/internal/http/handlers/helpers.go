package handlers

import (
	"encoding/json"
	"net/http"
)

// envelope is the response shape of every write endpoint.
type envelope struct {
	Success      bool        `json:"success"`
	Error        string      `json:"error,omitempty"`
	StationCount *int        `json:"stationCount,omitempty"`
	Customer     interface{} `json:"customer,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}
