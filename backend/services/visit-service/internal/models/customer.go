package models

import "time"

// Station is a bait point with coordinates normalized to [0,1].
type Station struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Map is a floor plan with its stations. Maps are stored as a JSON document
// on the owning customer row.
type Map struct {
	ID               string    `json:"mapId"`
	Name             string    `json:"name"`
	Image            string    `json:"image"`
	CoordinateScheme string    `json:"coordinateScheme,omitempty"`
	Stations         []Station `json:"stations"`
}

// Customer represents a row in customers table.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Maps      []Map     `json:"maps"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
