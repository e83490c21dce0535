package models

import "time"

// CoordinateSchemeV1 marks station coordinates where both x and y are
// fractions of the rendered image width.
const CoordinateSchemeV1 = "v1"

// Work types recorded on a visit summary.
const (
	WorkTypeScheduled = "Scheduled Appointment"
	WorkTypeManual    = "Manual Visit"
)

// Station is a bait point on a floor plan. X and Y are normalized to [0,1].
type Station struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Map is a floor-plan image with the stations placed on it.
type Map struct {
	ID               string    `json:"mapId"`
	Name             string    `json:"name"`
	Image            string    `json:"image"`
	CoordinateScheme string    `json:"coordinateScheme,omitempty"`
	Stations         []Station `json:"stations"`
}

// Customer owns one or more maps.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Maps    []Map  `json:"maps"`
}

// FindMap returns the map with the given id.
func (c Customer) FindMap(mapID string) (Map, bool) {
	for _, m := range c.Maps {
		if m.ID == mapID {
			return m, true
		}
	}
	return Map{}, false
}

// Appointment is a scheduled visit a session may be started from.
type Appointment struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customerId"`
	TechnicianID string    `json:"technicianId"`
	ScheduledFor time.Time `json:"scheduledFor"`
}

// StationLogEntry is one inspection record for a single station.
type StationLogEntry struct {
	StationID     int           `json:"stationId"`
	CustomerID    string        `json:"customerId"`
	TechnicianID  string        `json:"technicianId"`
	Timestamp     time.Time     `json:"timestamp"`
	Consumption   string        `json:"consumption"`
	BaitType      string        `json:"baitType"`
	Condition     string        `json:"condition"`
	Access        string        `json:"access"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime"`
	Duration      time.Duration `json:"duration"`
	AppointmentID string        `json:"appointmentId,omitempty"`
}

// VisitSummary is the finalized record of a whole work session.
type VisitSummary struct {
	VisitID       string        `json:"visitId"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime"`
	Duration      time.Duration `json:"duration"`
	CustomerID    string        `json:"customerId"`
	TechnicianID  string        `json:"technicianId"`
	AppointmentID string        `json:"appointmentId,omitempty"`
	WorkType      string        `json:"workType"`
}

// WorkTypeFor derives the work type from the originating appointment id.
func WorkTypeFor(appointmentID string) string {
	if appointmentID != "" {
		return WorkTypeScheduled
	}
	return WorkTypeManual
}
