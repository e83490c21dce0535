package models

import "time"

// StationLog is one station inspection reported by a field agent.
type StationLog struct {
	ID            int64         `json:"-"`
	VisitID       string        `json:"visitId,omitempty"`
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

// Visit represents a row in visits table.
type Visit struct {
	VisitID       string        `json:"visitId"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime"`
	Duration      time.Duration `json:"duration"`
	CustomerID    string        `json:"customerId"`
	TechnicianID  string        `json:"technicianId"`
	AppointmentID string        `json:"appointmentId,omitempty"`
	WorkType      string        `json:"workType"`
	StationCount  int           `json:"stationCount,omitempty"`
	CreatedAt     time.Time     `json:"createdAt,omitempty"`
}
