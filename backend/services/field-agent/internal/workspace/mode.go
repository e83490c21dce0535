package workspace

import "time"

// Mode is what the technician screen is doing. Exactly one mode holds at a
// time, so layout editing and session logging cannot overlap.
type Mode interface {
	Name() string
	isMode()
}

// Viewing is the resting mode: a map may be shown but nothing is changing.
type Viewing struct{}

// Editing allows station layout changes on one map.
type Editing struct {
	MapID string
}

// LoggingSession allows station logging inside a running work session.
type LoggingSession struct {
	Session SessionHandle
}

// SessionHandle identifies the session a LoggingSession mode belongs to.
type SessionHandle struct {
	CustomerID string    `json:"customerId"`
	MapID      string    `json:"mapId"`
	StartedAt  time.Time `json:"startedAt"`
}

func (Viewing) Name() string        { return "viewing" }
func (Editing) Name() string        { return "editing" }
func (LoggingSession) Name() string { return "logging" }

func (Viewing) isMode()        {}
func (Editing) isMode()        {}
func (LoggingSession) isMode() {}
