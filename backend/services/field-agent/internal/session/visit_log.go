package session

import "fieldservice/backend/services/field-agent/internal/models"

// VisitLog accumulates station log entries in recording order. It is not
// safe for concurrent use; the Controller guards it with its own mutex.
type VisitLog struct {
	entries []models.StationLogEntry
}

// Record appends an entry. Repeated station ids are kept as separate entries.
func (l *VisitLog) Record(entry models.StationLogEntry) {
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the accumulated entries.
func (l *VisitLog) Entries() []models.StationLogEntry {
	out := make([]models.StationLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports how many entries were recorded.
func (l *VisitLog) Len() int {
	return len(l.entries)
}

// Reset drops every entry.
func (l *VisitLog) Reset() {
	l.entries = nil
}
