package session

import (
	"context"

	"fieldservice/backend/services/field-agent/internal/models"
)

// PendingVisit is a finished visit that has not been accepted by the backend.
type PendingVisit struct {
	Summary models.VisitSummary      `json:"summary"`
	Entries []models.StationLogEntry `json:"entries"`
	MapID   string                   `json:"mapId,omitempty"`
}

// PendingStore keeps at most one unsubmitted visit across process restarts.
// Load reports false when nothing is stored. Delete removes the stored visit
// only when it carries visitID, so a late delete for an older visit never
// drops a newer one.
type PendingStore interface {
	Save(ctx context.Context, visit PendingVisit) error
	Load(ctx context.Context) (PendingVisit, bool, error)
	Delete(ctx context.Context, visitID string) error
}
