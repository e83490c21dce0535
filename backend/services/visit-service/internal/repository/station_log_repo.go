package repository

import (
	"context"
	"database/sql"
	"time"

	"fieldservice/backend/services/visit-service/internal/models"
)

// StationLogRepository handles persistence of station inspection logs.
type StationLogRepository struct {
	db *sql.DB
}

// NewStationLogRepository returns repository.
func NewStationLogRepository(db *sql.DB) *StationLogRepository {
	return &StationLogRepository{db: db}
}

const insertStationLog = `
	INSERT INTO station_logs (
		visit_id, station_id, customer_id, technician_id, logged_at,
		consumption, bait_type, condition, access,
		start_time, end_time, duration_ms, appointment_id
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING id
`

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Insert stores a single log reported while the visit is still running.
func (r *StationLogRepository) Insert(ctx context.Context, log *models.StationLog) error {
	return insertLog(ctx, r.db, log)
}

// InsertBatch stores the logs of a completed visit inside tx, keeping their
// order.
func (r *StationLogRepository) InsertBatch(ctx context.Context, tx *sql.Tx, visitID string, logs []models.StationLog) error {
	for i := range logs {
		logs[i].VisitID = visitID
		if err := insertLog(ctx, tx, &logs[i]); err != nil {
			return err
		}
	}
	return nil
}

func insertLog(ctx context.Context, q rowQuerier, log *models.StationLog) error {
	var visitID sql.NullString
	if log.VisitID != "" {
		visitID = sql.NullString{String: log.VisitID, Valid: true}
	}
	return q.QueryRowContext(ctx, insertStationLog,
		visitID,
		log.StationID,
		log.CustomerID,
		log.TechnicianID,
		log.Timestamp.UTC(),
		log.Consumption,
		log.BaitType,
		log.Condition,
		log.Access,
		log.StartTime.UTC(),
		log.EndTime.UTC(),
		log.Duration.Milliseconds(),
		log.AppointmentID,
	).Scan(&log.ID)
}

func durationFromMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
