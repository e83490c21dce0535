package repository

import (
	"context"
	"database/sql"
	"errors"

	"fieldservice/backend/libs/db"
	"fieldservice/backend/services/visit-service/internal/models"
)

// ErrVisitNotFound indicates missing visit id.
var ErrVisitNotFound = errors.New("visit not found")

// VisitRepository handles persistence of completed visits.
type VisitRepository struct {
	db   *sql.DB
	logs *StationLogRepository
}

// NewVisitRepository returns repository.
func NewVisitRepository(db *sql.DB, logs *StationLogRepository) *VisitRepository {
	return &VisitRepository{db: db, logs: logs}
}

// Save stores the visit and its station logs in one transaction. A visit id
// that already exists is left untouched and reported with inserted=false
// together with the station count stored the first time.
func (r *VisitRepository) Save(ctx context.Context, visit models.Visit, logs []models.StationLog) (inserted bool, stationCount int, err error) {
	const insertVisit = `
		INSERT INTO visits (
			visit_id, customer_id, technician_id, appointment_id, work_type,
			start_time, end_time, duration_ms, station_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (visit_id) DO NOTHING
	`
	err = db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, insertVisit,
			visit.VisitID,
			visit.CustomerID,
			visit.TechnicianID,
			visit.AppointmentID,
			visit.WorkType,
			visit.StartTime.UTC(),
			visit.EndTime.UTC(),
			visit.Duration.Milliseconds(),
			len(logs),
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return tx.QueryRowContext(ctx, `SELECT station_count FROM visits WHERE visit_id = $1`, visit.VisitID).
				Scan(&stationCount)
		}
		inserted = true
		stationCount = len(logs)
		return r.logs.InsertBatch(ctx, tx, visit.VisitID, logs)
	})
	if err != nil {
		return false, 0, err
	}
	return inserted, stationCount, nil
}

// Get returns a stored visit.
func (r *VisitRepository) Get(ctx context.Context, visitID string) (models.Visit, error) {
	const query = `
		SELECT visit_id, customer_id, technician_id, appointment_id, work_type,
		       start_time, end_time, duration_ms, station_count, created_at
		FROM visits
		WHERE visit_id = $1
	`
	var (
		v  models.Visit
		ms int64
	)
	err := r.db.QueryRowContext(ctx, query, visitID).Scan(
		&v.VisitID,
		&v.CustomerID,
		&v.TechnicianID,
		&v.AppointmentID,
		&v.WorkType,
		&v.StartTime,
		&v.EndTime,
		&ms,
		&v.StationCount,
		&v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Visit{}, ErrVisitNotFound
	}
	if err != nil {
		return models.Visit{}, err
	}
	v.Duration = durationFromMillis(ms)
	return v, nil
}
