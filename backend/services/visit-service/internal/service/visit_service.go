package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"fieldservice/backend/libs/logging"
	"fieldservice/backend/services/visit-service/internal/events"
	"fieldservice/backend/services/visit-service/internal/models"
)

// Work types accepted on a visit.
const (
	WorkTypeScheduled = "Scheduled Appointment"
	WorkTypeManual    = "Manual Visit"
)

var (
	// ErrInvalidInput wraps every validation failure.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTechnicianMismatch is returned when the payload names a technician
	// other than the authenticated one.
	ErrTechnicianMismatch = errors.New("technician does not match token")
)

// CustomerStore persists customers.
type CustomerStore interface {
	List(ctx context.Context) ([]models.Customer, error)
	Update(ctx context.Context, customer models.Customer) (models.Customer, error)
}

// StationLogStore persists single station logs.
type StationLogStore interface {
	Insert(ctx context.Context, log *models.StationLog) error
}

// VisitStore persists completed visits atomically with their logs.
type VisitStore interface {
	Save(ctx context.Context, visit models.Visit, logs []models.StationLog) (inserted bool, stationCount int, err error)
	Get(ctx context.Context, visitID string) (models.Visit, error)
}

// SubmittedMarker caches accepted visit ids.
type SubmittedMarker interface {
	Mark(ctx context.Context, visitID string, stationCount int) error
	Lookup(ctx context.Context, visitID string) (int, bool, error)
}

// EventPublisher announces stored visits.
type EventPublisher interface {
	PublishVisitCompleted(ctx context.Context, evt events.VisitCompleted) error
}

// Deps groups VisitService collaborators. Marker and Publisher are optional.
type Deps struct {
	Customers CustomerStore
	Logs      StationLogStore
	Visits    VisitStore
	Marker    SubmittedMarker
	Publisher EventPublisher
	Logger    *zap.Logger
	Now       func() time.Time
}

// VisitService implements the backend side of the field agent gateway.
type VisitService struct {
	customers CustomerStore
	logs      StationLogStore
	visits    VisitStore
	marker    SubmittedMarker
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewVisitService builds service.
func NewVisitService(deps Deps) *VisitService {
	s := &VisitService{
		customers: deps.Customers,
		logs:      deps.Logs,
		visits:    deps.Visits,
		marker:    deps.Marker,
		publisher: deps.Publisher,
		logger:    logging.OrNop(deps.Logger),
		now:       deps.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ListCustomers returns all customers with their maps.
func (s *VisitService) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	return s.customers.List(ctx)
}

// UpdateCustomer validates and stores a customer with its maps.
func (s *VisitService) UpdateCustomer(ctx context.Context, customerID string, customer models.Customer) (models.Customer, error) {
	if customer.ID == "" {
		customer.ID = customerID
	}
	if customer.ID != customerID {
		return models.Customer{}, fmt.Errorf("%w: body id %q does not match path id %q", ErrInvalidInput, customer.ID, customerID)
	}
	if strings.TrimSpace(customer.Name) == "" {
		return models.Customer{}, fmt.Errorf("%w: customer name is required", ErrInvalidInput)
	}
	if err := ValidateMaps(customer.Maps); err != nil {
		return models.Customer{}, err
	}

	updated, err := s.customers.Update(ctx, customer)
	if err != nil {
		return models.Customer{}, err
	}
	s.logger.Info("customer maps updated", zap.String("customer_id", updated.ID), zap.Int("maps", len(updated.Maps)))
	return updated, nil
}

// LogBaitStation stores one station log reported during a running visit.
func (s *VisitService) LogBaitStation(ctx context.Context, technicianID string, log models.StationLog) error {
	if err := s.bindTechnician(technicianID, &log.TechnicianID); err != nil {
		return err
	}
	if err := validateLog(log); err != nil {
		return err
	}
	log.VisitID = ""
	if err := s.logs.Insert(ctx, &log); err != nil {
		return err
	}
	s.logger.Debug("station log stored", zap.Int("station_id", log.StationID), zap.String("customer_id", log.CustomerID))
	return nil
}

// LogCompleteVisit stores a visit with all its station logs and returns the
// stored station count. Submitting the same visit id again is a no-op that
// reports the count stored the first time.
func (s *VisitService) LogCompleteVisit(ctx context.Context, technicianID string, visit models.Visit, logs []models.StationLog) (int, error) {
	if err := s.bindTechnician(technicianID, &visit.TechnicianID); err != nil {
		return 0, err
	}
	if err := validateVisit(visit); err != nil {
		return 0, err
	}
	for i := range logs {
		if err := s.bindTechnician(technicianID, &logs[i].TechnicianID); err != nil {
			return 0, err
		}
		if err := validateLog(logs[i]); err != nil {
			return 0, fmt.Errorf("station %d: %w", i, err)
		}
	}

	if s.marker != nil {
		count, ok, err := s.marker.Lookup(ctx, visit.VisitID)
		if err != nil {
			s.logger.Warn("submitted marker lookup failed", zap.String("visit_id", visit.VisitID), zap.Error(err))
		} else if ok {
			s.logger.Info("duplicate visit submission short-circuited", zap.String("visit_id", visit.VisitID))
			return count, nil
		}
	}

	inserted, count, err := s.visits.Save(ctx, visit, logs)
	if err != nil {
		return 0, err
	}

	if s.marker != nil {
		if err := s.marker.Mark(ctx, visit.VisitID, count); err != nil {
			s.logger.Warn("failed to mark visit submitted", zap.String("visit_id", visit.VisitID), zap.Error(err))
		}
	}

	if !inserted {
		s.logger.Info("visit already stored", zap.String("visit_id", visit.VisitID), zap.Int("station_count", count))
		return count, nil
	}

	s.logger.Info("visit stored",
		zap.String("visit_id", visit.VisitID),
		zap.String("customer_id", visit.CustomerID),
		zap.Duration("duration", visit.Duration),
		zap.Int("station_count", count),
	)
	s.publish(ctx, visit, count)
	return count, nil
}

// GetVisit returns a stored visit.
func (s *VisitService) GetVisit(ctx context.Context, visitID string) (models.Visit, error) {
	return s.visits.Get(ctx, visitID)
}

func (s *VisitService) publish(ctx context.Context, visit models.Visit, count int) {
	if s.publisher == nil {
		return
	}
	evt := events.VisitCompleted{
		VisitID:       visit.VisitID,
		CustomerID:    visit.CustomerID,
		TechnicianID:  visit.TechnicianID,
		AppointmentID: visit.AppointmentID,
		WorkType:      visit.WorkType,
		Duration:      visit.Duration,
		StationCount:  count,
		CompletedAt:   s.now().UTC(),
	}
	if err := s.publisher.PublishVisitCompleted(ctx, evt); err != nil {
		s.logger.Warn("failed to publish visit completed", zap.String("visit_id", visit.VisitID), zap.Error(err))
	}
}

// bindTechnician fills field from the token, or rejects a different
// technician. An empty token technician leaves the payload as is.
func (s *VisitService) bindTechnician(fromToken string, field *string) error {
	if fromToken == "" {
		return nil
	}
	if *field == "" {
		*field = fromToken
		return nil
	}
	if *field != fromToken {
		return ErrTechnicianMismatch
	}
	return nil
}

// ValidateMaps checks that map ids are unique, that station ids are positive
// and unique per map, and that every coordinate lies in [0,1].
func ValidateMaps(maps []models.Map) error {
	mapIDs := make(map[string]struct{}, len(maps))
	for _, m := range maps {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("%w: map id is required", ErrInvalidInput)
		}
		if _, dup := mapIDs[m.ID]; dup {
			return fmt.Errorf("%w: duplicate map id %q", ErrInvalidInput, m.ID)
		}
		mapIDs[m.ID] = struct{}{}

		stationIDs := make(map[int]struct{}, len(m.Stations))
		for _, st := range m.Stations {
			if st.ID <= 0 {
				return fmt.Errorf("%w: map %q: station id must be positive", ErrInvalidInput, m.ID)
			}
			if _, dup := stationIDs[st.ID]; dup {
				return fmt.Errorf("%w: map %q: duplicate station id %d", ErrInvalidInput, m.ID, st.ID)
			}
			stationIDs[st.ID] = struct{}{}
			if !unitInterval(st.X) || !unitInterval(st.Y) {
				return fmt.Errorf("%w: map %q: station %d outside [0,1]", ErrInvalidInput, m.ID, st.ID)
			}
		}
	}
	return nil
}

func unitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func validateVisit(v models.Visit) error {
	switch {
	case strings.TrimSpace(v.VisitID) == "":
		return fmt.Errorf("%w: visitId is required", ErrInvalidInput)
	case v.CustomerID == "":
		return fmt.Errorf("%w: customerId is required", ErrInvalidInput)
	case v.TechnicianID == "":
		return fmt.Errorf("%w: technicianId is required", ErrInvalidInput)
	case v.Duration < 0 || v.EndTime.Before(v.StartTime):
		return fmt.Errorf("%w: visit ends before it starts", ErrInvalidInput)
	case v.WorkType != WorkTypeScheduled && v.WorkType != WorkTypeManual:
		return fmt.Errorf("%w: unknown work type %q", ErrInvalidInput, v.WorkType)
	case v.WorkType == WorkTypeScheduled && v.AppointmentID == "":
		return fmt.Errorf("%w: scheduled visit without appointmentId", ErrInvalidInput)
	}
	return nil
}

func validateLog(l models.StationLog) error {
	switch {
	case l.StationID <= 0:
		return fmt.Errorf("%w: stationId must be positive", ErrInvalidInput)
	case l.CustomerID == "":
		return fmt.Errorf("%w: customerId is required", ErrInvalidInput)
	case l.TechnicianID == "":
		return fmt.Errorf("%w: technicianId is required", ErrInvalidInput)
	}
	return nil
}
