package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldservice/backend/services/visit-service/internal/events"
	"fieldservice/backend/services/visit-service/internal/models"
)

type memoryCustomers struct {
	byID map[string]models.Customer
}

func (m *memoryCustomers) List(context.Context) ([]models.Customer, error) {
	out := make([]models.Customer, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, nil
}

func (m *memoryCustomers) Update(_ context.Context, c models.Customer) (models.Customer, error) {
	if _, ok := m.byID[c.ID]; !ok {
		return models.Customer{}, errors.New("customer not found")
	}
	m.byID[c.ID] = c
	return c, nil
}

type memoryLogs struct {
	stored []models.StationLog
}

func (m *memoryLogs) Insert(_ context.Context, l *models.StationLog) error {
	m.stored = append(m.stored, *l)
	return nil
}

type memoryVisits struct {
	visits map[string]models.Visit
	logs   map[string][]models.StationLog
	saves  int
	err    error
}

func newMemoryVisits() *memoryVisits {
	return &memoryVisits{visits: map[string]models.Visit{}, logs: map[string][]models.StationLog{}}
}

func (m *memoryVisits) Save(_ context.Context, v models.Visit, logs []models.StationLog) (bool, int, error) {
	m.saves++
	if m.err != nil {
		return false, 0, m.err
	}
	if existing, ok := m.visits[v.VisitID]; ok {
		return false, existing.StationCount, nil
	}
	v.StationCount = len(logs)
	m.visits[v.VisitID] = v
	m.logs[v.VisitID] = logs
	return true, len(logs), nil
}

func (m *memoryVisits) Get(_ context.Context, id string) (models.Visit, error) {
	v, ok := m.visits[id]
	if !ok {
		return models.Visit{}, errors.New("visit not found")
	}
	return v, nil
}

type memoryMarker struct {
	marks map[string]int
}

func (m *memoryMarker) Mark(_ context.Context, id string, count int) error {
	m.marks[id] = count
	return nil
}

func (m *memoryMarker) Lookup(_ context.Context, id string) (int, bool, error) {
	c, ok := m.marks[id]
	return c, ok, nil
}

type recordingPublisher struct {
	events []events.VisitCompleted
	err    error
}

func (r *recordingPublisher) PublishVisitCompleted(_ context.Context, evt events.VisitCompleted) error {
	r.events = append(r.events, evt)
	return r.err
}

type fixture struct {
	svc       *VisitService
	customers *memoryCustomers
	logs      *memoryLogs
	visits    *memoryVisits
	marker    *memoryMarker
	publisher *recordingPublisher
}

func newFixture() *fixture {
	f := &fixture{
		customers: &memoryCustomers{byID: map[string]models.Customer{"cust-1": {ID: "cust-1", Name: "Bakery"}}},
		logs:      &memoryLogs{},
		visits:    newMemoryVisits(),
		marker:    &memoryMarker{marks: map[string]int{}},
		publisher: &recordingPublisher{},
	}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.svc = NewVisitService(Deps{
		Customers: f.customers,
		Logs:      f.logs,
		Visits:    f.visits,
		Marker:    f.marker,
		Publisher: f.publisher,
		Now:       func() time.Time { return now },
	})
	return f
}

func sampleVisit() models.Visit {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return models.Visit{
		VisitID:    "visit-1",
		StartTime:  start,
		EndTime:    start.Add(20 * time.Second),
		Duration:   20 * time.Second,
		CustomerID: "cust-1",
		WorkType:   WorkTypeManual,
	}
}

func sampleLogs() []models.StationLog {
	return []models.StationLog{
		{StationID: 1, CustomerID: "cust-1"},
		{StationID: 2, CustomerID: "cust-1"},
	}
}

func TestLogCompleteVisitStoresAndPublishes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	count, err := f.svc.LogCompleteVisit(ctx, "tech-1", sampleVisit(), sampleLogs())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stored := f.visits.visits["visit-1"]
	assert.Equal(t, "tech-1", stored.TechnicianID)
	logs := f.visits.logs["visit-1"]
	require.Len(t, logs, 2)
	assert.Equal(t, []int{1, 2}, []int{logs[0].StationID, logs[1].StationID})
	assert.Equal(t, "tech-1", logs[1].TechnicianID)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "visit-1", f.publisher.events[0].VisitID)
	assert.Equal(t, 2, f.publisher.events[0].StationCount)
	assert.Equal(t, 2, f.marker.marks["visit-1"])
}

func TestLogCompleteVisitReplayIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.LogCompleteVisit(ctx, "tech-1", sampleVisit(), sampleLogs())
	require.NoError(t, err)

	count, err := f.svc.LogCompleteVisit(ctx, "tech-1", sampleVisit(), sampleLogs())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, f.visits.saves, "marker short-circuits the replay")
	assert.Len(t, f.publisher.events, 1)

	// Without the marker the database conflict still keeps it idempotent.
	delete(f.marker.marks, "visit-1")
	count, err = f.svc.LogCompleteVisit(ctx, "tech-1", sampleVisit(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, f.publisher.events, 1)
}

func TestLogCompleteVisitAcceptsEmptyVisit(t *testing.T) {
	f := newFixture()
	count, err := f.svc.LogCompleteVisit(context.Background(), "tech-1", sampleVisit(), nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLogCompleteVisitValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	noID := sampleVisit()
	noID.VisitID = ""
	_, err := f.svc.LogCompleteVisit(ctx, "tech-1", noID, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	scheduled := sampleVisit()
	scheduled.WorkType = WorkTypeScheduled
	_, err = f.svc.LogCompleteVisit(ctx, "tech-1", scheduled, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	backwards := sampleVisit()
	backwards.EndTime = backwards.StartTime.Add(-time.Second)
	_, err = f.svc.LogCompleteVisit(ctx, "tech-1", backwards, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	badLog := []models.StationLog{{StationID: 0, CustomerID: "cust-1"}}
	_, err = f.svc.LogCompleteVisit(ctx, "tech-1", sampleVisit(), badLog)
	assert.ErrorIs(t, err, ErrInvalidInput)

	other := sampleVisit()
	other.TechnicianID = "tech-2"
	_, err = f.svc.LogCompleteVisit(ctx, "tech-1", other, nil)
	assert.ErrorIs(t, err, ErrTechnicianMismatch)

	assert.Zero(t, f.visits.saves)
}

func TestLogCompleteVisitStorageFailureIsReturned(t *testing.T) {
	f := newFixture()
	f.visits.err = errors.New("db down")

	_, err := f.svc.LogCompleteVisit(context.Background(), "tech-1", sampleVisit(), sampleLogs())
	assert.EqualError(t, err, "db down")
	assert.Empty(t, f.marker.marks)
	assert.Empty(t, f.publisher.events)
}

func TestPublishFailureDoesNotFailVisit(t *testing.T) {
	f := newFixture()
	f.publisher.err = errors.New("broker down")

	count, err := f.svc.LogCompleteVisit(context.Background(), "tech-1", sampleVisit(), sampleLogs())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLogBaitStation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	err := f.svc.LogBaitStation(ctx, "tech-1", models.StationLog{StationID: 4, CustomerID: "cust-1", VisitID: "ignored"})
	require.NoError(t, err)
	require.Len(t, f.logs.stored, 1)
	assert.Equal(t, "tech-1", f.logs.stored[0].TechnicianID)
	assert.Empty(t, f.logs.stored[0].VisitID)

	err = f.svc.LogBaitStation(ctx, "", models.StationLog{StationID: 4, CustomerID: "cust-1"})
	assert.ErrorIs(t, err, ErrInvalidInput, "technician is required without a token")
}

func TestUpdateCustomerValidatesMaps(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	valid := models.Customer{Name: "Bakery", Maps: []models.Map{{
		ID:       "ground",
		Stations: []models.Station{{ID: 1, X: 0, Y: 1}, {ID: 2, X: 0.5, Y: 0.5}},
	}}}
	updated, err := f.svc.UpdateCustomer(ctx, "cust-1", valid)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", updated.ID)
	assert.Len(t, f.customers.byID["cust-1"].Maps[0].Stations, 2)

	cases := map[string]models.Customer{
		"id mismatch":     {ID: "cust-2", Name: "Bakery"},
		"missing name":    {Name: " "},
		"duplicate map":   {Name: "Bakery", Maps: []models.Map{{ID: "a"}, {ID: "a"}}},
		"duplicate st":    {Name: "Bakery", Maps: []models.Map{{ID: "a", Stations: []models.Station{{ID: 1}, {ID: 1}}}}},
		"out of range":    {Name: "Bakery", Maps: []models.Map{{ID: "a", Stations: []models.Station{{ID: 1, X: 1.2}}}}},
		"negative":        {Name: "Bakery", Maps: []models.Map{{ID: "a", Stations: []models.Station{{ID: 1, Y: -0.1}}}}},
		"not a number":    {Name: "Bakery", Maps: []models.Map{{ID: "a", Stations: []models.Station{{ID: 1, X: math.NaN()}}}}},
		"zero station id": {Name: "Bakery", Maps: []models.Map{{ID: "a", Stations: []models.Station{{ID: 0}}}}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.UpdateCustomer(ctx, "cust-1", c)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}
