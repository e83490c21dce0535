package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fieldservice/backend/services/field-agent/internal/http/handlers"
	"fieldservice/backend/services/field-agent/internal/models"
	"fieldservice/backend/services/field-agent/internal/session"
	"fieldservice/backend/services/field-agent/internal/stations"
	"fieldservice/backend/services/field-agent/internal/workspace"
)

type fakeGateway struct {
	mu        sync.Mutex
	customers []models.Customer
	visitErr  error
	visits    []models.VisitSummary
	updated   []models.Customer
}

func (f *fakeGateway) GetCustomers(context.Context) ([]models.Customer, error) {
	return f.customers, nil
}

func (f *fakeGateway) UpdateCustomer(_ context.Context, _ string, c models.Customer) (models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, c)
	return c, nil
}

func (f *fakeGateway) LogBaitStation(context.Context, models.StationLogEntry) error {
	return nil
}

func (f *fakeGateway) LogCompleteVisit(_ context.Context, summary models.VisitSummary, entries []models.StationLogEntry) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visitErr != nil {
		return 0, f.visitErr
	}
	f.visits = append(f.visits, summary)
	return len(entries), nil
}

func (f *fakeGateway) setVisitErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visitErr = err
}

func newTestRouter(t *testing.T) (http.Handler, *fakeGateway) {
	t.Helper()
	gw := &fakeGateway{customers: []models.Customer{{
		ID:   "cust-1",
		Name: "Bakery",
		Maps: []models.Map{{ID: "ground", Name: "Ground floor", Stations: []models.Station{{ID: 1, X: 0.1, Y: 0.1}, {ID: 2, X: 0.9, Y: 0.4}}}},
	}}}
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	ctrl := session.NewController(gw, session.Options{
		Clock:      session.ClockFunc(func() time.Time { return start }),
		NewVisitID: func() string { return "visit-1" },
	})
	ws := workspace.New(gw, stations.NewRegistry(nil), ctrl, nil)
	logger := zap.NewNop()

	return NewRouter(Routes{
		Health:            handlers.NewHealthHandler(),
		Customers:         handlers.NewCustomersHandler(ws, logger),
		State:             handlers.NewStateHandler(ws),
		SelectMap:         handlers.NewSelectMapHandler(ws, logger),
		BeginEdit:         handlers.NewBeginEditHandler(ws),
		EndEdit:           handlers.NewEndEditHandler(ws),
		AddStation:        handlers.NewAddStationHandler(ws),
		RemoveStation:     handlers.NewRemoveStationHandler(ws),
		RepositionStation: handlers.NewRepositionStationHandler(ws),
		CommitStations:    handlers.NewCommitStationsHandler(ws, logger),
		StartSession:      handlers.NewStartSessionHandler(ws, "tech-7", logger),
		LogStation:        handlers.NewLogStationHandler(ws),
		FinishSession:     handlers.NewFinishSessionHandler(ws, logger),
		SubmitSession:     handlers.NewSubmitSessionHandler(ws, logger),
		CancelSession:     handlers.NewCancelSessionHandler(ws),
	}), gw
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthAndMethodGuard(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, _ := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestCustomersReturnsArray(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, _ := do(t, h, http.MethodGet, "/customers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var customers []models.Customer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &customers))
	require.Len(t, customers, 1)
	assert.Equal(t, "ground", customers[0].Maps[0].ID)
}

func TestStationEditingFlow(t *testing.T) {
	h, gw := newTestRouter(t)

	rec, body := do(t, h, http.MethodPost, "/workspace/select", map[string]string{"customerId": "cust-1", "mapId": "ground"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "viewing", body["mode"])

	rec, _ = do(t, h, http.MethodPost, "/stations", map[string]float64{"x": 960, "y": 960, "referenceDimension": 1920})
	assert.Equal(t, http.StatusConflict, rec.Code, "adding requires editing mode")

	rec, body = do(t, h, http.MethodPost, "/workspace/edit/begin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "editing", body["mode"])

	rec, body = do(t, h, http.MethodPost, "/stations", map[string]float64{"x": 960, "y": 960, "referenceDimension": 1920})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 3, body["id"])
	assert.EqualValues(t, 0.5, body["x"])
	assert.EqualValues(t, 0.5, body["y"])

	rec, _ = do(t, h, http.MethodPost, "/stations", map[string]float64{"x": 10, "y": 10, "referenceDimension": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, body = do(t, h, http.MethodPut, "/stations/3/position", map[string]float64{"x": 2500, "y": 100, "referenceDimension": 1000})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["x"])

	rec, _ = do(t, h, http.MethodPut, "/stations/3/position", map[string]float64{"x": 10, "y": 10, "referenceDimension": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec, _ = do(t, h, http.MethodPut, "/stations/42/position", map[string]float64{"x": 10, "y": 10, "referenceDimension": 100})
	assert.Equal(t, http.StatusNoContent, rec.Code, "moving an unknown station is a no-op")

	rec, _ = do(t, h, http.MethodDelete, "/stations/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = do(t, h, http.MethodDelete, "/stations/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, "removing an absent station is a no-op")
	rec, _ = do(t, h, http.MethodDelete, "/stations/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/stations/commit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	require.Len(t, gw.updated, 1)
	assert.Len(t, gw.updated[0].Maps[0].Stations, 2)

	rec, body = do(t, h, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["dirty"])
}

func TestSessionFlowWithRetry(t *testing.T) {
	h, gw := newTestRouter(t)

	rec, body := do(t, h, http.MethodPost, "/session/start", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_context", body["code"])

	rec, _ = do(t, h, http.MethodPost, "/workspace/select", map[string]string{"customerId": "cust-1", "mapId": "ground"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/session/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", body["state"])
	assert.Equal(t, "tech-7", body["technicianId"])

	rec, body = do(t, h, http.MethodPost, "/session/logs", map[string]interface{}{"stationId": 2, "consumption": "half", "baitType": "block", "condition": "good", "access": "clear"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, body, "syncError")

	rec, _ = do(t, h, http.MethodPost, "/session/logs", map[string]interface{}{"stationId": 99})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/workspace/edit/begin", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	gw.setVisitErr(errors.New("backend down"))
	rec, body = do(t, h, http.MethodPost, "/session/finish", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "backend_failure", body["code"])

	_, body = do(t, h, http.MethodGet, "/session", nil)
	assert.Equal(t, "logging", body["mode"])
	assert.Equal(t, "finalizing", body["session"].(map[string]interface{})["state"])

	gw.setVisitErr(nil)
	rec, body = do(t, h, http.MethodPost, "/session/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["stationCount"])
	require.Len(t, gw.visits, 1)
	assert.Equal(t, "visit-1", gw.visits[0].VisitID)

	_, body = do(t, h, http.MethodGet, "/session", nil)
	assert.Equal(t, "viewing", body["mode"])
}

func TestEmptyVisitNeedsConfirmation(t *testing.T) {
	h, gw := newTestRouter(t)
	do(t, h, http.MethodPost, "/workspace/select", map[string]string{"customerId": "cust-1", "mapId": "ground"})
	do(t, h, http.MethodPost, "/session/start", nil)

	rec, body := do(t, h, http.MethodPost, "/session/finish", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "confirmation_required", body["code"])
	assert.Empty(t, gw.visits)

	rec, body = do(t, h, http.MethodPost, "/session/finish", map[string]bool{"confirmEmpty": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["stationCount"])
	assert.Len(t, gw.visits, 1)
}

func TestCancelSession(t *testing.T) {
	h, gw := newTestRouter(t)

	_, body := do(t, h, http.MethodPost, "/session/cancel", nil)
	assert.Equal(t, false, body["cancelled"])

	do(t, h, http.MethodPost, "/workspace/select", map[string]string{"customerId": "cust-1", "mapId": "ground"})
	do(t, h, http.MethodPost, "/session/start", nil)
	do(t, h, http.MethodPost, "/session/logs", map[string]interface{}{"stationId": 1})

	_, body = do(t, h, http.MethodPost, "/session/cancel", nil)
	assert.Equal(t, true, body["cancelled"])
	assert.Empty(t, gw.visits)

	_, body = do(t, h, http.MethodGet, "/session", nil)
	assert.Equal(t, "viewing", body["mode"])
	assert.Equal(t, "idle", body["session"].(map[string]interface{})["state"])
}
