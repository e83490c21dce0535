package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fieldservice/backend/services/visit-service/internal/http/handlers"
	"fieldservice/backend/services/visit-service/internal/http/middleware"
	"fieldservice/backend/services/visit-service/internal/models"
	"fieldservice/backend/services/visit-service/internal/repository"
	"fieldservice/backend/services/visit-service/internal/service"
)

const secret = "router-secret"

type stubAPI struct {
	customers     []models.Customer
	updateErr     error
	visitErr      error
	gotTechnician string
	gotVisit      models.Visit
	gotLogs       []models.StationLog
	gotCustomerID string
}

func (s *stubAPI) ListCustomers(context.Context) ([]models.Customer, error) {
	return s.customers, nil
}

func (s *stubAPI) UpdateCustomer(_ context.Context, id string, c models.Customer) (models.Customer, error) {
	s.gotCustomerID = id
	if s.updateErr != nil {
		return models.Customer{}, s.updateErr
	}
	c.ID = id
	return c, nil
}

func (s *stubAPI) LogBaitStation(_ context.Context, technician string, log models.StationLog) error {
	s.gotTechnician = technician
	s.gotLogs = append(s.gotLogs, log)
	return nil
}

func (s *stubAPI) LogCompleteVisit(_ context.Context, technician string, v models.Visit, logs []models.StationLog) (int, error) {
	s.gotTechnician = technician
	s.gotVisit = v
	s.gotLogs = logs
	if s.visitErr != nil {
		return 0, s.visitErr
	}
	return len(logs), nil
}

func (s *stubAPI) GetVisit(_ context.Context, id string) (models.Visit, error) {
	if id == s.gotVisit.VisitID {
		return s.gotVisit, nil
	}
	return models.Visit{}, repository.ErrVisitNotFound
}

func newRouter(api *stubAPI) http.Handler {
	return NewRouter(RouterDeps{
		VisitHandlers: handlers.NewVisitHandlers(api, zap.NewNop()),
		HealthHandler: handlers.NewHealthHandler(),
	}, middleware.AuthMiddleware(secret))
}

func bearer(t *testing.T, technician string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"technician_id": technician}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + token
}

func call(t *testing.T, h http.Handler, method, path, auth, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestCustomersIsPublicArray(t *testing.T) {
	api := &stubAPI{customers: []models.Customer{{ID: "cust-1", Name: "Bakery", Maps: []models.Map{{ID: "ground"}}}}}
	h := newRouter(api)

	rec, _ := call(t, h, http.MethodGet, "/customers", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var customers []models.Customer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &customers))
	assert.Equal(t, "ground", customers[0].Maps[0].ID)

	rec, _ = call(t, newRouter(&stubAPI{}), http.MethodGet, "/customers", "", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCompleteVisitRequiresToken(t *testing.T) {
	h := newRouter(&stubAPI{})
	rec, body := call(t, h, http.MethodPost, "/visits", "", `{"visit":{"visitId":"v"},"stations":[]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestCompleteVisitEnvelope(t *testing.T) {
	api := &stubAPI{}
	h := newRouter(api)

	payload := `{"visit":{"visitId":"visit-1","customerId":"cust-1","duration":20000000000,"workType":"Manual Visit"},
		"stations":[{"stationId":1,"customerId":"cust-1"},{"stationId":2,"customerId":"cust-1"}]}`
	rec, body := call(t, h, http.MethodPost, "/visits", bearer(t, "tech-1"), payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 2, body["stationCount"])
	assert.Equal(t, "tech-1", api.gotTechnician)
	assert.Equal(t, "visit-1", api.gotVisit.VisitID)
	assert.Equal(t, int64(20e9), int64(api.gotVisit.Duration))
	assert.Equal(t, []int{1, 2}, []int{api.gotLogs[0].StationID, api.gotLogs[1].StationID})

	rec, body = call(t, h, http.MethodGet, "/visits/visit-1", bearer(t, "tech-1"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cust-1", body["customerId"])

	rec, _ = call(t, h, http.MethodGet, "/visits/other", bearer(t, "tech-1"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteVisitErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{"bad json", nil, `{`, http.StatusBadRequest},
		{"missing visit", nil, `{"stations":[]}`, http.StatusBadRequest},
		{"validation", fmt.Errorf("%w: visitId is required", service.ErrInvalidInput), `{"visit":{}}`, http.StatusBadRequest},
		{"mismatch", service.ErrTechnicianMismatch, `{"visit":{}}`, http.StatusForbidden},
		{"storage", fmt.Errorf("db down"), `{"visit":{}}`, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newRouter(&stubAPI{visitErr: tc.err})
			rec, body := call(t, h, http.MethodPost, "/visits", bearer(t, "tech-1"), tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestUpdateCustomerEnvelope(t *testing.T) {
	api := &stubAPI{}
	h := newRouter(api)

	rec, body := call(t, h, http.MethodPut, "/customers/cust-1", bearer(t, "tech-1"), `{"name":"Bakery","maps":[{"mapId":"ground","stations":[{"id":1,"x":0.5,"y":0.5}]}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "cust-1", api.gotCustomerID)
	assert.Equal(t, "cust-1", body["customer"].(map[string]interface{})["id"])

	api.updateErr = repository.ErrCustomerNotFound
	rec, body = call(t, h, http.MethodPut, "/customers/cust-9", bearer(t, "tech-1"), `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, _ = call(t, h, http.MethodPost, "/customers/cust-1", bearer(t, "tech-1"), `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLogStationUsesTokenTechnician(t *testing.T) {
	api := &stubAPI{}
	h := newRouter(api)

	rec, body := call(t, h, http.MethodPost, "/stations/logs", bearer(t, "tech-5"), `{"stationId":3,"customerId":"cust-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "tech-5", api.gotTechnician)
	assert.Equal(t, 3, api.gotLogs[0].StationID)
}
