package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"fieldservice/backend/services/visit-service/internal/http/middleware"
	"fieldservice/backend/services/visit-service/internal/models"
	"fieldservice/backend/services/visit-service/internal/repository"
	"fieldservice/backend/services/visit-service/internal/service"
)

// VisitAPI is the service surface used by the handlers.
type VisitAPI interface {
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	UpdateCustomer(ctx context.Context, customerID string, customer models.Customer) (models.Customer, error)
	LogBaitStation(ctx context.Context, technicianID string, log models.StationLog) error
	LogCompleteVisit(ctx context.Context, technicianID string, visit models.Visit, logs []models.StationLog) (int, error)
	GetVisit(ctx context.Context, visitID string) (models.Visit, error)
}

// VisitHandlers serves the field agent gateway endpoints.
type VisitHandlers struct {
	svc    VisitAPI
	logger *zap.Logger
}

// NewVisitHandlers returns handler.
func NewVisitHandlers(svc VisitAPI, logger *zap.Logger) *VisitHandlers {
	return &VisitHandlers{svc: svc, logger: logger}
}

type completeVisitRequest struct {
	Visit    *models.Visit       `json:"visit"`
	Stations []models.StationLog `json:"stations"`
}

// Customers handles GET /customers. The body is a bare array.
func (h *VisitHandlers) Customers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.svc.ListCustomers(r.Context())
	if err != nil {
		h.logger.Error("list customers failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch customers")
		return
	}
	if customers == nil {
		customers = []models.Customer{}
	}
	writeJSON(w, http.StatusOK, customers)
}

// UpdateCustomer handles PUT /customers/{id}.
func (h *VisitHandlers) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var customer models.Customer
	if err := json.NewDecoder(r.Body).Decode(&customer); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	updated, err := h.svc.UpdateCustomer(r.Context(), r.PathValue("id"), customer)
	if err != nil {
		h.fail(w, "update customer", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Customer: updated})
}

// LogStation handles POST /stations/logs.
func (h *VisitHandlers) LogStation(w http.ResponseWriter, r *http.Request) {
	var log models.StationLog
	if err := json.NewDecoder(r.Body).Decode(&log); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	technician, _ := middleware.TechnicianIDFromContext(r.Context())
	if err := h.svc.LogBaitStation(r.Context(), technician, log); err != nil {
		h.fail(w, "log station", err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true})
}

// CompleteVisit handles POST /visits.
func (h *VisitHandlers) CompleteVisit(w http.ResponseWriter, r *http.Request) {
	var req completeVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Visit == nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	technician, _ := middleware.TechnicianIDFromContext(r.Context())
	count, err := h.svc.LogCompleteVisit(r.Context(), technician, *req.Visit, req.Stations)
	if err != nil {
		h.fail(w, "complete visit", err, zap.String("visit_id", req.Visit.VisitID))
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, StationCount: &count})
}

// GetVisit handles GET /visits/{id}.
func (h *VisitHandlers) GetVisit(w http.ResponseWriter, r *http.Request) {
	visit, err := h.svc.GetVisit(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "get visit", err)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

func (h *VisitHandlers) fail(w http.ResponseWriter, action string, err error, fields ...zap.Field) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrTechnicianMismatch):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, repository.ErrCustomerNotFound), errors.Is(err, repository.ErrVisitNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error(action+" failed", append(fields, zap.Error(err))...)
		writeError(w, http.StatusInternalServerError, action+" failed")
	}
}

// NewHealthHandler returns GET /health handler.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
