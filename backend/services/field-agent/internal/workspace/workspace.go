package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"fieldservice/backend/libs/logging"
	"fieldservice/backend/services/field-agent/internal/models"
	"fieldservice/backend/services/field-agent/internal/session"
	"fieldservice/backend/services/field-agent/internal/stations"
)

var (
	// ErrModeConflict is returned when an action is not allowed in the current mode.
	ErrModeConflict = errors.New("workspace: action not allowed in current mode")
	// ErrNoMapSelected is returned when an action needs a selected map.
	ErrNoMapSelected = errors.New("workspace: no map selected")
	// ErrUnknownCustomer is returned when the customer id is not known to the backend.
	ErrUnknownCustomer = errors.New("workspace: unknown customer")
	// ErrUnknownMap is returned when the customer has no map with the given id.
	ErrUnknownMap = errors.New("workspace: unknown map")
	// ErrUnknownStation is returned when logging a station that is not on the map.
	ErrUnknownStation = errors.New("workspace: unknown station")
)

// Gateway is the backend surface used by the workspace.
type Gateway interface {
	session.Submitter
	stations.CustomerUpdater
	GetCustomers(ctx context.Context) ([]models.Customer, error)
}

// Workspace ties the station registry and the session controller of one
// technician device together and enforces the current Mode.
type Workspace struct {
	gateway    Gateway
	registry   *stations.Registry
	controller *session.Controller
	logger     *zap.Logger

	mu   sync.Mutex
	mode Mode
}

// New returns a workspace in Viewing mode.
func New(gateway Gateway, registry *stations.Registry, controller *session.Controller, logger *zap.Logger) *Workspace {
	return &Workspace{
		gateway:    gateway,
		registry:   registry,
		controller: controller,
		logger:     logging.OrNop(logger),
		mode:       Viewing{},
	}
}

// Mode returns the current mode.
func (w *Workspace) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// Registry exposes the station registry for read access.
func (w *Workspace) Registry() *stations.Registry {
	return w.registry
}

// Controller exposes the session controller for read access.
func (w *Workspace) Controller() *session.Controller {
	return w.controller
}

// Customers lists customers from the backend.
func (w *Workspace) Customers(ctx context.Context) ([]models.Customer, error) {
	customers, err := w.gateway.GetCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("workspace: load customers: %w", err)
	}
	return customers, nil
}

// SelectMap resolves the customer and map through the backend and shows the
// map. Only allowed while Viewing.
func (w *Workspace) SelectMap(ctx context.Context, customerID, mapID string) (models.Map, error) {
	if err := w.requireViewing(); err != nil {
		return models.Map{}, err
	}

	customer, m, err := w.resolve(ctx, customerID, mapID)
	if err != nil {
		return models.Map{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.mode.(Viewing); !ok {
		return models.Map{}, ErrModeConflict
	}
	w.registry.SelectMap(customer, m)
	active, _ := w.registry.ActiveMap()
	return active, nil
}

// BeginEditing switches to Editing on the selected map.
func (w *Workspace) BeginEditing() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.mode.(type) {
	case Editing:
		return nil
	case LoggingSession:
		return ErrModeConflict
	}
	m, ok := w.registry.ActiveMap()
	if !ok {
		return ErrNoMapSelected
	}
	w.mode = Editing{MapID: m.ID}
	return nil
}

// EndEditing returns to Viewing. Uncommitted edits stay in the registry.
func (w *Workspace) EndEditing() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.mode.(Editing); ok {
		w.mode = Viewing{}
	}
}

// AddStation adds a station at a tap position. Only allowed while Editing.
func (w *Workspace) AddStation(tapX, tapY, referenceDimension float64) (models.Station, bool, error) {
	if err := w.requireEditing(); err != nil {
		return models.Station{}, false, err
	}
	s, ok := w.registry.AddStation(tapX, tapY, referenceDimension)
	return s, ok, nil
}

// RemoveStation removes a station. Only allowed while Editing.
func (w *Workspace) RemoveStation(id int) (bool, error) {
	if err := w.requireEditing(); err != nil {
		return false, err
	}
	return w.registry.RemoveStation(id), nil
}

// RepositionStation moves a station. Only allowed while Editing.
func (w *Workspace) RepositionStation(id int, rawX, rawY, referenceDimension, offsetX, offsetY float64) (models.Station, bool, error) {
	if err := w.requireEditing(); err != nil {
		return models.Station{}, false, err
	}
	s, ok := w.registry.RepositionStation(id, rawX, rawY, referenceDimension, offsetX, offsetY)
	return s, ok, nil
}

// CommitStations persists the local station layout. Not allowed during a
// session.
func (w *Workspace) CommitStations(ctx context.Context) (models.Customer, error) {
	w.mu.Lock()
	_, inSession := w.mode.(LoggingSession)
	w.mu.Unlock()
	if inSession {
		return models.Customer{}, ErrModeConflict
	}
	return w.registry.Commit(ctx, w.gateway)
}

// StartSession starts a work session on the selected map. While a session is
// already running it returns that session unchanged.
func (w *Workspace) StartSession(technicianID string, appointment *models.Appointment) (session.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.mode.(type) {
	case LoggingSession:
		return w.controller.Snapshot(), nil
	case Editing:
		return session.Snapshot{}, ErrModeConflict
	}

	m, ok := w.registry.ActiveMap()
	if !ok {
		return session.Snapshot{}, ErrNoMapSelected
	}
	customerID := w.registry.CustomerID()
	if appointment != nil && appointment.CustomerID != "" && appointment.CustomerID != customerID {
		return session.Snapshot{}, fmt.Errorf("workspace: appointment %s belongs to customer %s: %w", appointment.ID, appointment.CustomerID, ErrUnknownCustomer)
	}

	snap, err := w.controller.Start(session.StartInput{
		CustomerID:   customerID,
		TechnicianID: technicianID,
		MapID:        m.ID,
		Appointment:  appointment,
	})
	if err != nil {
		return session.Snapshot{}, err
	}
	w.mode = LoggingSession{Session: SessionHandle{CustomerID: customerID, MapID: m.ID, StartedAt: snap.StartTime}}
	return snap, nil
}

// LogStation records a station inspection. Only allowed in LoggingSession,
// and only for stations on the selected map.
func (w *Workspace) LogStation(ctx context.Context, in session.StationLogInput) (models.StationLogEntry, error) {
	if _, err := w.requireLogging(); err != nil {
		return models.StationLogEntry{}, err
	}
	if _, ok := w.registry.Station(in.StationID); !ok {
		return models.StationLogEntry{}, fmt.Errorf("%w: %d", ErrUnknownStation, in.StationID)
	}
	return w.controller.RecordStationLog(ctx, in)
}

// FinishSession finishes and submits the session. On success the workspace
// returns to Viewing; on failure it stays in LoggingSession with the frozen
// visit waiting for SubmitSession or CancelSession.
func (w *Workspace) FinishSession(ctx context.Context, opts session.SubmitOptions) (session.Result, error) {
	handle, err := w.requireLogging()
	if err != nil {
		return session.Result{}, err
	}
	res, err := w.controller.Finish(ctx, opts)
	if err != nil {
		return res, err
	}
	w.leaveSession(handle)
	return res, nil
}

// SubmitSession retries the submission of a finished visit.
func (w *Workspace) SubmitSession(ctx context.Context, opts session.SubmitOptions) (session.Result, error) {
	handle, err := w.requireLogging()
	if err != nil {
		return session.Result{}, err
	}
	res, err := w.controller.Submit(ctx, opts)
	if err != nil {
		return res, err
	}
	w.leaveSession(handle)
	return res, nil
}

// CancelSession discards the session and returns to Viewing. It is a no-op
// outside LoggingSession.
func (w *Workspace) CancelSession(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.mode.(LoggingSession); !ok {
		return false
	}
	w.controller.Cancel(ctx)
	w.mode = Viewing{}
	return true
}

// Restore brings back an unsubmitted visit from a previous run and enters
// LoggingSession so it can be submitted or cancelled.
func (w *Workspace) Restore(ctx context.Context) (bool, error) {
	ok, err := w.controller.Restore(ctx)
	if err != nil || !ok {
		return false, err
	}
	snap := w.controller.Snapshot()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.mode = LoggingSession{Session: SessionHandle{
		CustomerID: snap.CustomerID,
		MapID:      snap.MapID,
		StartedAt:  snap.StartTime,
	}}
	w.logger.Info("resumed unsubmitted visit", zap.String("customer_id", snap.CustomerID))
	return true, nil
}

func (w *Workspace) leaveSession(handle SessionHandle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if current, ok := w.mode.(LoggingSession); ok && current.Session == handle {
		w.mode = Viewing{}
	}
}

func (w *Workspace) resolve(ctx context.Context, customerID, mapID string) (models.Customer, models.Map, error) {
	customers, err := w.Customers(ctx)
	if err != nil {
		return models.Customer{}, models.Map{}, err
	}
	for _, c := range customers {
		if c.ID != customerID {
			continue
		}
		m, ok := c.FindMap(mapID)
		if !ok {
			return models.Customer{}, models.Map{}, fmt.Errorf("%w: %s", ErrUnknownMap, mapID)
		}
		return c, m, nil
	}
	return models.Customer{}, models.Map{}, fmt.Errorf("%w: %s", ErrUnknownCustomer, customerID)
}

func (w *Workspace) requireViewing() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.mode.(Viewing); !ok {
		return ErrModeConflict
	}
	return nil
}

func (w *Workspace) requireEditing() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.mode.(Editing); !ok {
		return ErrModeConflict
	}
	return nil
}

func (w *Workspace) requireLogging() (SessionHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.mode.(LoggingSession)
	if !ok {
		return SessionHandle{}, ErrModeConflict
	}
	return m.Session, nil
}
