package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldservice/backend/libs/logging"
	"fieldservice/backend/services/field-agent/internal/models"
)

var (
	// ErrNotActive is returned when an operation needs a running session.
	ErrNotActive = errors.New("session: no active session")
	// ErrNothingToSubmit is returned by Submit when no finished visit is pending.
	ErrNothingToSubmit = errors.New("session: no finished visit to submit")
	// ErrPendingSubmission blocks Start while a finished visit is unsubmitted.
	ErrPendingSubmission = errors.New("session: finished visit awaits submission")
	// ErrConfirmationRequired is returned when a visit without station entries
	// is submitted without ConfirmEmpty.
	ErrConfirmationRequired = errors.New("session: visit has no station entries, confirmation required")
	// ErrSubmissionInFlight rejects a second concurrent submission.
	ErrSubmissionInFlight = errors.New("session: submission already in flight")
	// ErrSessionCancelled is returned to a submission whose session was
	// cancelled while the request was in flight.
	ErrSessionCancelled = errors.New("session: cancelled during submission")
	// ErrMissingContext is returned by Start without customer or technician.
	ErrMissingContext = errors.New("session: customer and technician are required")
	// ErrStationSync wraps a failed per-station upload. The entry is still
	// kept locally and goes out with the complete visit.
	ErrStationSync = errors.New("session: station log upload failed")
)

// State of the work session state machine.
type State int

const (
	StateIdle State = iota
	StateActive
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Submitter is the part of the backend gateway the controller talks to.
type Submitter interface {
	LogBaitStation(ctx context.Context, entry models.StationLogEntry) error
	LogCompleteVisit(ctx context.Context, summary models.VisitSummary, entries []models.StationLogEntry) (int, error)
}

// StartInput carries the context a session is started with.
type StartInput struct {
	CustomerID   string
	TechnicianID string
	MapID        string
	Appointment  *models.Appointment
}

// StationLogInput is what the technician enters for one station.
type StationLogInput struct {
	StationID   int    `json:"stationId"`
	Consumption string `json:"consumption"`
	BaitType    string `json:"baitType"`
	Condition   string `json:"condition"`
	Access      string `json:"access"`
}

// SubmitOptions controls a submission attempt.
type SubmitOptions struct {
	// ConfirmEmpty must be set to submit a visit without station entries.
	ConfirmEmpty bool
}

// Result of a successful submission.
type Result struct {
	Summary      models.VisitSummary      `json:"summary"`
	Entries      []models.StationLogEntry `json:"entries"`
	StationCount int                      `json:"stationCount"`
}

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	State         string               `json:"state"`
	CustomerID    string               `json:"customerId,omitempty"`
	TechnicianID  string               `json:"technicianId,omitempty"`
	MapID         string               `json:"mapId,omitempty"`
	AppointmentID string               `json:"appointmentId,omitempty"`
	StartTime     time.Time            `json:"startTime"`
	Elapsed       time.Duration        `json:"elapsed"`
	EntryCount    int                  `json:"entryCount"`
	Submitting    bool                 `json:"submitting"`
	Summary       *models.VisitSummary `json:"summary,omitempty"`
}

// Options configures a Controller. Zero values pick sane defaults.
type Options struct {
	Clock           Clock
	Listener        Listener
	Pending         PendingStore
	SyncStationLogs bool
	NewVisitID      func() string
	Logger          *zap.Logger
}

// Controller runs one work session at a time: Idle -> Active -> Idle on
// cancel, or Active -> Finalizing -> Idle once the visit is submitted.
// A failed submission leaves the controller in Finalizing with the frozen
// summary and entries so the same visit can be resubmitted.
type Controller struct {
	submitter  Submitter
	clock      Clock
	listener   Listener
	pending    PendingStore
	syncLogs   bool
	newVisitID func() string
	logger     *zap.Logger

	mu          sync.Mutex
	state       State
	generation  uint64
	input       StartInput
	startTime   time.Time
	lastElapsed time.Duration
	log         VisitLog
	summary     *models.VisitSummary
	frozen      []models.StationLogEntry
	submitting  bool
}

// NewController builds an idle controller.
func NewController(submitter Submitter, opts Options) *Controller {
	c := &Controller{
		submitter:  submitter,
		clock:      opts.Clock,
		listener:   opts.Listener,
		pending:    opts.Pending,
		syncLogs:   opts.SyncStationLogs,
		newVisitID: opts.NewVisitID,
		logger:     logging.OrNop(opts.Logger),
	}
	if c.clock == nil {
		c.clock = SystemClock{}
	}
	if c.listener == nil {
		c.listener = ListenerFuncs{}
	}
	if c.newVisitID == nil {
		c.newVisitID = uuid.NewString
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens a session. Calling it while a session is active is a no-op
// that returns the running session's snapshot.
func (c *Controller) Start(in StartInput) (Snapshot, error) {
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	in.TechnicianID = strings.TrimSpace(in.TechnicianID)
	if in.CustomerID == "" || in.TechnicianID == "" {
		return Snapshot{}, ErrMissingContext
	}

	c.mu.Lock()
	switch c.state {
	case StateActive:
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	case StateFinalizing:
		c.mu.Unlock()
		return Snapshot{}, ErrPendingSubmission
	}

	c.resetLocked()
	c.state = StateActive
	c.input = in
	c.startTime = c.clock.Now()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("work session started",
		zap.String("customer_id", in.CustomerID),
		zap.String("technician_id", in.TechnicianID),
		zap.String("appointment_id", snap.AppointmentID),
	)
	c.listener.OnSessionStart(snap)
	return snap, nil
}

// Elapsed returns the session's elapsed time. While active it is recomputed
// from the clock and never decreases; once finished it is frozen.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

func (c *Controller) elapsedLocked() time.Duration {
	switch c.state {
	case StateActive:
		d := c.clock.Now().Sub(c.startTime)
		if d > c.lastElapsed {
			c.lastElapsed = d
		}
		return c.lastElapsed
	case StateFinalizing:
		return c.summary.Duration
	default:
		return 0
	}
}

// RecordStationLog appends an entry for the given station. With station sync
// enabled the entry is also uploaded; an upload failure is returned wrapped in
// ErrStationSync but the entry stays recorded.
func (c *Controller) RecordStationLog(ctx context.Context, in StationLogInput) (models.StationLogEntry, error) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return models.StationLogEntry{}, ErrNotActive
	}
	elapsed := c.elapsedLocked()
	entry := models.StationLogEntry{
		StationID:     in.StationID,
		CustomerID:    c.input.CustomerID,
		TechnicianID:  c.input.TechnicianID,
		Timestamp:     c.startTime.Add(elapsed),
		Consumption:   in.Consumption,
		BaitType:      in.BaitType,
		Condition:     in.Condition,
		Access:        in.Access,
		StartTime:     c.startTime,
		EndTime:       c.startTime.Add(elapsed),
		Duration:      elapsed,
		AppointmentID: c.appointmentIDLocked(),
	}
	c.log.Record(entry)
	c.mu.Unlock()

	c.logger.Debug("station logged", zap.Int("station_id", entry.StationID), zap.Duration("elapsed", elapsed))
	c.listener.OnStationLogged(entry)

	if !c.syncLogs {
		return entry, nil
	}
	if err := c.submitter.LogBaitStation(ctx, entry); err != nil {
		c.logger.Warn("station log upload failed", zap.Int("station_id", entry.StationID), zap.Error(err))
		return entry, fmt.Errorf("%w: %w", ErrStationSync, err)
	}
	return entry, nil
}

// Cancel discards the running or unsubmitted session without any network
// call. It reports whether there was anything to discard.
func (c *Controller) Cancel(ctx context.Context) bool {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return false
	}
	discarded := c.log.Len()
	var visitID string
	if c.state == StateFinalizing {
		discarded = len(c.frozen)
		visitID = c.summary.VisitID
	}
	c.resetLocked()
	c.mu.Unlock()

	if visitID != "" {
		c.dropPending(ctx, visitID)
	}
	c.logger.Info("work session cancelled", zap.Int("discarded_entries", discarded))
	c.listener.OnSessionCancel()
	return true
}

// Finish freezes the session clock, builds the visit summary and submits it.
// On a finished but unsubmitted visit it behaves like Submit.
func (c *Controller) Finish(ctx context.Context, opts SubmitOptions) (Result, error) {
	c.mu.Lock()
	switch c.state {
	case StateFinalizing:
		c.mu.Unlock()
		return c.Submit(ctx, opts)
	case StateIdle:
		c.mu.Unlock()
		return Result{}, ErrNotActive
	}

	elapsed := c.elapsedLocked()
	appointmentID := c.appointmentIDLocked()
	summary := models.VisitSummary{
		VisitID:       c.newVisitID(),
		StartTime:     c.startTime,
		EndTime:       c.startTime.Add(elapsed),
		Duration:      elapsed,
		CustomerID:    c.input.CustomerID,
		TechnicianID:  c.input.TechnicianID,
		AppointmentID: appointmentID,
		WorkType:      models.WorkTypeFor(appointmentID),
	}
	c.summary = &summary
	c.frozen = c.log.Entries()
	c.state = StateFinalizing
	// Saved under the lock so a racing Cancel of this visit deletes after it.
	// Deletes of older visits are keyed by visit id and leave this one alone.
	c.savePending(ctx, PendingVisit{Summary: summary, Entries: c.frozen, MapID: c.input.MapID})
	entries := len(c.frozen)
	c.mu.Unlock()

	c.logger.Info("work session finished",
		zap.String("visit_id", summary.VisitID),
		zap.Duration("duration", summary.Duration),
		zap.Int("entries", entries),
	)
	return c.Submit(ctx, opts)
}

// Submit sends the frozen visit. It reuses the same visit id on every
// attempt, so retrying after a failure is idempotent on the backend.
func (c *Controller) Submit(ctx context.Context, opts SubmitOptions) (Result, error) {
	c.mu.Lock()
	if c.state != StateFinalizing {
		c.mu.Unlock()
		return Result{}, ErrNothingToSubmit
	}
	if c.submitting {
		c.mu.Unlock()
		return Result{}, ErrSubmissionInFlight
	}
	result := Result{Summary: *c.summary, Entries: append([]models.StationLogEntry(nil), c.frozen...)}
	if len(result.Entries) == 0 && !opts.ConfirmEmpty {
		c.mu.Unlock()
		return result, ErrConfirmationRequired
	}
	c.submitting = true
	generation := c.generation
	c.mu.Unlock()

	count, err := c.submitter.LogCompleteVisit(ctx, result.Summary, result.Entries)

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		c.logger.Warn("submission finished after cancel, result ignored",
			zap.String("visit_id", result.Summary.VisitID), zap.Error(err))
		return Result{}, ErrSessionCancelled
	}
	c.submitting = false
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("visit submission failed", zap.String("visit_id", result.Summary.VisitID), zap.Error(err))
		return result, fmt.Errorf("session: submit visit %s: %w", result.Summary.VisitID, err)
	}
	c.resetLocked()
	c.mu.Unlock()

	result.StationCount = count
	c.dropPending(ctx, result.Summary.VisitID)
	c.logger.Info("visit submitted", zap.String("visit_id", result.Summary.VisitID), zap.Int("station_count", count))
	c.listener.OnSessionFinish(result)
	return result, nil
}

// Restore re-enters Finalizing from a visit left in the pending store by a
// previous process. It reports whether a visit was restored.
func (c *Controller) Restore(ctx context.Context) (bool, error) {
	if c.pending == nil {
		return false, nil
	}
	visit, ok, err := c.pending.Load(ctx)
	if err != nil || !ok {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return false, nil
	}
	c.resetLocked()
	summary := visit.Summary
	c.summary = &summary
	c.frozen = visit.Entries
	c.input = StartInput{
		CustomerID:   summary.CustomerID,
		TechnicianID: summary.TechnicianID,
		MapID:        visit.MapID,
	}
	if summary.AppointmentID != "" {
		c.input.Appointment = &models.Appointment{ID: summary.AppointmentID, CustomerID: summary.CustomerID}
	}
	c.startTime = summary.StartTime
	c.state = StateFinalizing
	c.logger.Info("unsubmitted visit restored", zap.String("visit_id", summary.VisitID))
	return true, nil
}

// Snapshot returns the current view of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      c.state.String(),
		Elapsed:    c.elapsedLocked(),
		EntryCount: c.log.Len(),
		Submitting: c.submitting,
	}
	if c.state == StateIdle {
		return snap
	}
	snap.CustomerID = c.input.CustomerID
	snap.TechnicianID = c.input.TechnicianID
	snap.MapID = c.input.MapID
	snap.AppointmentID = c.appointmentIDLocked()
	snap.StartTime = c.startTime
	if c.summary != nil {
		s := *c.summary
		snap.Summary = &s
		snap.EntryCount = len(c.frozen)
	}
	return snap
}

func (c *Controller) appointmentIDLocked() string {
	if c.input.Appointment == nil {
		return ""
	}
	return c.input.Appointment.ID
}

func (c *Controller) resetLocked() {
	c.state = StateIdle
	c.generation++
	c.input = StartInput{}
	c.startTime = time.Time{}
	c.lastElapsed = 0
	c.log.Reset()
	c.summary = nil
	c.frozen = nil
	c.submitting = false
}

func (c *Controller) savePending(ctx context.Context, visit PendingVisit) {
	if c.pending == nil {
		return
	}
	if err := c.pending.Save(ctx, visit); err != nil {
		c.logger.Warn("failed to persist unsubmitted visit", zap.String("visit_id", visit.Summary.VisitID), zap.Error(err))
	}
}

func (c *Controller) dropPending(ctx context.Context, visitID string) {
	if c.pending == nil {
		return
	}
	if err := c.pending.Delete(ctx, visitID); err != nil {
		c.logger.Warn("failed to clear unsubmitted visit", zap.String("visit_id", visitID), zap.Error(err))
	}
}
