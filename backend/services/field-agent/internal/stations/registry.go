package stations

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"fieldservice/backend/libs/logging"
	"fieldservice/backend/services/field-agent/internal/models"
)

// ErrNoMap is returned by Commit before any map was selected.
var ErrNoMap = errors.New("stations: no map selected")

// CustomerUpdater persists a customer together with its maps.
type CustomerUpdater interface {
	UpdateCustomer(ctx context.Context, customerID string, customer models.Customer) (models.Customer, error)
}

// Registry holds the editable station list of the selected map. Coordinates
// are stored as fractions of the reference dimension (the rendered image
// width) for both axes, and are clamped to [0,1] on every write.
type Registry struct {
	mu       sync.RWMutex
	owner    models.Customer
	mapID    string
	selected bool
	stations []models.Station
	version  uint64
	saved    uint64
	logger   *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: logging.OrNop(logger)}
}

// SelectMap replaces the station set with the map's stations. Any pending
// local edits on the previous map are dropped.
func (r *Registry) SelectMap(owner models.Customer, m models.Map) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.owner = owner
	r.mapID = m.ID
	r.selected = true
	r.stations = make([]models.Station, 0, len(m.Stations))
	r.stations = append(r.stations, m.Stations...)
	r.version++
	r.saved = r.version
}

// ActiveMap returns the selected map carrying the current local stations.
func (r *Registry) ActiveMap() (models.Map, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.selected {
		return models.Map{}, false
	}
	m, _ := r.owner.FindMap(r.mapID)
	m.ID = r.mapID
	m.Stations = r.copyStations()
	return m, true
}

// CustomerID returns the owner of the selected map.
func (r *Registry) CustomerID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner.ID
}

// Stations returns a copy of the current station list.
func (r *Registry) Stations() []models.Station {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyStations()
}

// Station looks up a station by id.
func (r *Registry) Station(id int) (models.Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.stations {
		if s.ID == id {
			return s, true
		}
	}
	return models.Station{}, false
}

// Dirty reports whether local edits were not yet committed.
func (r *Registry) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version != r.saved
}

// AddStation places a new station at a tap position given in pixels of the
// reference dimension. The id is one more than the highest existing id. It
// reports false when no map is selected or the reference dimension is unusable.
func (r *Registry) AddStation(tapX, tapY, referenceDimension float64) (models.Station, bool) {
	if !UsableDimension(referenceDimension) {
		return models.Station{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.selected {
		return models.Station{}, false
	}

	station := models.Station{
		ID: r.nextIDLocked(),
		X:  Clamp01(tapX / referenceDimension),
		Y:  Clamp01(tapY / referenceDimension),
	}
	r.stations = append(r.stations, station)
	r.version++
	return station, true
}

// RemoveStation deletes the station with the given id. Unknown ids are ignored.
func (r *Registry) RemoveStation(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.stations {
		if s.ID == id {
			r.stations = append(r.stations[:i], r.stations[i+1:]...)
			r.version++
			return true
		}
	}
	return false
}

// RepositionStation moves a station to a dragged position. The raw position
// is shifted by the image offset, scaled by the reference dimension and
// clamped to [0,1] on both axes. Unknown ids are ignored.
func (r *Registry) RepositionStation(id int, rawX, rawY, referenceDimension, offsetX, offsetY float64) (models.Station, bool) {
	if !UsableDimension(referenceDimension) {
		return models.Station{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.stations {
		if r.stations[i].ID != id {
			continue
		}
		r.stations[i].X = Clamp01((rawX - offsetX) / referenceDimension)
		r.stations[i].Y = Clamp01((rawY - offsetY) / referenceDimension)
		r.version++
		return r.stations[i], true
	}
	return models.Station{}, false
}

// Commit sends the owner's maps, with the selected map's stations replaced by
// the local list, through updater. On failure the local list is kept as is so
// the commit can be retried.
func (r *Registry) Commit(ctx context.Context, updater CustomerUpdater) (models.Customer, error) {
	r.mu.RLock()
	if !r.selected {
		r.mu.RUnlock()
		return models.Customer{}, ErrNoMap
	}
	payload := r.ownerWithLocalStationsLocked()
	version := r.version
	mapID := r.mapID
	r.mu.RUnlock()

	updated, err := updater.UpdateCustomer(ctx, payload.ID, payload)
	if err != nil {
		r.logger.Warn("station layout commit failed",
			zap.String("customer_id", payload.ID),
			zap.String("map_id", mapID),
			zap.Error(err),
		)
		return models.Customer{}, fmt.Errorf("stations: commit map %s: %w", mapID, err)
	}
	if updated.ID == "" {
		updated = payload
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapID == mapID && r.owner.ID == payload.ID {
		r.owner = updated
		if r.saved < version {
			r.saved = version
		}
	}
	r.logger.Info("station layout committed",
		zap.String("customer_id", payload.ID),
		zap.String("map_id", mapID),
	)
	return updated, nil
}

func (r *Registry) ownerWithLocalStationsLocked() models.Customer {
	owner := r.owner
	owner.Maps = make([]models.Map, len(r.owner.Maps))
	copy(owner.Maps, r.owner.Maps)

	found := false
	for i := range owner.Maps {
		if owner.Maps[i].ID == r.mapID {
			owner.Maps[i].Stations = r.copyStations()
			if owner.Maps[i].CoordinateScheme == "" {
				owner.Maps[i].CoordinateScheme = models.CoordinateSchemeV1
			}
			found = true
		}
	}
	if !found {
		owner.Maps = append(owner.Maps, models.Map{
			ID:               r.mapID,
			CoordinateScheme: models.CoordinateSchemeV1,
			Stations:         r.copyStations(),
		})
	}
	return owner
}

func (r *Registry) copyStations() []models.Station {
	out := make([]models.Station, len(r.stations))
	copy(out, r.stations)
	return out
}

func (r *Registry) nextIDLocked() int {
	maxID := 0
	for _, s := range r.stations {
		if s.ID > maxID {
			maxID = s.ID
		}
	}
	return maxID + 1
}

// Clamp01 limits v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// UsableDimension reports whether d can scale a tap position.
func UsableDimension(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}
