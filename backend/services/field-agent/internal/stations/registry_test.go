package stations

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldservice/backend/services/field-agent/internal/models"
)

type fakeUpdater struct {
	calls   []models.Customer
	err     error
	respond func(models.Customer) models.Customer
}

func (f *fakeUpdater) UpdateCustomer(_ context.Context, customerID string, customer models.Customer) (models.Customer, error) {
	f.calls = append(f.calls, customer)
	if f.err != nil {
		return models.Customer{}, f.err
	}
	if f.respond != nil {
		return f.respond(customer), nil
	}
	return customer, nil
}

func testCustomer() models.Customer {
	return models.Customer{
		ID:   "cust-1",
		Name: "Bakery",
		Maps: []models.Map{
			{ID: "ground", Name: "Ground Floor", Stations: []models.Station{{ID: 1, X: 0.1, Y: 0.2}, {ID: 4, X: 0.5, Y: 0.5}}},
			{ID: "storage", Name: "Storage Area"},
		},
	}
}

func selectGround(r *Registry) {
	c := testCustomer()
	r.SelectMap(c, c.Maps[0])
}

func TestAddStationNormalizesTap(t *testing.T) {
	r := NewRegistry(nil)
	c := testCustomer()
	r.SelectMap(c, c.Maps[1])

	s, ok := r.AddStation(960, 960, 1920)
	require.True(t, ok)
	assert.Equal(t, models.Station{ID: 1, X: 0.5, Y: 0.5}, s)
}

func TestAddStationUsesNextID(t *testing.T) {
	r := NewRegistry(nil)
	selectGround(r)

	s, ok := r.AddStation(100, 100, 1000)
	require.True(t, ok)
	assert.Equal(t, 5, s.ID)
	assert.True(t, r.Dirty())
	assert.Len(t, r.Stations(), 3)
}

func TestAddStationRejectsUnusableInput(t *testing.T) {
	r := NewRegistry(nil)
	_, ok := r.AddStation(10, 10, 100)
	assert.False(t, ok, "no map selected")

	selectGround(r)
	for _, dim := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		_, ok := r.AddStation(10, 10, dim)
		assert.False(t, ok)
	}
	assert.False(t, r.Dirty())
}

func TestSelectMapWithoutStations(t *testing.T) {
	r := NewRegistry(nil)
	c := testCustomer()
	r.SelectMap(c, c.Maps[1])

	assert.NotNil(t, r.Stations())
	assert.Empty(t, r.Stations())
	m, ok := r.ActiveMap()
	require.True(t, ok)
	assert.Equal(t, "Storage Area", m.Name)
}

func TestRemoveStation(t *testing.T) {
	r := NewRegistry(nil)
	selectGround(r)

	assert.True(t, r.RemoveStation(1))
	assert.False(t, r.RemoveStation(1))
	assert.False(t, r.RemoveStation(99))
	assert.Equal(t, []models.Station{{ID: 4, X: 0.5, Y: 0.5}}, r.Stations())
}

func TestRepositionClampsEveryInput(t *testing.T) {
	r := NewRegistry(nil)
	selectGround(r)

	cases := []struct {
		rawX, rawY float64
	}{
		{-500, -500},
		{1e9, 1e9},
		{0, 5000},
		{math.Inf(-1), math.Inf(1)},
		{math.NaN(), 250},
		{300, 300},
	}
	for _, tc := range cases {
		s, ok := r.RepositionStation(4, tc.rawX, tc.rawY, 1000, 50, 50)
		require.True(t, ok)
		assert.GreaterOrEqual(t, s.X, 0.0)
		assert.LessOrEqual(t, s.X, 1.0)
		assert.GreaterOrEqual(t, s.Y, 0.0)
		assert.LessOrEqual(t, s.Y, 1.0)
	}

	s, _ := r.Station(4)
	assert.InDelta(t, 0.25, s.X, 1e-9)
	assert.InDelta(t, 0.25, s.Y, 1e-9)
}

func TestRepositionUnknownStation(t *testing.T) {
	r := NewRegistry(nil)
	selectGround(r)
	_, ok := r.RepositionStation(42, 10, 10, 100, 0, 0)
	assert.False(t, ok)
	assert.False(t, r.Dirty())
}

func TestCommitSendsWholeCustomer(t *testing.T) {
	r := NewRegistry(nil)
	selectGround(r)
	_, ok := r.AddStation(200, 400, 1000)
	require.True(t, ok)

	up := &fakeUpdater{}
	_, err := r.Commit(context.Background(), up)
	require.NoError(t, err)
	require.Len(t, up.calls, 1)

	sent := up.calls[0]
	require.Len(t, sent.Maps, 2)
	assert.Len(t, sent.Maps[0].Stations, 3)
	assert.Equal(t, models.CoordinateSchemeV1, sent.Maps[0].CoordinateScheme)
	assert.Empty(t, sent.Maps[1].Stations)
	assert.False(t, r.Dirty())
}

func TestCommitFailureKeepsLocalEdits(t *testing.T) {
	r := NewRegistry(nil)
	selectGround(r)
	r.RemoveStation(1)

	up := &fakeUpdater{err: errors.New("validation failed")}
	_, err := r.Commit(context.Background(), up)
	require.Error(t, err)
	assert.True(t, r.Dirty())
	assert.Len(t, r.Stations(), 1)

	up.err = nil
	_, err = r.Commit(context.Background(), up)
	require.NoError(t, err)
	assert.False(t, r.Dirty())
	assert.Len(t, up.calls[1].Maps[0].Stations, 1)
}

func TestCommitWithoutMap(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Commit(context.Background(), &fakeUpdater{})
	assert.ErrorIs(t, err, ErrNoMap)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.1))
	assert.Equal(t, 1.0, Clamp01(1.5))
	assert.Equal(t, 0.3, Clamp01(0.3))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
}
