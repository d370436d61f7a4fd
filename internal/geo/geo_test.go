package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
	"github.com/kjstillabower/sensor-event-correlator/internal/registry"
)

var (
	patrasCenter = models.Coordinate{Lat: 38.2466, Lon: 21.7346}
	rio          = models.Coordinate{Lat: 38.3050, Lon: 21.7900}
	athens       = models.Coordinate{Lat: 37.9838, Lon: 23.7275}
	thessaloniki = models.Coordinate{Lat: 40.6401, Lon: 22.9444}
)

func TestDistance_Identity(t *testing.T) {
	for _, c := range []models.Coordinate{patrasCenter, athens, {Lat: 0, Lon: 0}, {Lat: -33.9, Lon: 151.2}} {
		assert.Equal(t, 0.0, Distance(c, c))
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pairs := [][2]models.Coordinate{
		{patrasCenter, rio},
		{patrasCenter, athens},
		{athens, thessaloniki},
	}
	for _, p := range pairs {
		assert.InDelta(t, Distance(p[0], p[1]), Distance(p[1], p[0]), 1e-9)
	}
}

func TestDistance_KnownPairs(t *testing.T) {
	patrasRio := Distance(patrasCenter, rio)
	patrasAthens := Distance(patrasCenter, athens)
	patrasThessaloniki := Distance(patrasCenter, thessaloniki)

	assert.InDelta(t, 8.0, patrasRio, 1.0)
	assert.InDelta(t, 179.0, patrasAthens, 5.0)
	assert.InDelta(t, 286.0, patrasThessaloniki, 10.0)

	assert.Less(t, patrasRio, patrasAthens)
	assert.Less(t, patrasAthens, patrasThessaloniki)
}

func TestDistance_OneDegreeOfLatitude(t *testing.T) {
	d := Distance(models.Coordinate{Lat: 0, Lon: 0}, models.Coordinate{Lat: 1, Lon: 0})
	assert.InDelta(t, 111.19, d, 0.01)
}

func TestAssign_NearestWithinThreshold(t *testing.T) {
	reg, err := registry.Default()
	require.NoError(t, err)

	// A few metres from Germanou.
	id, ok := Assign(models.Coordinate{Lat: 38.24120, Lon: 21.74160}, reg, DefaultThresholdKm)
	require.True(t, ok)
	assert.Equal(t, "23759", id)
}

func TestAssign_NoneBeyondThreshold(t *testing.T) {
	reg, err := registry.Default()
	require.NoError(t, err)

	// Platani (1006) is the nearest sensor but about 8.6 km away.
	c := models.Coordinate{Lat: 38.3300, Lon: 21.9100}
	_, ok := Assign(c, reg, DefaultThresholdKm)
	assert.False(t, ok)

	id, ok := Assign(c, reg, 20)
	require.True(t, ok)
	assert.Equal(t, "1006", id)
}

func TestAssign_EqualDistanceBreaksTieByID(t *testing.T) {
	reg, err := registry.Parse([]byte("sensors:\n  - {id: b, lat: 0, lon: 0.01}\n  - {id: a, lat: 0, lon: -0.01}\n"))
	require.NoError(t, err)

	id, ok := Assign(models.Coordinate{}, reg, DefaultThresholdKm)
	require.True(t, ok)
	assert.Equal(t, "a", id)
}
