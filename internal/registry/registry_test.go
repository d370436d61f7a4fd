package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	assert.Len(t, r.Sensors(), 27)
	assert.Equal(t, []string{"All", "Center", "North", "South"}, r.Areas())

	id, ok := r.IDByName("University of Patras")
	require.True(t, ok)
	assert.Equal(t, "1566", id)

	s, ok := r.Sensor("116409")
	require.True(t, ok)
	assert.Empty(t, s.Name, "116409 has coordinates but no display name")
	assert.InDelta(t, 38.2586, s.Location.Lat, 1e-9)

	_, ids := r.Area("South")
	assert.Equal(t, []string{"101609", "121199", "121529", "14857", "101589"}, ids)
}

func TestArea_FallsBackToAll(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	name, ids := r.Area("Nowhere")
	assert.Equal(t, AllArea, name)
	assert.Len(t, ids, 25)

	name, _ = r.Area("")
	assert.Equal(t, AllArea, name)
}

func TestArea_ReturnsCopy(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	_, ids := r.Area("North")
	ids[0] = "mutated"
	_, again := r.Area("North")
	assert.Equal(t, "1672", again[0])
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"duplicate id", "sensors:\n  - {id: a, lat: 1, lon: 1}\n  - {id: a, lat: 2, lon: 2}\n"},
		{"duplicate name", "sensors:\n  - {id: a, lat: 1, lon: 1, name: x}\n  - {id: b, lat: 2, lon: 2, name: x}\n"},
		{"empty id", "sensors:\n  - {id: '', lat: 1, lon: 1}\n"},
		{"unknown area member", "sensors:\n  - {id: a, lat: 1, lon: 1}\nareas:\n  All: [a, b]\n"},
		{"bad yaml", "sensors: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	r, err := Load("  ")
	require.NoError(t, err)
	assert.Len(t, r.Sensors(), 27)
}
