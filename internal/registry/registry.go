// Package registry holds the fixed sensor table and area groupings. A
// Registry is built once at start and is safe for concurrent reads.
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
)

// AllArea is the fallback area covering every grouped sensor.
const AllArea = "All"

//go:embed sensors.yaml
var defaultDocument []byte

// ErrUnknownSensor is returned when a sensor id or name is not registered.
var ErrUnknownSensor = errors.New("unknown sensor")

// Sensor is a registered sensor. Name is empty for sensors without a display name.
type Sensor struct {
	ID       string
	Name     string
	Location models.Coordinate
}

// Registry maps sensor ids to locations and names, and areas to sensor ids.
type Registry struct {
	sensors []Sensor
	byID    map[string]Sensor
	byName  map[string]string
	areas   map[string][]string
}

type document struct {
	Sensors []struct {
		ID   string  `yaml:"id"`
		Lat  float64 `yaml:"lat"`
		Lon  float64 `yaml:"lon"`
		Name string  `yaml:"name"`
	} `yaml:"sensors"`
	Areas map[string][]string `yaml:"areas"`
}

// Default returns the registry compiled into the binary.
func Default() (*Registry, error) {
	return Parse(defaultDocument)
}

// Load reads a registry document from path. An empty path yields Default.
func Load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Registry from a YAML document. Duplicate ids or names and
// area members that are not registered are rejected.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	r := &Registry{
		byID:   make(map[string]Sensor, len(doc.Sensors)),
		byName: make(map[string]string, len(doc.Sensors)),
		areas:  make(map[string][]string, len(doc.Areas)),
	}
	for _, s := range doc.Sensors {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return nil, fmt.Errorf("registry: sensor with empty id")
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("registry: duplicate sensor id %q", id)
		}
		sensor := Sensor{ID: id, Name: s.Name, Location: models.Coordinate{Lat: s.Lat, Lon: s.Lon}}
		if sensor.Name != "" {
			if other, dup := r.byName[sensor.Name]; dup {
				return nil, fmt.Errorf("registry: name %q used by %s and %s", sensor.Name, other, id)
			}
			r.byName[sensor.Name] = id
		}
		r.byID[id] = sensor
		r.sensors = append(r.sensors, sensor)
	}
	for area, ids := range doc.Areas {
		members := make([]string, 0, len(ids))
		for _, id := range ids {
			if _, ok := r.byID[id]; !ok {
				return nil, fmt.Errorf("registry: area %q references %w %q", area, ErrUnknownSensor, id)
			}
			members = append(members, id)
		}
		r.areas[area] = members
	}
	return r, nil
}

// Sensors returns every registered sensor in document order.
func (r *Registry) Sensors() []Sensor {
	out := make([]Sensor, len(r.sensors))
	copy(out, r.sensors)
	return out
}

// Sensor looks up a sensor by id.
func (r *Registry) Sensor(id string) (Sensor, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// IDByName resolves a display name to its sensor id.
func (r *Registry) IDByName(name string) (string, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Name returns the display name for id, or "" when it has none.
func (r *Registry) Name(id string) string {
	return r.byID[id].Name
}

// Area returns the sensor ids grouped under name. Unknown or empty names
// resolve to AllArea; the returned name is the one actually used.
func (r *Registry) Area(name string) (string, []string) {
	ids, ok := r.areas[name]
	if !ok {
		name = AllArea
		ids = r.areas[AllArea]
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return name, out
}

// Areas returns the configured area names, sorted.
func (r *Registry) Areas() []string {
	names := make([]string, 0, len(r.areas))
	for n := range r.areas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
