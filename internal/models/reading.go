package models

import (
	"math"
	"time"
)

// SensorReading holds one sensor's values for a single day, keyed by
// time-of-day label.
type SensorReading struct {
	SensorID   string             `bson:"sensor_id" json:"sensor_id"`
	SensorName string             `bson:"sensor_name" json:"sensor_name"`
	Date       time.Time          `bson:"date" json:"date"`
	Readings   map[string]float64 `bson:"readings" json:"readings"`
}

// Mean averages the non-NaN values. ok is false when the document holds no
// values at all; a document whose values are all NaN averages to 0.
func (r SensorReading) Mean() (mean float64, ok bool) {
	if len(r.Readings) == 0 {
		return 0, false
	}
	var sum float64
	var n int
	for _, v := range r.Readings {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, true
	}
	mean = sum / float64(n)
	if math.IsNaN(mean) {
		mean = 0
	}
	return mean, true
}

// Values returns the non-NaN values in no particular order.
func (r SensorReading) Values() []float64 {
	out := make([]float64, 0, len(r.Readings))
	for _, v := range r.Readings {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
