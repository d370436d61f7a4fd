package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Datapoint is a single timeseries sample. It encodes as [value, ts_ms].
type Datapoint struct {
	Value     float64
	Timestamp int64 // epoch milliseconds
}

// NewDatapoint stamps value with t in epoch milliseconds.
func NewDatapoint(value float64, t time.Time) Datapoint {
	return Datapoint{Value: value, Timestamp: t.UnixMilli()}
}

func (d Datapoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{d.Value, d.Timestamp})
}

func (d *Datapoint) UnmarshalJSON(b []byte) error {
	var pair []float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("datapoint: want 2 elements, got %d", len(pair))
	}
	d.Value = pair[0]
	d.Timestamp = int64(pair[1])
	return nil
}

// Series is one dashboard timeseries target.
type Series struct {
	Target     string      `json:"target"`
	Datapoints []Datapoint `json:"datapoints"`
}

// EmptySeries returns a labelled series with no datapoints.
func EmptySeries(target string) Series {
	return Series{Target: target, Datapoints: []Datapoint{}}
}

// TagShare is one pie chart slice: a primary tag and its percentage.
type TagShare struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}
